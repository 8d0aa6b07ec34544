package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrLockConflict maps lock-acquisition exhaustion to a retryable 409,
	// distinct from business-rule rejections.
	ErrLockConflict = New("LOCK_CONFLICT", http.StatusConflict, "resource busy, retry later")

	// ErrUnsupportedPaymentMethod is returned when no strategy is registered
	// for the requested payment method.
	ErrUnsupportedPaymentMethod = New("UNSUPPORTED_PAYMENT_METHOD", http.StatusBadRequest, "unsupported payment method")

	// ErrCacheMiss signals an absent cache entry.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Registration business-rule rejections. All surface as 400 without any
	// partial writes.
	ErrDuplicateRegistration   = New("DUPLICATE_REGISTRATION", http.StatusBadRequest, "already registered for this item")
	ErrItemUnavailable         = New("ITEM_UNAVAILABLE", http.StatusBadRequest, "item is not available for registration")
	ErrAmountMismatch          = New("AMOUNT_MISMATCH", http.StatusBadRequest, "amount does not match the item price")
	ErrAlreadyCompleted        = New("ALREADY_COMPLETED", http.StatusBadRequest, "registration already completed")
	ErrRegistrationCancelled   = New("REGISTRATION_CANCELLED", http.StatusBadRequest, "registration was cancelled")
	ErrPaymentAlreadyCancelled = New("PAYMENT_ALREADY_CANCELLED", http.StatusBadRequest, "payment already cancelled")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
