package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-market-api/internal/models"
	appErrors "github.com/noah-isme/exam-market-api/pkg/errors"
	"github.com/noah-isme/exam-market-api/pkg/lock"
)

type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type catalogReader interface {
	FindByID(ctx context.Context, itemType models.ItemType, id string) (*models.CatalogItem, error)
}

type registrationStore interface {
	FindByUserAndItem(ctx context.Context, itemType models.ItemType, userID, itemID string) (*models.Registration, error)
	Exists(ctx context.Context, itemType models.ItemType, userID, itemID string) (bool, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, itemType models.ItemType, reg *models.Registration) error
	DeleteByUserAndItemTx(ctx context.Context, tx *sqlx.Tx, itemType models.ItemType, userID, itemID string) error
	Complete(ctx context.Context, itemType models.ItemType, id string, completedAt time.Time) error
}

type paymentStore interface {
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Payment, error)
	CancelTx(ctx context.Context, tx *sqlx.Tx, id string, cancelledAt time.Time) error
}

type touchQueue interface {
	Add(ctx context.Context, itemType models.ItemType, itemID string) error
}

type lockRunner interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// ApplyRequest carries one registration attempt. Item identity comes from
// the route, the rest from the request body.
type ApplyRequest struct {
	ItemType      models.ItemType `json:"-" validate:"required"`
	ItemID        string          `json:"-" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	PaymentMethod string          `json:"payment_method" validate:"required"`
}

// ApplyResult is the outcome of a successful registration.
type ApplyResult struct {
	RegistrationID      string                 `json:"registration_id"`
	PaymentID           string                 `json:"payment_id"`
	PaymentMethod       string                 `json:"payment_method"`
	Status              string                 `json:"status"`
	TransactionMetadata map[string]interface{} `json:"transaction_metadata"`
}

// RegistrationService coordinates registration, payment and cancellation
// under a per-user-per-item distributed lock. Payment and registration rows
// always commit or roll back together.
type RegistrationService struct {
	db            txBeginner
	catalog       catalogReader
	registrations registrationStore
	payments      paymentStore
	strategies    *StrategyRegistry
	pending       touchQueue
	locks         lockRunner
	metrics       *MetricsService
	validate      *validator.Validate
	logger        *zap.Logger
}

// NewRegistrationService wires the coordinator.
func NewRegistrationService(
	db txBeginner,
	catalog catalogReader,
	registrations registrationStore,
	payments paymentStore,
	strategies *StrategyRegistry,
	pending touchQueue,
	locks lockRunner,
	metrics *MetricsService,
	logger *zap.Logger,
) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		db:            db,
		catalog:       catalog,
		registrations: registrations,
		payments:      payments,
		strategies:    strategies,
		pending:       pending,
		locks:         locks,
		metrics:       metrics,
		validate:      validator.New(),
		logger:        logger,
	}
}

func applyLockKey(itemType models.ItemType, userID, itemID string) string {
	if itemType == models.ItemTypeCourse {
		return fmt.Sprintf("enrollment:user:%s:course:%s", userID, itemID)
	}
	return fmt.Sprintf("registration:user:%s:test:%s", userID, itemID)
}

func cancelLockKey(paymentID string) string {
	return "payment:cancel:" + paymentID
}

// Apply registers a user for an item and records its payment atomically.
// Business-rule checks run under the lock so two concurrent attempts for the
// same (user, item) pair cannot both pass the duplicate check.
func (s *RegistrationService) Apply(ctx context.Context, userID string, req ApplyRequest) (*ApplyResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration request")
	}
	if !req.ItemType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid item type")
	}

	item, err := s.catalog.FindByID(ctx, req.ItemType, req.ItemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", req.ItemType))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load item")
	}

	strategy, err := s.strategies.Resolve(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	var result *ApplyResult
	lockErr := s.locks.WithLock(ctx, applyLockKey(req.ItemType, userID, req.ItemID), func(ctx context.Context) error {
		exists, err := s.registrations.Exists(ctx, req.ItemType, userID, req.ItemID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "check duplicate registration")
		}
		if exists {
			return appErrors.ErrDuplicateRegistration
		}

		if !item.IsAvailable(time.Now().UTC()) {
			return appErrors.ErrItemUnavailable
		}
		if !req.Amount.Equal(item.Price) {
			return appErrors.ErrAmountMismatch
		}
		if err := strategy.Validate(req.Amount); err != nil {
			return err
		}

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "begin transaction")
		}
		defer tx.Rollback() //nolint:errcheck

		payment, err := strategy.Process(ctx, tx, userID, req.Amount, req.ItemType, req.ItemID)
		if err != nil {
			return err
		}

		reg := &models.Registration{UserID: userID, ItemID: req.ItemID}
		if err := s.registrations.CreateTx(ctx, tx, req.ItemType, reg); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create registration")
		}

		if err := tx.Commit(); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "commit registration")
		}

		result = &ApplyResult{
			RegistrationID:      reg.ID,
			PaymentID:           payment.ID,
			PaymentMethod:       payment.PaymentMethod,
			Status:              string(reg.Status),
			TransactionMetadata: strategy.TransactionMetadata(req.Amount),
		}
		return nil
	})
	if lockErr != nil {
		return nil, s.mapLockError(lockErr)
	}
	s.metrics.ObserveLockAcquisition("acquired")

	s.touch(ctx, req.ItemType, req.ItemID)

	s.logger.Info("registration created",
		zap.String("user_id", userID),
		zap.String("item_type", string(req.ItemType)),
		zap.String("item_id", req.ItemID),
		zap.String("payment_id", result.PaymentID))

	return result, nil
}

// Complete marks the caller's registration completed.
func (s *RegistrationService) Complete(ctx context.Context, userID string, itemType models.ItemType, itemID string) (*models.Registration, error) {
	if !itemType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid item type")
	}

	reg, err := s.registrations.FindByUserAndItem(ctx, itemType, userID, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load registration")
	}

	switch reg.Status {
	case models.RegistrationStatusCompleted:
		return nil, appErrors.ErrAlreadyCompleted
	case models.RegistrationStatusCancelled:
		return nil, appErrors.ErrRegistrationCancelled
	}

	now := time.Now().UTC()
	if err := s.registrations.Complete(ctx, itemType, reg.ID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "complete registration")
	}

	reg.Status = models.RegistrationStatusCompleted
	reg.CompletedAt = &now
	return reg, nil
}

// CancelPayment cancels a paid payment and removes its registration in one
// transaction. Ownership is checked before taking the lock so a foreign
// payment never consumes a lock slot.
func (s *RegistrationService) CancelPayment(ctx context.Context, userID, paymentID string) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load payment")
	}
	if payment.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "payment belongs to another user")
	}

	var cancelled *models.Payment
	lockErr := s.locks.WithLock(ctx, cancelLockKey(paymentID), func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "begin transaction")
		}
		defer tx.Rollback() //nolint:errcheck

		// Re-read under a row lock; the pre-lock read may be stale.
		current, err := s.payments.FindByIDForUpdateTx(ctx, tx, paymentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "lock payment row")
		}
		if current.Status == models.PaymentStatusCancelled {
			return appErrors.ErrPaymentAlreadyCancelled
		}

		now := time.Now().UTC()
		if err := s.payments.CancelTx(ctx, tx, paymentID, now); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "cancel payment")
		}
		if err := s.registrations.DeleteByUserAndItemTx(ctx, tx, current.ItemType, current.UserID, current.ItemID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "delete registration")
		}

		if err := tx.Commit(); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "commit cancellation")
		}

		current.Status = models.PaymentStatusCancelled
		current.CancelledAt = &now
		cancelled = current
		return nil
	})
	if lockErr != nil {
		return nil, s.mapLockError(lockErr)
	}
	s.metrics.ObserveLockAcquisition("acquired")

	s.touch(ctx, cancelled.ItemType, cancelled.ItemID)

	s.logger.Info("payment cancelled",
		zap.String("user_id", userID),
		zap.String("payment_id", paymentID),
		zap.String("item_id", cancelled.ItemID))

	return cancelled, nil
}

// touch marks the item's cached count stale. Failures are logged, never
// surfaced; the reconciler converges from the ledger regardless.
func (s *RegistrationService) touch(ctx context.Context, itemType models.ItemType, itemID string) {
	if err := s.pending.Add(ctx, itemType, itemID); err != nil {
		s.logger.Warn("failed to queue count refresh",
			zap.String("item_type", string(itemType)),
			zap.String("item_id", itemID),
			zap.Error(err))
	}
}

func (s *RegistrationService) mapLockError(err error) error {
	if errors.Is(err, lock.ErrNotAcquired) {
		s.metrics.ObserveLockAcquisition("conflict")
		return appErrors.Clone(appErrors.ErrLockConflict, "")
	}
	return err
}
