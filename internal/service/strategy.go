package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/exam-market-api/internal/models"
	appErrors "github.com/noah-isme/exam-market-api/pkg/errors"
)

type paymentCreator interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) error
}

// PaymentStrategy encapsulates per-method validation, processing and fee
// metadata. Process persists the paid payment through the caller's
// transaction and never opens one of its own; the coordinator owns the
// transaction scope so payment and registration commit together.
type PaymentStrategy interface {
	Method() string
	Validate(amount decimal.Decimal) error
	Process(ctx context.Context, tx *sqlx.Tx, userID string, amount decimal.Decimal, itemType models.ItemType, itemID string) (*models.Payment, error)
	TransactionMetadata(amount decimal.Decimal) map[string]interface{}
}

// StrategyRegistry resolves payment-method keys to strategies. New methods
// may be registered at runtime.
type StrategyRegistry struct {
	mu         sync.RWMutex
	strategies map[string]PaymentStrategy
}

// NewStrategyRegistry builds a registry preloaded with the built-in
// kakaopay, card and bank_transfer strategies.
func NewStrategyRegistry(payments paymentCreator) *StrategyRegistry {
	r := &StrategyRegistry{strategies: make(map[string]PaymentStrategy)}

	r.Register(&gatewayStrategy{
		method:         models.PaymentMethodKakaoPay,
		gateway:        "kakaopay",
		externalPrefix: "KAKAO",
		min:            decimal.NewFromInt(100),
		max:            decimal.NewFromInt(50_000_000),
		feeRate:        decimal.NewFromFloat(0.029),
		payments:       payments,
	})
	r.Register(&gatewayStrategy{
		method:         models.PaymentMethodCard,
		gateway:        "card_pg",
		externalPrefix: "CARD",
		min:            decimal.NewFromInt(1_000),
		max:            decimal.NewFromInt(100_000_000),
		feeRate:        decimal.NewFromFloat(0.032),
		installment:    true,
		payments:       payments,
	})
	r.Register(&gatewayStrategy{
		method:         models.PaymentMethodBankTransfer,
		gateway:        "bank_transfer",
		externalPrefix: "BANK",
		min:            decimal.NewFromInt(1_000),
		max:            decimal.NewFromInt(200_000_000),
		feeRate:        decimal.NewFromFloat(0.005),
		payments:       payments,
	})

	return r
}

// Register associates a strategy with its method key, replacing any
// previous registration.
func (r *StrategyRegistry) Register(s PaymentStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Method()] = s
}

// Resolve returns the strategy for a method key.
func (r *StrategyRegistry) Resolve(method string) (PaymentStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[method]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedPaymentMethod, fmt.Sprintf("unsupported payment method: %s", method))
	}
	return s, nil
}

// SupportedMethods lists registered method keys in stable order.
func (r *StrategyRegistry) SupportedMethods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := make([]string, 0, len(r.strategies))
	for m := range r.strategies {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// gatewayStrategy covers the built-in payment methods, which differ only in
// amount bounds, fee rate and gateway identity.
type gatewayStrategy struct {
	method         string
	gateway        string
	externalPrefix string
	min            decimal.Decimal
	max            decimal.Decimal
	feeRate        decimal.Decimal
	installment    bool
	payments       paymentCreator
}

func (s *gatewayStrategy) Method() string { return s.method }

func (s *gatewayStrategy) Validate(amount decimal.Decimal) error {
	if amount.LessThan(s.min) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s requires a minimum amount of %s", s.method, s.min.String()))
	}
	if amount.GreaterThan(s.max) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s allows a maximum amount of %s", s.method, s.max.String()))
	}
	return nil
}

func (s *gatewayStrategy) Process(ctx context.Context, tx *sqlx.Tx, userID string, amount decimal.Decimal, itemType models.ItemType, itemID string) (*models.Payment, error) {
	payment := &models.Payment{
		UserID:                userID,
		ItemType:              itemType,
		ItemID:                itemID,
		Amount:                amount,
		PaymentMethod:         s.method,
		Status:                models.PaymentStatusPaid,
		ExternalTransactionID: fmt.Sprintf("%s_%s_%s", s.externalPrefix, userID, itemID),
	}

	// The external gateway call would happen here before persisting.

	if err := s.payments.CreateTx(ctx, tx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *gatewayStrategy) TransactionMetadata(amount decimal.Decimal) map[string]interface{} {
	md := map[string]interface{}{
		"payment_gateway":     s.gateway,
		"supports_refund":     true,
		"processing_fee_rate": s.feeRate,
		"estimated_fee":       amount.Mul(s.feeRate),
	}
	if s.installment {
		md["supports_installment"] = true
	}
	return md
}
