package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is monotonic: paid may transition to cancelled exactly once.
type PaymentStatus string

const (
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Known payment method keys. The strategy registry is open; these are the
// built-ins.
const (
	PaymentMethodKakaoPay     = "kakaopay"
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
)

// Payment is a ledger row referencing a catalog item generically by
// (item_type, item_id). Payments are never deleted.
type Payment struct {
	ID                    string          `db:"id" json:"id"`
	UserID                string          `db:"user_id" json:"user_id"`
	ItemType              ItemType        `db:"item_type" json:"item_type"`
	ItemID                string          `db:"item_id" json:"item_id"`
	Amount                decimal.Decimal `db:"amount" json:"amount"`
	PaymentMethod         string          `db:"payment_method" json:"payment_method"`
	ExternalTransactionID string          `db:"external_transaction_id" json:"external_transaction_id"`
	Status                PaymentStatus   `db:"status" json:"status"`
	PaidAt                time.Time       `db:"paid_at" json:"paid_at"`
	CancelledAt           *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// PaymentFilter captures list criteria for a user's payment history.
type PaymentFilter struct {
	Status   PaymentStatus
	ItemType ItemType
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
