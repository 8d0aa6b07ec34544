package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-market-api/internal/models"
)

// PaymentRepository persists the payment ledger. Payments are append-only;
// cancellation flips status exactly once and nothing is ever deleted.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, user_id, item_type, item_id, amount, payment_method, external_transaction_id, status, paid_at, cancelled_at`

// FindByID returns a payment by identifier.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByIDForUpdateTx re-reads a payment under a row-level lock inside the
// caller's transaction, closing the race between the distributed lock check
// and the status flip.
func (r *PaymentRepository) FindByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1 FOR UPDATE`, paymentColumns)
	var payment models.Payment
	if err := tx.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// CreateTx inserts a payment inside the caller's transaction.
func (r *PaymentRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPaid
	}
	const query = `INSERT INTO payments (id, user_id, item_type, item_id, amount, payment_method, external_transaction_id, status, paid_at)
        VALUES (:id, :user_id, :item_type, :item_id, :amount, :payment_method, :external_transaction_id, :status, :paid_at)`
	if _, err := tx.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// CancelTx marks a payment cancelled inside the caller's transaction.
func (r *PaymentRepository) CancelTx(ctx context.Context, tx *sqlx.Tx, id string, cancelledAt time.Time) error {
	const query = `UPDATE payments SET status = $2, cancelled_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, models.PaymentStatusCancelled, cancelledAt); err != nil {
		return fmt.Errorf("cancel payment: %w", err)
	}
	return nil
}

// ListAllByUser returns every payment of the user, newest first. Exports
// bypass pagination.
func (r *PaymentRepository) ListAllByUser(ctx context.Context, userID string) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE user_id = $1 ORDER BY paid_at DESC`, paymentColumns)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, userID); err != nil {
		return nil, fmt.Errorf("list all payments: %w", err)
	}
	return payments, nil
}

// ListByUser returns a page of the user's payments, newest first.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, filter models.PaymentFilter) ([]models.Payment, int, error) {
	conditions := []string{"user_id = $1"}
	args := []interface{}{userID}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.ItemType != "" {
		conditions = append(conditions, fmt.Sprintf("item_type = $%d", len(args)+1))
		args = append(args, filter.ItemType)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("paid_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("paid_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM payments%s ORDER BY paid_at DESC LIMIT %d OFFSET %d`, paymentColumns, clause, size, offset)

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM payments" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}
