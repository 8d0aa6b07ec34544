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

// RegistrationRepository persists the registration ledgers, one table per
// item type. Item-specific columns are aliased so both variants share the
// Registration model.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func registrationSelect(itemType models.ItemType) string {
	return fmt.Sprintf(`SELECT id, user_id, %s AS item_id, status, %s AS registered_at, completed_at, cancelled_at FROM %s`,
		itemColumn(itemType), registeredAtColumn(itemType), registrationTable(itemType))
}

// FindByUserAndItem returns the registration for a (user, item) pair.
func (r *RegistrationRepository) FindByUserAndItem(ctx context.Context, itemType models.ItemType, userID, itemID string) (*models.Registration, error) {
	query := registrationSelect(itemType) + fmt.Sprintf(" WHERE user_id = $1 AND %s = $2", itemColumn(itemType))
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, userID, itemID); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Exists reports whether any registration exists for the pair.
func (r *RegistrationRepository) Exists(ctx context.Context, itemType models.ItemType, userID, itemID string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE user_id = $1 AND %s = $2)", registrationTable(itemType), itemColumn(itemType))
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, itemID); err != nil {
		return false, fmt.Errorf("check registration exists: %w", err)
	}
	return exists, nil
}

// CreateTx inserts a registration inside the caller's transaction so it
// commits together with its payment.
func (r *RegistrationRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, itemType models.ItemType, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = time.Now().UTC()
	}
	if reg.Status == "" {
		reg.Status = InitialRegistrationStatus(itemType)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, user_id, %s, status, %s) VALUES ($1, $2, $3, $4, $5)`,
		registrationTable(itemType), itemColumn(itemType), registeredAtColumn(itemType))
	if _, err := tx.ExecContext(ctx, query, reg.ID, reg.UserID, reg.ItemID, reg.Status, reg.RegisteredAt); err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// DeleteByUserAndItemTx hard-deletes the pair's registration inside the
// caller's transaction. Payment cancellation removes the row rather than
// flipping its status.
func (r *RegistrationRepository) DeleteByUserAndItemTx(ctx context.Context, tx *sqlx.Tx, itemType models.ItemType, userID, itemID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND %s = $2`, registrationTable(itemType), itemColumn(itemType))
	if _, err := tx.ExecContext(ctx, query, userID, itemID); err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return nil
}

// Complete marks a registration completed.
func (r *RegistrationRepository) Complete(ctx context.Context, itemType models.ItemType, id string, completedAt time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $2, completed_at = $3 WHERE id = $1`, registrationTable(itemType))
	if _, err := r.db.ExecContext(ctx, query, id, models.RegistrationStatusCompleted, completedAt); err != nil {
		return fmt.Errorf("complete registration: %w", err)
	}
	return nil
}

// CountByItemIDs computes exact per-item registration counts from the ledger
// in one aggregated query. Items with no rows are absent from the result.
func (r *RegistrationRepository) CountByItemIDs(ctx context.Context, itemType models.ItemType, itemIDs []string) ([]models.ItemCount, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(itemIDs))
	args := make([]interface{}, len(itemIDs))
	for i, id := range itemIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT %s AS item_id, COUNT(*) AS count FROM %s WHERE %s IN (%s) GROUP BY %s`,
		itemColumn(itemType), registrationTable(itemType), itemColumn(itemType), strings.Join(placeholders, ","), itemColumn(itemType))
	var counts []models.ItemCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	return counts, nil
}
