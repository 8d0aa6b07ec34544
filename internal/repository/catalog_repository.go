package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-market-api/internal/models"
)

// CatalogRepository reads tests and courses and maintains their cached
// registration counts.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// List returns a page of catalog items with the per-user registration flag
// computed as a single correlated EXISTS, avoiding per-row lookups.
func (r *CatalogRepository) List(ctx context.Context, userID string, itemType models.ItemType, filter models.CatalogFilter) ([]models.CatalogItemDetail, int, error) {
	items := itemTable(itemType)
	regs := registrationTable(itemType)
	itemCol := itemColumn(itemType)

	// Filter args are shared with the count query, which has no EXISTS
	// subquery; the userID parameter comes last so both queries bind cleanly.
	var conditions []string
	var args []interface{}

	if filter.Status == "available" {
		conditions = append(conditions, fmt.Sprintf("i.start_at <= $%d AND i.end_at >= $%d", len(args)+1, len(args)+1))
		args = append(args, time.Now().UTC())
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(i.title ILIKE $%d OR i.description ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy := "i.created_at DESC"
	if filter.Sort == models.CatalogSortPopular {
		orderBy = "i.registration_count DESC, i.created_at DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT i.id, i.title, i.description, i.price, i.start_at, i.end_at, i.registration_count, i.created_at, i.updated_at,
        EXISTS(SELECT 1 FROM %s r WHERE r.%s = i.id AND r.user_id = $%d) AS is_registered
        FROM %s i%s ORDER BY %s LIMIT %d OFFSET %d`, regs, itemCol, len(args)+1, items, clause, orderBy, size, offset)

	listArgs := append(append([]interface{}{}, args...), userID)
	var details []models.CatalogItemDetail
	if err := r.db.SelectContext(ctx, &details, query, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", items, err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s i%s", items, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", items, err)
	}
	return details, total, nil
}

// FindByID returns a catalog item by its ID.
func (r *CatalogRepository) FindByID(ctx context.Context, itemType models.ItemType, id string) (*models.CatalogItem, error) {
	query := fmt.Sprintf(`SELECT id, title, description, price, start_at, end_at, registration_count, created_at, updated_at FROM %s WHERE id = $1`, itemTable(itemType))
	var item models.CatalogItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// FindDetailByID returns a catalog item with the caller's registration flag.
func (r *CatalogRepository) FindDetailByID(ctx context.Context, userID string, itemType models.ItemType, id string) (*models.CatalogItemDetail, error) {
	query := fmt.Sprintf(`SELECT i.id, i.title, i.description, i.price, i.start_at, i.end_at, i.registration_count, i.created_at, i.updated_at,
        EXISTS(SELECT 1 FROM %s r WHERE r.%s = i.id AND r.user_id = $1) AS is_registered
        FROM %s i WHERE i.id = $2`, registrationTable(itemType), itemColumn(itemType), itemTable(itemType))
	var detail models.CatalogItemDetail
	if err := r.db.GetContext(ctx, &detail, query, userID, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdateRegistrationCount writes the cached count directly, touching no other
// column. The ledger stays authoritative; this is cache maintenance only.
func (r *CatalogRepository) UpdateRegistrationCount(ctx context.Context, itemType models.ItemType, id string, count int) error {
	query := fmt.Sprintf(`UPDATE %s SET registration_count = $2 WHERE id = $1`, itemTable(itemType))
	if _, err := r.db.ExecContext(ctx, query, id, count); err != nil {
		return fmt.Errorf("update %s registration_count: %w", itemTable(itemType), err)
	}
	return nil
}
