package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-market-api/internal/models"
	appErrors "github.com/noah-isme/exam-market-api/pkg/errors"
)

type catalogStore interface {
	List(ctx context.Context, userID string, itemType models.ItemType, filter models.CatalogFilter) ([]models.CatalogItemDetail, int, error)
	FindDetailByID(ctx context.Context, userID string, itemType models.ItemType, id string) (*models.CatalogItemDetail, error)
}

// CatalogService serves browse and detail reads over tests and courses.
type CatalogService struct {
	catalog catalogStore
	logger  *zap.Logger
}

// NewCatalogService wires the catalog read service.
func NewCatalogService(catalog catalogStore, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{catalog: catalog, logger: logger}
}

// List returns a page of catalog items for the user, each carrying its
// is_registered flag and cached registration count.
func (s *CatalogService) List(ctx context.Context, userID string, itemType models.ItemType, filter models.CatalogFilter) ([]models.CatalogItemDetail, *models.Pagination, error) {
	if !itemType.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid item type")
	}
	if filter.Sort != "" && filter.Sort != models.CatalogSortCreated && filter.Sort != models.CatalogSortPopular {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported sort: %s", filter.Sort))
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	items, total, err := s.catalog.List(ctx, userID, itemType, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list catalog")
	}

	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one catalog item with the caller's registration flag.
func (s *CatalogService) Get(ctx context.Context, userID string, itemType models.ItemType, id string) (*models.CatalogItemDetail, error) {
	if !itemType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid item type")
	}

	detail, err := s.catalog.FindDetailByID(ctx, userID, itemType, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", itemType))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load catalog item")
	}
	return detail, nil
}
