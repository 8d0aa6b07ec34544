package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-market-api/internal/middleware"
	"github.com/noah-isme/exam-market-api/internal/models"
	"github.com/noah-isme/exam-market-api/internal/service"
	"github.com/noah-isme/exam-market-api/pkg/response"
)

type catalogStoreMock struct {
	items      []models.CatalogItemDetail
	total      int
	detail     *models.CatalogItemDetail
	detailErr  error
	lastFilter models.CatalogFilter
}

func (m *catalogStoreMock) List(ctx context.Context, userID string, itemType models.ItemType, filter models.CatalogFilter) ([]models.CatalogItemDetail, int, error) {
	m.lastFilter = filter
	return m.items, m.total, nil
}

func (m *catalogStoreMock) FindDetailByID(ctx context.Context, userID string, itemType models.ItemType, id string) (*models.CatalogItemDetail, error) {
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	return m.detail, nil
}

func testClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Email: "user@example.com", Username: "tester"}
}

func TestCatalogHandlerListUnauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCatalogHandler(models.ItemTypeTest, service.NewCatalogService(&catalogStoreMock{}, zap.NewNop()), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/tests", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCatalogHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &catalogStoreMock{items: []models.CatalogItemDetail{{IsRegistered: true}}, total: 1}
	handler := NewCatalogHandler(models.ItemTypeTest, service.NewCatalogService(store, zap.NewNop()), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/tests?sort=popular&page=2&limit=5", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, testClaims())

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CatalogSortPopular, store.lastFilter.Sort)
	assert.Equal(t, 2, store.lastFilter.Page)
	assert.Equal(t, 5, store.lastFilter.PageSize)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 1, envelope.Pagination.TotalCount)
}

func TestCatalogHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &catalogStoreMock{detailErr: sql.ErrNoRows}
	handler := NewCatalogHandler(models.ItemTypeCourse, service.NewCatalogService(store, zap.NewNop()), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/courses/missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	c.Set(middleware.ContextUserKey, testClaims())

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogHandlerApplyInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCatalogHandler(models.ItemTypeTest, service.NewCatalogService(&catalogStoreMock{}, zap.NewNop()), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/tests/item-1/apply", bytes.NewBufferString(`{"amount":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}
	c.Set(middleware.ContextUserKey, testClaims())

	handler.Apply(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
