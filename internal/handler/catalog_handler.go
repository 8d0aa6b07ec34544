package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-market-api/internal/models"
	"github.com/noah-isme/exam-market-api/internal/service"
	appErrors "github.com/noah-isme/exam-market-api/pkg/errors"
	"github.com/noah-isme/exam-market-api/pkg/response"
)

// CatalogHandler exposes browse and registration endpoints for one item
// type. Tests and courses get separate instances sharing the same code.
type CatalogHandler struct {
	itemType      models.ItemType
	catalog       *service.CatalogService
	registrations *service.RegistrationService
}

// NewCatalogHandler constructs a handler bound to an item type.
func NewCatalogHandler(itemType models.ItemType, catalog *service.CatalogService, registrations *service.RegistrationService) *CatalogHandler {
	return &CatalogHandler{itemType: itemType, catalog: catalog, registrations: registrations}
}

// List godoc
// @Summary List catalog items
// @Tags Catalog
// @Produce json
// @Param status query string false "Filter: available"
// @Param search query string false "Title/description search"
// @Param sort query string false "created or popular"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /tests [get]
func (h *CatalogHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.CatalogFilter
	filter.Status = c.Query("status")
	filter.Search = c.Query("search")
	filter.Sort = c.DefaultQuery("sort", models.CatalogSortCreated)
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	items, pagination, err := h.catalog.List(c.Request.Context(), claims.UserID, h.itemType, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get catalog item detail
// @Tags Catalog
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tests/{id} [get]
func (h *CatalogHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	detail, err := h.catalog.Get(c.Request.Context(), claims.UserID, h.itemType, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Apply godoc
// @Summary Register for an item with payment
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body service.ApplyRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tests/{id}/apply [post]
func (h *CatalogHandler) Apply(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.ItemType = h.itemType
	req.ItemID = c.Param("id")

	result, err := h.registrations.Apply(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Complete godoc
// @Summary Mark registration completed
// @Tags Registrations
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tests/{id}/complete [post]
func (h *CatalogHandler) Complete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	reg, err := h.registrations.Complete(c.Request.Context(), claims.UserID, h.itemType, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}
