// Package records serves the ERP records API over the PostgreSQL
// repository. It is the upstream the inspection role talks to when no
// external ERP is configured.
package records

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/capture"
	"github.com/autoerp-inspection/backend/internal/database"
	"github.com/autoerp-inspection/backend/internal/models"
)

// Handler provides HTTP handlers for the records API.
type Handler struct {
	repo   database.Repository
	logger *zap.Logger
}

// NewHandler creates a new records handler.
func NewHandler(repo database.Repository, logger *zap.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// RegisterRoutes registers the handler routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/bodywork-detail-types/", h.DetailTypes)
	rg.GET("/inventory-types/", h.InventoryTypes)
	rg.GET("/inventory-items/:type", h.InventoryItems)

	rg.GET("/bodywork-details/:id", h.BodyworkDetails)
	rg.POST("/bodywork-details/", h.CreateBodyworkDetails)
	rg.PATCH("/bodywork-details/:id/", h.UpdateBodyworkDetail)
	rg.DELETE("/bodywork-details/:id", h.DeleteBodyworkDetail)

	rg.GET("/inventory-data/:order/:type", h.InventoryData)
	rg.POST("/inventory-data/", h.UpsertInventoryData)
}

// itemsResponse wraps the checklist items of an inventory type.
type itemsResponse struct {
	Items []database.InventoryItem `json:"items"`
}

// DetailTypes handles listing the damage-type taxonomy.
// @Summary List damage types
// @Tags records
// @Produce json
// @Success 200 {array} database.DetailType
// @Router /orders/bodywork-detail-types/ [get]
func (h *Handler) DetailTypes(c *gin.Context) {
	types, err := h.repo.DetailTypes(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get damage types", err)
		return
	}
	c.JSON(http.StatusOK, types)
}

// InventoryTypes handles listing the inventory types.
// @Summary List inventory types
// @Tags records
// @Produce json
// @Success 200 {array} database.InventoryType
// @Router /orders/inventory-types/ [get]
func (h *Handler) InventoryTypes(c *gin.Context) {
	types, err := h.repo.InventoryTypes(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get inventory types", err)
		return
	}
	c.JSON(http.StatusOK, types)
}

// InventoryItems handles listing the checklist items of an inventory type.
// @Summary List checklist items
// @Tags records
// @Produce json
// @Param type path int true "Inventory type ID"
// @Success 200 {object} itemsResponse
// @Router /orders/inventory-items/{type} [get]
func (h *Handler) InventoryItems(c *gin.Context) {
	typeID, ok := h.idParam(c, "type")
	if !ok {
		return
	}

	items, err := h.repo.InventoryItems(c.Request.Context(), typeID)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get inventory items", err)
		return
	}
	c.JSON(http.StatusOK, itemsResponse{Items: items})
}

// BodyworkDetails handles listing the damage points of an order.
// @Summary List damage points
// @Tags records
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {array} database.BodyworkDetail
// @Router /orders/bodywork-details/{id} [get]
func (h *Handler) BodyworkDetails(c *gin.Context) {
	orderID, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	details, err := h.repo.BodyworkDetails(c.Request.Context(), orderID)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get damage points", err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// CreateBodyworkDetails handles creating damage points in one batch.
// @Summary Create damage points
// @Tags records
// @Accept json
// @Produce json
// @Param request body []database.DetailInput true "Points"
// @Success 201 {array} database.BodyworkDetail
// @Failure 400 {object} detailResponse
// @Router /orders/bodywork-details/ [post]
func (h *Handler) CreateBodyworkDetails(c *gin.Context) {
	var in []database.DetailInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.reject(c, err.Error())
		return
	}
	if len(in) == 0 {
		h.reject(c, "at least one point is required")
		return
	}
	for _, d := range in {
		if msg := checkDetail(d); msg != "" {
			h.reject(c, msg)
			return
		}
	}

	created, err := h.repo.CreateBodyworkDetails(c.Request.Context(), in)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to create damage points", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateBodyworkDetail handles replacing one damage point.
// @Summary Update damage point
// @Tags records
// @Accept json
// @Produce json
// @Param id path int true "Detail ID"
// @Param request body database.DetailInput true "Point"
// @Success 200 {object} database.BodyworkDetail
// @Failure 404 {object} detailResponse
// @Router /orders/bodywork-details/{id}/ [patch]
func (h *Handler) UpdateBodyworkDetail(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	var in database.DetailInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.reject(c, err.Error())
		return
	}
	if msg := checkDetail(in); msg != "" {
		h.reject(c, msg)
		return
	}

	updated, err := h.repo.UpdateBodyworkDetail(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to update damage point", err)
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, detailResponse{Detail: "damage point not found"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteBodyworkDetail handles deleting one damage point.
// @Summary Delete damage point
// @Tags records
// @Param id path int true "Detail ID"
// @Success 204
// @Failure 404 {object} detailResponse
// @Router /orders/bodywork-details/{id} [delete]
func (h *Handler) DeleteBodyworkDetail(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	if err := h.repo.DeleteBodyworkDetail(c.Request.Context(), id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			c.JSON(http.StatusNotFound, detailResponse{Detail: "damage point not found"})
			return
		}
		h.fail(c, http.StatusInternalServerError, "Failed to delete damage point", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// InventoryData handles listing the saved answers of an order for one
// inventory type. An order without answers is a 404.
// @Summary List checklist answers
// @Tags records
// @Produce json
// @Param order path int true "Order ID"
// @Param type path int true "Inventory type ID"
// @Success 200 {array} database.InventoryData
// @Failure 404 {object} detailResponse
// @Router /orders/inventory-data/{order}/{type} [get]
func (h *Handler) InventoryData(c *gin.Context) {
	orderID, ok := h.idParam(c, "order")
	if !ok {
		return
	}
	typeID, ok := h.idParam(c, "type")
	if !ok {
		return
	}

	data, err := h.repo.InventoryData(c.Request.Context(), orderID, typeID)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get checklist answers", err)
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusNotFound, detailResponse{Detail: "no answers for this order"})
		return
	}
	c.JSON(http.StatusOK, data)
}

// UpsertInventoryData handles writing a batch of answers.
// @Summary Save checklist answers
// @Tags records
// @Accept json
// @Produce json
// @Param request body []database.InventoryData true "Answers"
// @Success 200 {array} database.InventoryData
// @Failure 400 {object} detailResponse
// @Router /orders/inventory-data/ [post]
func (h *Handler) UpsertInventoryData(c *gin.Context) {
	var in []database.InventoryData
	if err := c.ShouldBindJSON(&in); err != nil {
		h.reject(c, err.Error())
		return
	}
	for i := range in {
		if len(in[i].Data) == 0 || !json.Valid(in[i].Data) {
			in[i].Data = json.RawMessage("{}")
		}
	}

	if len(in) > 0 {
		if err := h.repo.UpsertInventoryData(c.Request.Context(), in); err != nil {
			h.fail(c, http.StatusInternalServerError, "Failed to save checklist answers", err)
			return
		}
	}
	c.JSON(http.StatusOK, in)
}

// detailResponse is the error body of the records API.
type detailResponse struct {
	Detail string `json:"detail"`
}

func checkDetail(d database.DetailInput) string {
	if d.OrderID <= 0 {
		return "order_id must be positive"
	}
	if !models.ViewKey(d.View).Valid() {
		return "view " + strconv.Quote(d.View) + " is not a known body view"
	}
	if utf8.RuneCountInString(d.DetailNotes) > capture.MaxNotesLength {
		return "detail_notes is too long"
	}
	return ""
}

func (h *Handler) idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.reject(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) reject(c *gin.Context, msg string) {
	h.logger.Warn("Invalid records request", zap.String("path", c.FullPath()), zap.String("detail", msg))
	c.JSON(http.StatusBadRequest, detailResponse{Detail: msg})
}

func (h *Handler) fail(c *gin.Context, status int, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	c.JSON(status, detailResponse{Detail: msg})
}
