// Package handler provides the HTTP handlers of the inspection session API.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/capture"
	"github.com/autoerp-inspection/backend/internal/config"
	"github.com/autoerp-inspection/backend/internal/inspection"
	"github.com/autoerp-inspection/backend/internal/models"
	"github.com/autoerp-inspection/backend/internal/photo"
)

// multipartOverhead is the allowance for form boundaries and headers on
// top of the largest accepted file.
const multipartOverhead = 1 << 20

// Sessions opens, finds and closes inspection sessions.
type Sessions interface {
	Open(ctx context.Context, orderID int64) (*inspection.Session, error)
	Get(id string) (*inspection.Session, error)
	Close(ctx context.Context, id string) error
}

// Handler provides HTTP handlers for inspection sessions.
type Handler struct {
	sessions  Sessions
	maxUpload int64
	logger    *zap.Logger
}

// NewHandler creates a new inspection handler.
func NewHandler(sessions Sessions, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		sessions:  sessions,
		maxUpload: cfg.MaxUploadBytes,
		logger:    logger,
	}
}

// RegisterRoutes registers the handler routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/inspections", h.Open)
	rg.GET("/inspections/:id", h.Get)
	rg.POST("/inspections/:id/next", h.Next)
	rg.POST("/inspections/:id/prev", h.Prev)
	rg.DELETE("/inspections/:id", h.Close)

	rg.POST("/inspections/:id/bodywork/clicks", h.Click)
	rg.POST("/inspections/:id/bodywork/points/:point/select", h.SelectPoint)
	rg.PATCH("/inspections/:id/bodywork/points/:point", h.UpdatePoint)
	rg.DELETE("/inspections/:id/bodywork/points/:point", h.DeletePoint)
	rg.PUT("/inspections/:id/bodywork/points/:point/photo", h.PutPointPhoto)
	rg.DELETE("/inspections/:id/bodywork/points/:point/photo", h.DeletePointPhoto)
	rg.POST("/inspections/:id/bodywork/next-view", h.NextView)
	rg.POST("/inspections/:id/bodywork/prev-view", h.PrevView)

	rg.PUT("/inspections/:id/items/:item", h.SetAnswer)
	rg.PUT("/inspections/:id/items/:item/photo", h.PutItemPhoto)
	rg.DELETE("/inspections/:id/items/:item/photo", h.DeleteItemPhoto)
}

// OpenRequest starts an inspection.
type OpenRequest struct {
	OrderID int64 `json:"order_id" binding:"required"`
}

// ClickRequest is a pointer click on the capture surface.
type ClickRequest struct {
	ClientX float64      `json:"client_x"`
	ClientY float64      `json:"client_y"`
	Rect    capture.Rect `json:"rect"`
}

// SessionResponse carries the operation result and the session snapshot,
// including the notices queued since the last response.
type SessionResponse struct {
	Data    any                     `json:"data,omitempty"`
	Session inspection.SessionState `json:"session"`
}

// Open handles starting an inspection for an order.
// @Summary Open inspection
// @Description Load the order's inventory types and mount the first step
// @Tags inspections
// @Accept json
// @Produce json
// @Param request body OpenRequest true "Order"
// @Success 201 {object} SessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /api/v1/inspections [post]
func (h *Handler) Open(c *gin.Context) {
	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid open request", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	s, err := h.sessions.Open(c.Request.Context(), req.OrderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SessionResponse{Session: s.Snapshot()})
}

// Get handles retrieving a session snapshot.
// @Summary Get inspection
// @Tags inspections
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/inspections/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Session: s.Snapshot()})
}

// Next saves the current inventory type and moves to the next one.
// @Router /api/v1/inspections/{id}/next [post]
func (h *Handler) Next(c *gin.Context) {
	h.mutate(c, func(ctx context.Context, o *inspection.Orchestrator) (any, error) {
		return nil, o.Next(ctx)
	})
}

// Prev saves the current inventory type and moves to the previous one.
// @Router /api/v1/inspections/{id}/prev [post]
func (h *Handler) Prev(c *gin.Context) {
	h.mutate(c, func(ctx context.Context, o *inspection.Orchestrator) (any, error) {
		return nil, o.Prev(ctx)
	})
}

// Close saves the current step and ends the session.
// @Summary Close inspection
// @Tags inspections
// @Param id path string true "Session ID"
// @Success 204 "No Content"
// @Failure 404 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /api/v1/inspections/{id} [delete]
func (h *Handler) Close(c *gin.Context) {
	if err := h.sessions.Close(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Click handles a click on the current view.
// @Router /api/v1/inspections/{id}/bodywork/clicks [post]
func (h *Handler) Click(c *gin.Context) {
	var req ClickRequest
	if !h.bind(c, &req) {
		return
	}
	h.bodywork(c, func(ctx context.Context, s *inspection.BodyworkStep) (any, error) {
		return s.Click(req.ClientX, req.ClientY, req.Rect)
	})
}

// SelectPoint moves the selection to a point.
// @Router /api/v1/inspections/{id}/bodywork/points/{point}/select [post]
func (h *Handler) SelectPoint(c *gin.Context) {
	point := c.Param("point")
	h.bodywork(c, func(ctx context.Context, s *inspection.BodyworkStep) (any, error) {
		return nil, s.Select(point)
	})
}

// UpdatePoint edits a point's damage type or notes.
// @Router /api/v1/inspections/{id}/bodywork/points/{point} [patch]
func (h *Handler) UpdatePoint(c *gin.Context) {
	var patch capture.PointPatch
	if !h.bind(c, &patch) {
		return
	}
	point := c.Param("point")
	h.bodywork(c, func(ctx context.Context, s *inspection.BodyworkStep) (any, error) {
		return s.UpdatePoint(point, patch)
	})
}

// DeletePoint removes a point, deleting it on the server if persisted.
// @Router /api/v1/inspections/{id}/bodywork/points/{point} [delete]
func (h *Handler) DeletePoint(c *gin.Context) {
	point := c.Param("point")
	h.bodywork(c, func(ctx context.Context, s *inspection.BodyworkStep) (any, error) {
		return nil, s.RemovePoint(ctx, point)
	})
}

// PutPointPhoto uploads or replaces a point's photo.
// @Accept multipart/form-data
// @Router /api/v1/inspections/{id}/bodywork/points/{point}/photo [put]
func (h *Handler) PutPointPhoto(c *gin.Context) {
	f, ok := h.readFile(c)
	if !ok {
		return
	}
	point := c.Param("point")
	h.bodywork(c, func(ctx context.Context, s *inspection.BodyworkStep) (any, error) {
		return s.AttachPhoto(ctx, point, f)
	})
}

// DeletePointPhoto removes a point's photo.
// @Router /api/v1/inspections/{id}/bodywork/points/{point}/photo [delete]
func (h *Handler) DeletePointPhoto(c *gin.Context) {
	point := c.Param("point")
	h.bodywork(c, func(ctx context.Context, s *inspection.BodyworkStep) (any, error) {
		return s.RemovePhoto(ctx, point)
	})
}

// NextView saves the current view and shows the next one.
// @Router /api/v1/inspections/{id}/bodywork/next-view [post]
func (h *Handler) NextView(c *gin.Context) {
	h.bodywork(c, func(ctx context.Context, s *inspection.BodyworkStep) (any, error) {
		return nil, s.NextView(ctx)
	})
}

// PrevView saves the current view and shows the previous one.
// @Router /api/v1/inspections/{id}/bodywork/prev-view [post]
func (h *Handler) PrevView(c *gin.Context) {
	h.bodywork(c, func(ctx context.Context, s *inspection.BodyworkStep) (any, error) {
		return nil, s.PrevView(ctx)
	})
}

// SetAnswer sets the status or notes of a checklist item.
// @Router /api/v1/inspections/{id}/items/{item} [put]
func (h *Handler) SetAnswer(c *gin.Context) {
	item, ok := h.itemID(c)
	if !ok {
		return
	}
	var patch inspection.AnswerPatch
	if !h.bind(c, &patch) {
		return
	}
	h.generic(c, func(ctx context.Context, s *inspection.GenericStep) (any, error) {
		return s.SetAnswer(item, patch)
	})
}

// PutItemPhoto uploads or replaces an item's photo.
// @Accept multipart/form-data
// @Router /api/v1/inspections/{id}/items/{item}/photo [put]
func (h *Handler) PutItemPhoto(c *gin.Context) {
	item, ok := h.itemID(c)
	if !ok {
		return
	}
	f, ok := h.readFile(c)
	if !ok {
		return
	}
	h.generic(c, func(ctx context.Context, s *inspection.GenericStep) (any, error) {
		return s.AttachPhoto(ctx, item, f)
	})
}

// DeleteItemPhoto removes an item's photo.
// @Router /api/v1/inspections/{id}/items/{item}/photo [delete]
func (h *Handler) DeleteItemPhoto(c *gin.Context) {
	item, ok := h.itemID(c)
	if !ok {
		return
	}
	h.generic(c, func(ctx context.Context, s *inspection.GenericStep) (any, error) {
		return s.RemovePhoto(ctx, item)
	})
}

// mutate runs fn under the session lock and answers with its result and
// a fresh snapshot.
func (h *Handler) mutate(c *gin.Context, fn func(ctx context.Context, o *inspection.Orchestrator) (any, error)) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	var result any
	err = s.Do(ctx, func(o *inspection.Orchestrator) error {
		var err error
		result, err = fn(ctx, o)
		return err
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionResponse{Data: result, Session: s.Snapshot()})
}

func (h *Handler) bodywork(c *gin.Context, fn func(ctx context.Context, s *inspection.BodyworkStep) (any, error)) {
	h.mutate(c, func(ctx context.Context, o *inspection.Orchestrator) (any, error) {
		s, err := o.Bodywork()
		if err != nil {
			return nil, err
		}
		return fn(ctx, s)
	})
}

func (h *Handler) generic(c *gin.Context, fn func(ctx context.Context, s *inspection.GenericStep) (any, error)) {
	h.mutate(c, func(ctx context.Context, o *inspection.Orchestrator) (any, error) {
		s, err := o.Generic()
		if err != nil {
			return nil, err
		}
		return fn(ctx, s)
	})
}

func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.logger.Warn("Invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return false
	}
	return true
}

func (h *Handler) itemID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("item"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "item id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

// readFile reads the multipart "file" field. Bodies far above the upload
// limit are cut off before they are buffered.
func (h *Handler) readFile(c *gin.Context) (photo.File, bool) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(c, apperror.Invalid("file", "file exceeds the upload limit of %d bytes", h.maxUpload))
			return photo.File{}, false
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "multipart field \"file\" is required",
		})
		return photo.File{}, false
	}

	src, err := header.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "failed to read uploaded file",
		})
		return photo.File{}, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		h.logger.Error("Failed to read uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "failed to read uploaded file",
		})
		return photo.File{}, false
	}

	return photo.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, true
}

// writeError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, models.ErrorResponse{
		Error:   code,
		Message: inspection.UserMessage(err),
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, apperror.ErrBoundary):
		return http.StatusConflict, "boundary"
	case apperror.IsValidation(err):
		return http.StatusUnprocessableEntity, "validation_error"
	case apperror.IsCorrelation(err):
		return http.StatusInternalServerError, "correlation_error"
	case apperror.IsNetwork(err):
		return http.StatusBadGateway, "upstream_error"
	}
	return http.StatusInternalServerError, "internal_error"
}
