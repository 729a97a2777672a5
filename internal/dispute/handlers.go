package dispute

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/gigvault/escrow/internal/escrow"
	"github.com/gigvault/escrow/internal/validation"
)

// Handler provides the admin dispute endpoints.
type Handler struct {
	workflow *Workflow
}

// NewHandler creates a new dispute handler.
func NewHandler(workflow *Workflow) *Handler {
	return &Handler{workflow: workflow}
}

// RegisterRoutes sets up dispute routes. The group must run the admin
// authentication middleware that sets authAdminID.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/disputes", h.ListDisputes)
	r.POST("/disputes/:id/resolve", h.ResolveDispute)
}

// ListDisputes handles GET /v1/admin/disputes
func (h *Handler) ListDisputes(c *gin.Context) {
	f := Filter{
		Status:   c.Query("status"),
		Priority: escrow.Priority(c.Query("priority")),
		Limit:    100,
	}

	switch f.Status {
	case "", "open", "resolved":
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "status must be open or resolved",
		})
		return
	}
	if errs := validation.Validate(
		validation.OneOf("priority", string(f.Priority),
			string(escrow.PriorityLow), string(escrow.PriorityMedium), string(escrow.PriorityHigh)),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			f.Limit = parsed
		}
	}

	payments, err := h.workflow.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"disputes": payments,
		"count":    len(payments),
	})
}

// ResolveRequest is the admin resolution payload.
type ResolveRequest struct {
	Resolution    string          `json:"resolution" binding:"required"`
	Notes         string          `json:"notes"`
	RefundAmount  decimal.Decimal `json:"refundAmount"`
	ReleaseAmount decimal.Decimal `json:"releaseAmount"`
}

// ResolveDispute handles POST /v1/admin/disputes/:id/resolve
func (h *Handler) ResolveDispute(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Resolution is required",
		})
		return
	}

	resolution, err := escrow.ParseResolution(req.Resolution)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_resolution",
			"message": err.Error(),
		})
		return
	}
	if errs := validation.Validate(
		validation.MaxLength("notes", req.Notes, validation.MaxNotesLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	dec := escrow.Decision{
		Resolution:    resolution,
		Notes:         validation.SanitizeString(req.Notes, validation.MaxNotesLength),
		RefundAmount:  req.RefundAmount,
		ReleaseAmount: req.ReleaseAmount,
	}

	payment, err := h.workflow.Resolve(c.Request.Context(),
		c.Param("id"), c.GetString("authAdminID"), dec)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, escrow.ErrNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, escrow.ErrInvalidAmount):
			status = http.StatusBadRequest
			code = "invalid_amount"
		case errors.Is(err, escrow.ErrInvalidStatus):
			status = http.StatusConflict
			code = "not_disputed"
		case errors.Is(err, escrow.ErrAlreadyResolved), errors.Is(err, escrow.ErrConflict):
			status = http.StatusConflict
			code = "already_resolved"
		case errors.Is(err, escrow.ErrTransferFailed):
			status = http.StatusBadGateway
			code = "transfer_failed"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}
