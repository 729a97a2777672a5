package escrow

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gigvault/escrow/internal/jobs"
	"github.com/gigvault/escrow/internal/pagination"
	"github.com/gigvault/escrow/internal/validation"
)

// Handler provides HTTP endpoints for payment operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up payment routes. The group must run the caller
// identification middleware that sets authUserID (and authIsAdmin for
// admin-authenticated requests).
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments", h.CreatePayment)
	r.GET("/payments/history", h.History)
	r.GET("/payments/:id", h.GetPayment)
	r.POST("/payments/:id/release", h.ReleasePayment)
	r.POST("/payments/:id/refund", h.RequestRefund)
}

// CreatePayment handles POST /v1/payments
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("jobId", req.JobID),
		validation.Required("paymentMethod", req.PaymentMethod),
		validation.PositiveAmount("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	payment, err := h.service.Create(c.Request.Context(), req, c.GetString("authUserID"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrInvalidAmount):
			status = http.StatusBadRequest
			code = "invalid_amount"
		case errors.Is(err, ErrSameParty):
			status = http.StatusBadRequest
			code = "invalid_parties"
		case errors.Is(err, jobs.ErrNotFound):
			status = http.StatusNotFound
			code = "job_not_found"
		case errors.Is(err, ErrUnauthorized):
			status = http.StatusForbidden
			code = "unauthorized"
		case errors.Is(err, ErrInvalidJobState):
			status = http.StatusUnprocessableEntity
			code = "job_not_payable"
		case errors.Is(err, ErrChargeDeclined):
			status = http.StatusUnprocessableEntity
			code = "charge_declined"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payment": payment})
}

// GetPayment handles GET /v1/payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	payment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Payment not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	// Payments are visible to their parties and admins only.
	userID := c.GetString("authUserID")
	if !c.GetBool("authIsAdmin") && userID != payment.PayerID && userID != payment.PayeeID {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Not a party to this payment",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// ReleasePayment handles POST /v1/payments/:id/release
func (h *Handler) ReleasePayment(c *gin.Context) {
	payment, err := h.service.Release(c.Request.Context(),
		c.Param("id"), c.GetString("authUserID"), c.GetBool("authIsAdmin"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrUnauthorized):
			status = http.StatusForbidden
			code = "unauthorized"
		case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrConflict):
			status = http.StatusConflict
			code = "invalid_state"
		case errors.Is(err, ErrTransferFailed):
			status = http.StatusBadGateway
			code = "transfer_failed"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// RequestRefund handles POST /v1/payments/:id/refund
func (h *Handler) RequestRefund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Reason is required",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("reason", req.Reason),
		validation.MaxLength("description", req.Description, validation.MaxNotesLength),
		validation.MaxItems("evidence", len(req.Evidence), validation.MaxEvidenceRefs),
		validation.OneOf("priority", req.Priority,
			string(PriorityLow), string(PriorityMedium), string(PriorityHigh)),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	payment, err := h.service.RequestRefund(c.Request.Context(),
		c.Param("id"), req, c.GetString("authUserID"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrUnauthorized):
			status = http.StatusForbidden
			code = "unauthorized"
		case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrConflict):
			status = http.StatusConflict
			code = "invalid_state"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// History handles GET /v1/payments/history
func (h *Handler) History(c *gin.Context) {
	userID := c.GetString("authUserID")

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	direction := Direction(c.Query("direction"))
	switch direction {
	case DirectionAll, DirectionSent, DirectionReceived:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "direction must be sent or received",
		})
		return
	}

	q := HistoryQuery{UserID: userID, Direction: direction, Limit: limit + 1}
	if cur, err := pagination.Decode(c.Query("cursor")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "invalid cursor",
		})
		return
	} else if cur != nil {
		q.AfterCreatedAtNanos = cur.CreatedAt.UnixNano()
		q.AfterID = cur.ID
	}

	payments, err := h.service.History(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	payments, nextCursor, hasMore := pagination.ComputePage(payments, limit,
		func(p *Payment) (time.Time, string) { return p.CreatedAt, p.ID })

	summary, err := h.service.Summary(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payments":   payments,
		"summary":    summary,
		"nextCursor": nextCursor,
		"hasMore":    hasMore,
	})
}
