// Package httpapi exposes the caller-facing HTTP surface from §6: payment
// submission, refund submission, and the risk alerts/webhooks endpoints.
// Grounded on the teacher's gin handler shape (api/internal/api/handlers.go)
// — a thin Handlers struct taking its dependencies by constructor, each
// method a pure request/response translation over a domain call.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lexure-intelligence/payment-watchdog/internal/alerts"
	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
	"github.com/lexure-intelligence/payment-watchdog/internal/orchestrator"
	"github.com/lexure-intelligence/payment-watchdog/internal/refund"
	"github.com/lexure-intelligence/payment-watchdog/internal/velocity"
)

type Handlers struct {
	orchestrator  *orchestrator.Orchestrator
	refund        *refund.Orchestrator
	alertStore    *alerts.Store
	subscriptions *alerts.Subscriptions
	admission     *velocity.AdmissionControl
	logger        *zap.Logger
}

func NewHandlers(
	orch *orchestrator.Orchestrator,
	refundOrch *refund.Orchestrator,
	alertStore *alerts.Store,
	subscriptions *alerts.Subscriptions,
	admission *velocity.AdmissionControl,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		orchestrator:  orch,
		refund:        refundOrch,
		alertStore:    alertStore,
		subscriptions: subscriptions,
		admission:     admission,
		logger:        logger,
	}
}

// ExecutePayment handles POST /payments/execute.
func (h *Handlers) ExecutePayment(c *gin.Context) {
	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_FAILED", "details": gin.H{"body": err.Error()}})
		return
	}
	if details, ok := validatePaymentRequest(&req); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_FAILED", "details": details})
		return
	}

	if req.ClientIP == "" {
		req.ClientIP = c.ClientIP()
	}
	if h.admission != nil {
		req.OverThreshold = h.admission.Check(req.Email, req.ClientIP)
	}

	result, err := h.orchestrator.Execute(c.Request.Context(), &req)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindTransient && isNoPspAvailable(err) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "NO_PSP_AVAILABLE"})
			return
		}
		h.logger.Error("payments/execute: orchestrator error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RefundPayment handles POST /payments/refund.
func (h *Handlers) RefundPayment(c *gin.Context) {
	var req models.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_FAILED", "details": gin.H{"body": err.Error()}})
		return
	}
	if req.IdempotencyKey == "" || req.PaymentIdempotencyKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_FAILED", "details": gin.H{
			"idempotencyKey": "idempotencyKey and paymentIdempotencyKey are required",
		}})
		return
	}

	result, err := h.refund.Execute(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("payments/refund: refund orchestrator error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListAlerts handles GET /risk/alerts?limit=N.
func (h *Handlers) ListAlerts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	out, err := h.alertStore.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// RegisterWebhook handles POST /risk/webhooks.
func (h *Handlers) RegisterWebhook(c *gin.Context) {
	var body struct {
		EntityID   string `json:"entityId"`
		WebhookURL string `json:"webhookUrl"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.EntityID == "" || body.WebhookURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_FAILED", "details": gin.H{"body": "entityId and webhookUrl are required"}})
		return
	}
	if err := h.subscriptions.Register(c.Request.Context(), body.EntityID, body.WebhookURL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entityId": body.EntityID, "webhookUrl": body.WebhookURL})
}

// RemoveWebhook handles DELETE /risk/webhooks?entityId=…&webhookUrl=….
func (h *Handlers) RemoveWebhook(c *gin.Context) {
	entityID := c.Query("entityId")
	webhookURL := c.Query("webhookUrl")
	if entityID == "" || webhookURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_FAILED", "details": gin.H{"query": "entityId and webhookUrl are required"}})
		return
	}
	if err := h.subscriptions.Remove(c.Request.Context(), entityID, webhookURL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListWebhooks handles GET /risk/webhooks?entityId=….
func (h *Handlers) ListWebhooks(c *gin.Context) {
	entityID := c.Query("entityId")
	if entityID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_FAILED", "details": gin.H{"query": "entityId is required"}})
		return
	}
	subs, err := h.subscriptions.List(c.Request.Context(), entityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
		return
	}
	c.JSON(http.StatusOK, subs)
}

func validatePaymentRequest(req *models.PaymentRequest) (gin.H, bool) {
	details := gin.H{}
	if req.IdempotencyKey == "" {
		details["idempotencyKey"] = "required"
	}
	if req.ProviderType == "" {
		details["providerType"] = "required"
	}
	if req.Amount <= 0 {
		details["amount"] = "must be positive"
	}
	if req.CurrencyCode == "" {
		details["currencyCode"] = "required"
	}
	if len(details) > 0 {
		return details, false
	}
	return nil, true
}

func isNoPspAvailable(err error) bool {
	appErr, ok := err.(*apperr.Error)
	return ok && appErr.Code == "NO_PSP_AVAILABLE"
}
