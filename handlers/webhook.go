package handlers

import (
	"context"
	"errors"
	"net/http"

	"settlement-svc/middleware"
	"settlement-svc/settlement"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"

	maxWebhookBody = 1 << 20
)

// DeliveryProcessor applies one webhook delivery.
type DeliveryProcessor interface {
	Process(ctx context.Context, d settlement.Delivery) (settlement.Outcome, error)
}

type WebhookHandler struct {
	processor DeliveryProcessor
	logger    *zap.Logger
}

func NewWebhookHandler(processor DeliveryProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, logger: logger}
}

// Razorpay handles POST /webhooks/razorpay. The body is read once and
// verified as received.
func (h *WebhookHandler) Razorpay(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read request body"})
		return
	}

	outcome, err := h.processor.Process(c.Request.Context(), settlement.Delivery{
		Body:      body,
		Signature: c.GetHeader(signatureHeader),
		EventID:   c.GetHeader(eventIDHeader),
	})
	if err != nil {
		status := webhookStatus(err)
		traceID := middleware.GetTraceID(c.Request.Context())
		h.logger.Warn("Webhook not applied",
			zap.String("trace_id", traceID),
			zap.Int("status", status),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": webhookErrorMessage(status)})
		return
	}

	c.Header("X-Settlement-Outcome", string(outcome))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// webhookStatus maps an error class to the gateway-facing status. Missing
// rows are retryable because the order may not be written yet.
func webhookStatus(err error) int {
	switch {
	case errors.Is(err, settlement.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, settlement.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func webhookErrorMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "Invalid signature"
	case http.StatusBadRequest:
		return "Invalid payload"
	}
	return "Internal server error"
}
