package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"settlement-svc/middleware"
	"settlement-svc/models"
	"settlement-svc/settlement"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type QuoteStore interface {
	PaymentForQuote(ctx context.Context, paymentID string) (*models.Payment, *models.Match, error)
}

type RefundHandler struct {
	store  QuoteStore
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

func NewRefundHandler(store QuoteStore, loc *time.Location, logger *zap.Logger) *RefundHandler {
	return &RefundHandler{store: store, loc: loc, now: time.Now, logger: logger}
}

type QuoteRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
}

// Quote returns the cancellation refund for a captured payment under the
// time-before-match schedule. Only the unrefunded amount is quoted.
func (h *RefundHandler) Quote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	payment, match, err := h.store.PaymentForQuote(ctx, req.PaymentID)
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		traceID := middleware.GetTraceID(ctx)
		h.logger.Error("Failed to load payment for quote", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if !payment.Settled() {
		c.JSON(http.StatusConflict, gin.H{"error": "Payment has not been captured"})
		return
	}

	remaining := payment.Amount - payment.RefundedAmount
	quote := settlement.QuoteRefund(remaining, match.StartsAt(h.loc), h.now())
	c.JSON(http.StatusOK, quote)
}
