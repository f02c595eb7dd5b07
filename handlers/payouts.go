package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"settlement-svc/middleware"
	"settlement-svc/models"
	"settlement-svc/settlement"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultSummaryLimit = 6
	maxSummaryLimit     = 24
)

type SummaryReader interface {
	ListSummaries(ctx context.Context, recipientID string, limit int) ([]models.PayoutPeriodSummary, error)
	GetSummary(ctx context.Context, recipientID string, period settlement.Period) (*models.PayoutPeriodSummary, error)
}

type SummaryCache interface {
	Get(ctx context.Context, recipientID string) ([]models.PayoutPeriodSummary, bool)
	Set(ctx context.Context, recipientID string, summaries []models.PayoutPeriodSummary)
}

type PayoutHandler struct {
	store  SummaryReader
	cache  SummaryCache
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// NewPayoutHandler builds the payout summary endpoints. cache may be nil.
func NewPayoutHandler(store SummaryReader, cache SummaryCache, loc *time.Location, logger *zap.Logger) *PayoutHandler {
	return &PayoutHandler{store: store, cache: cache, loc: loc, now: time.Now, logger: logger}
}

// GetSummaries returns the recipient's most recent payout period summaries.
func (h *PayoutHandler) GetSummaries(c *gin.Context) {
	recipientID := c.Param("recipient_id")
	if !middleware.CanAccessRecipient(c, recipientID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	limit := defaultSummaryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSummaryLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 24"})
			return
		}
		limit = n
	}

	// The cache holds the full maxSummaryLimit window; limit is applied on the way out.
	ctx := c.Request.Context()
	summaries, cached := []models.PayoutPeriodSummary(nil), false
	if h.cache != nil {
		summaries, cached = h.cache.Get(ctx, recipientID)
	}
	if !cached {
		var err error
		summaries, err = h.store.ListSummaries(ctx, recipientID, maxSummaryLimit)
		if err != nil {
			traceID := middleware.GetTraceID(ctx)
			h.logger.Error("Failed to list payout summaries", zap.String("trace_id", traceID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if h.cache != nil {
			h.cache.Set(ctx, recipientID, summaries)
		}
	}
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"recipient_id": recipientID, "summaries": summaries})
}

// GetTrend compares the current period's pending total with the previous period's.
func (h *PayoutHandler) GetTrend(c *gin.Context) {
	recipientID := c.Param("recipient_id")
	if !middleware.CanAccessRecipient(c, recipientID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	ctx := c.Request.Context()
	current := settlement.PeriodFor(h.now(), h.loc)
	var totals [2]int64
	for i, period := range []settlement.Period{current, current.Previous()} {
		summary, err := h.store.GetSummary(ctx, recipientID, period)
		if err != nil {
			traceID := middleware.GetTraceID(ctx)
			h.logger.Error("Failed to load payout summary", zap.String("trace_id", traceID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if summary != nil {
			totals[i] = summary.TotalPendingAmount
		}
	}

	c.JSON(http.StatusOK, Trend(recipientID, totals[0], totals[1]))
}

// Trend computes the month-over-month change, rounded to a whole percent.
// With no previous total the change is 100 if anything is pending now, else 0.
func Trend(recipientID string, current, previous int64) models.PayoutTrend {
	var change float64
	switch {
	case previous > 0:
		change = math.Round(float64(current-previous) / float64(previous) * 100)
	case current > 0:
		change = 100
	}
	return models.PayoutTrend{
		RecipientID:      recipientID,
		CurrentPeriod:    current,
		PreviousPeriod:   previous,
		PercentageChange: change,
		Increasing:       current > previous,
	}
}
