package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundQuote is the refund a payer would receive for cancelling now.
type RefundQuote struct {
	PaymentAmount   int64   `json:"payment_amount"`
	RefundAmount    int64   `json:"refund_amount"`
	RefundPercent   int     `json:"refund_percentage"`
	HoursUntilMatch float64 `json:"hours_until_match"`
	Reason          string  `json:"reason"`
}

type refundTier struct {
	minHours float64
	percent  int
	reason   string
}

var refundTiers = []refundTier{
	{24, 90, "Cancelled 24+ hours before match"},
	{12, 50, "Cancelled 12-24 hours before match"},
	{6, 25, "Cancelled 6-12 hours before match"},
}

// QuoteRefund applies the cancellation schedule to a payment of amount paise.
func QuoteRefund(amount int64, matchStart, cancelledAt time.Time) RefundQuote {
	hours := matchStart.Sub(cancelledAt).Hours()
	quote := RefundQuote{
		PaymentAmount:   amount,
		HoursUntilMatch: hours,
		Reason:          "Cancelled less than 6 hours before match - no refund",
	}
	for _, tier := range refundTiers {
		if hours >= tier.minHours {
			quote.RefundPercent = tier.percent
			quote.Reason = tier.reason
			quote.RefundAmount = decimal.NewFromInt(amount).
				Mul(decimal.NewFromInt(int64(tier.percent))).
				Div(decimal.NewFromInt(100)).
				Round(0).
				IntPart()
			break
		}
	}
	return quote
}
