package models

import "time"

type RecipientRole string

const (
	RoleVenueOwner RecipientRole = "venue_owner"
	RoleOfficial   RecipientRole = "official"
	RoleStaff      RecipientRole = "staff"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
)

type Payout struct {
	ID            string        `json:"id"`
	RecipientID   string        `json:"recipient_id"`
	RecipientRole RecipientRole `json:"recipient_role"`
	PaymentID     string        `json:"payment_id"`
	MatchID       string        `json:"match_id"`
	Amount        int64         `json:"amount"`
	Status        PayoutStatus  `json:"status"`
	PeriodStart   time.Time     `json:"period_start"`
	PeriodEnd     time.Time     `json:"period_end"`
	Note          string        `json:"note,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type PayoutPeriodSummary struct {
	RecipientID        string        `json:"recipient_id"`
	RecipientRole      RecipientRole `json:"recipient_role"`
	PeriodStart        time.Time     `json:"period_start"`
	PeriodEnd          time.Time     `json:"period_end"`
	TotalPendingAmount int64         `json:"total_pending_amount"`
	TotalPendingCount  int           `json:"total_pending_count"`
	LastUpdated        time.Time     `json:"last_updated"`
}

// PayoutTrend compares a recipient's pending total with the previous period.
type PayoutTrend struct {
	RecipientID      string  `json:"recipient_id"`
	CurrentPeriod    int64   `json:"current_period"`
	PreviousPeriod   int64   `json:"previous_period"`
	PercentageChange float64 `json:"percentage_change"`
	Increasing       bool    `json:"is_increasing"`
}
