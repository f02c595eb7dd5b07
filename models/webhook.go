package models

import "time"

type WebhookEventStatus string

const (
	WebhookEventReceived  WebhookEventStatus = "received"
	WebhookEventProcessed WebhookEventStatus = "processed"
	WebhookEventIgnored   WebhookEventStatus = "ignored"
	WebhookEventFailed    WebhookEventStatus = "failed"
)

// WebhookEvent is the audit record of one gateway delivery.
type WebhookEvent struct {
	EventID     string             `json:"event_id"`
	EventType   string             `json:"event_type"`
	Signature   string             `json:"signature"`
	Payload     []byte             `json:"payload"`
	Status      WebhookEventStatus `json:"status"`
	Error       string             `json:"error,omitempty"`
	Attempts    int                `json:"attempts"`
	ReceivedAt  time.Time          `json:"received_at"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
}

type Refund struct {
	ID          string    `json:"id"`
	PaymentID   string    `json:"payment_id"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	ProcessedAt time.Time `json:"processed_at"`
}

// SettlementEvent is published to Kafka after a payment changes state.
type SettlementEvent struct {
	EventType        string       `json:"event_type"` // payment.settled, payment.failed, payment.refunded
	PaymentID        string       `json:"payment_id"`
	GatewayOrderID   string       `json:"gateway_order_id"`
	GatewayPaymentID string       `json:"gateway_payment_id,omitempty"`
	MatchID          string       `json:"match_id,omitempty"`
	Amount           int64        `json:"amount"`
	RefundedAmount   int64        `json:"refunded_amount,omitempty"`
	RefundStatus     RefundStatus `json:"refund_status,omitempty"`
	Payouts          []PayoutRef  `json:"payouts,omitempty"`
	OccurredAt       time.Time    `json:"occurred_at"`
}

type PayoutRef struct {
	RecipientID   string        `json:"recipient_id"`
	RecipientRole RecipientRole `json:"recipient_role"`
	Amount        int64         `json:"amount"`
}

const (
	EventPaymentSettled  = "payment.settled"
	EventPaymentFailed   = "payment.failed"
	EventPaymentRefunded = "payment.refunded"
)
