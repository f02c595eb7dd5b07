package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type RefundStatus string

const (
	RefundStatusNone    RefundStatus = "none"
	RefundStatusPartial RefundStatus = "partial"
	RefundStatusFull    RefundStatus = "full"
)

// Payment amounts are integer paise.
type Payment struct {
	ID                 string          `json:"id"`
	GatewayOrderID     string          `json:"gateway_order_id"`
	GatewayPaymentID   string          `json:"gateway_payment_id,omitempty"`
	MatchID            string          `json:"match_id"`
	Amount             int64           `json:"amount"`
	Status             PaymentStatus   `json:"status"`
	PaymentMethod      string          `json:"payment_method,omitempty"`
	Breakdown          AmountBreakdown `json:"amount_breakdown"`
	RefundStatus       RefundStatus    `json:"refund_status"`
	RefundedAmount     int64           `json:"refunded_amount"`
	PlatformRemainder  int64           `json:"platform_remainder"`
	FailureCode        string          `json:"failure_code,omitempty"`
	FailureDescription string          `json:"failure_description,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	FailedAt           *time.Time      `json:"failed_at,omitempty"`
	RefundedAt         *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Settled reports whether the payment has reached capture.
func (p *Payment) Settled() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusRefunded
}

// CategoryAmount is one line of a payment's breakdown. Commission and Net
// are filled in once the payment settles.
type CategoryAmount struct {
	Gross      int64 `json:"gross"`
	Commission int64 `json:"commission,omitempty"`
	Net        int64 `json:"net,omitempty"`
}

type AmountBreakdown struct {
	Venue    CategoryAmount `json:"venue"`
	Official CategoryAmount `json:"official"`
	Staff    CategoryAmount `json:"staff"`
}

func (b AmountBreakdown) GrossTotal() int64 {
	return b.Venue.Gross + b.Official.Gross + b.Staff.Gross
}

func (b AmountBreakdown) Gross(c Category) int64 {
	switch c {
	case CategoryVenue:
		return b.Venue.Gross
	case CategoryOfficial:
		return b.Official.Gross
	case CategoryStaff:
		return b.Staff.Gross
	}
	return 0
}

// Value implements driver.Valuer so the breakdown can be written to a JSONB column.
func (b AmountBreakdown) Value() (driver.Value, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for JSONB columns.
func (b *AmountBreakdown) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*b = AmountBreakdown{}
		return nil
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	}
	return errors.New("unsupported type for amount breakdown")
}

// CaptureUpdate carries the gateway fields written when a payment is captured.
type CaptureUpdate struct {
	GatewayPaymentID string
	PaymentMethod    string
	Payload          []byte
	CompletedAt      time.Time
}

// FailureUpdate carries the gateway fields written when a payment attempt fails.
type FailureUpdate struct {
	GatewayPaymentID string
	Code             string
	Description      string
	Payload          []byte
	FailedAt         time.Time
}
