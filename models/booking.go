package models

import (
	"encoding/json"
	"time"
)

type Category string

const (
	CategoryVenue    Category = "venue"
	CategoryOfficial Category = "official"
	CategoryStaff    Category = "staff"
)

// Categories lists every settlement category in booking order.
var Categories = []Category{CategoryVenue, CategoryOfficial, CategoryStaff}

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID              string          `json:"id"`
	PaymentID       string          `json:"payment_id"`
	MatchID         string          `json:"match_id"`
	Category        Category        `json:"category"`
	RecipientID     string          `json:"recipient_id"`
	GrossAmount     int64           `json:"gross_amount"`
	Commission      int64           `json:"commission"`
	NetAmount       int64           `json:"net_amount"`
	Status          BookingStatus   `json:"status"`
	Details         json.RawMessage `json:"details,omitempty"`
	ConfirmedAt     time.Time       `json:"confirmed_at"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	RefundAmount    int64           `json:"refund_amount"`
	RefundProcessed bool            `json:"refund_processed"`
}

// BookingDetails is the denormalized display data stored with a booking.
type BookingDetails struct {
	VenueName  string `json:"venue_name,omitempty"`
	MatchDate  string `json:"match_date,omitempty"`
	MatchTime  string `json:"match_time,omitempty"`
	StaffCount int    `json:"staff_count,omitempty"`
}

// BookingRefund is the share of a refund recorded against one booking.
type BookingRefund struct {
	BookingID string
	Amount    int64
}
