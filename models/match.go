package models

import "time"

type MatchPaymentStatus string

const (
	MatchPaymentUnpaid   MatchPaymentStatus = "unpaid"
	MatchPaymentPaid     MatchPaymentStatus = "paid"
	MatchPaymentFailed   MatchPaymentStatus = "failed"
	MatchPaymentRefunded MatchPaymentStatus = "refunded"
)

type Match struct {
	ID            string             `json:"id"`
	VenueID       string             `json:"venue_id"`
	OfficialID    string             `json:"official_id,omitempty"`
	StaffIDs      []string           `json:"staff_ids"`
	MatchDate     time.Time          `json:"match_date"`
	MatchTime     string             `json:"match_time"`
	PaymentStatus MatchPaymentStatus `json:"payment_status"`
	PaymentID     string             `json:"payment_id,omitempty"`
}

// StaffRecipients returns the distinct, non-empty staff ids in list order.
func (m *Match) StaffRecipients() []string {
	seen := make(map[string]bool, len(m.StaffIDs))
	ids := make([]string, 0, len(m.StaffIDs))
	for _, id := range m.StaffIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// StartsAt combines the match date and kick-off time in loc.
func (m *Match) StartsAt(loc *time.Location) time.Time {
	var clock time.Time
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, m.MatchTime); err == nil {
			clock = t
			break
		}
	}
	y, mo, d := m.MatchDate.Date()
	return time.Date(y, mo, d, clock.Hour(), clock.Minute(), clock.Second(), 0, loc)
}

type Venue struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id,omitempty"`
}
