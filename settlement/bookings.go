package settlement

import (
	"encoding/json"
	"time"

	"settlement-svc/models"

	"github.com/google/uuid"
)

// BuildBookings materializes one confirmed booking per settled category and
// recipient: the venue, the official, and each staff member.
func BuildBookings(payment *models.Payment, match *models.Match, venue *models.Venue, split Split, now time.Time) []models.Booking {
	details := models.BookingDetails{
		MatchDate: match.MatchDate.Format(dateLayout),
		MatchTime: match.MatchTime,
	}
	if venue != nil {
		details.VenueName = venue.Name
	}

	bookings := make([]models.Booking, 0, 2+split.StaffCount)
	add := func(category models.Category, recipientID string, gross, commission int64, d models.BookingDetails) {
		raw, _ := json.Marshal(d)
		bookings = append(bookings, models.Booking{
			ID:          uuid.NewString(),
			PaymentID:   payment.ID,
			MatchID:     match.ID,
			Category:    category,
			RecipientID: recipientID,
			GrossAmount: gross,
			Commission:  commission,
			NetAmount:   gross - commission,
			Status:      models.BookingStatusConfirmed,
			Details:     raw,
			ConfirmedAt: now,
		})
	}

	if split.Venue != nil && match.VenueID != "" {
		add(models.CategoryVenue, match.VenueID, split.Venue.Gross, split.Venue.Commission, details)
	}
	if split.Official != nil && match.OfficialID != "" {
		add(models.CategoryOfficial, match.OfficialID, split.Official.Gross, split.Official.Commission, details)
	}
	if split.Staff != nil {
		staffDetails := details
		staffDetails.StaffCount = split.StaffCount
		for _, staffID := range match.StaffRecipients() {
			add(models.CategoryStaff, staffID, split.StaffShare.Gross, split.StaffShare.Commission, staffDetails)
		}
	}
	return bookings
}
