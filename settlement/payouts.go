package settlement

import (
	"fmt"
	"time"

	"settlement-svc/models"

	"github.com/google/uuid"
)

// SkippedRecipient is a payout that could not be created.
type SkippedRecipient struct {
	Role        models.RecipientRole
	RecipientID string
	Reason      string
}

// PayoutCandidates lists the user ids that must resolve before payouts are written.
func PayoutCandidates(match *models.Match, split Split) []string {
	ids := make([]string, 0, 1+split.StaffCount)
	if split.Official != nil && match.OfficialID != "" {
		ids = append(ids, match.OfficialID)
	}
	if split.Staff != nil {
		ids = append(ids, match.StaffRecipients()...)
	}
	return ids
}

// BuildPayouts creates one pending payout per recipient with a positive net
// amount. The venue is paid to its owner; officials and staff are paid only
// when their id is in resolved.
func BuildPayouts(payment *models.Payment, match *models.Match, venue *models.Venue, split Split, resolved map[string]bool, period Period, now time.Time) ([]models.Payout, []SkippedRecipient) {
	var (
		payouts []models.Payout
		skipped []SkippedRecipient
	)
	add := func(role models.RecipientRole, recipientID string, amount int64) {
		if amount <= 0 {
			return
		}
		payouts = append(payouts, models.Payout{
			ID:            uuid.NewString(),
			RecipientID:   recipientID,
			RecipientRole: role,
			PaymentID:     payment.ID,
			MatchID:       match.ID,
			Amount:        amount,
			Status:        models.PayoutStatusPending,
			PeriodStart:   period.Start,
			PeriodEnd:     period.End,
			Note:          fmt.Sprintf("%s payout for match %s", role, match.ID),
			CreatedAt:     now,
		})
	}

	if split.Venue != nil {
		if venue == nil || venue.OwnerID == "" {
			skipped = append(skipped, SkippedRecipient{Role: models.RoleVenueOwner, RecipientID: match.VenueID, Reason: "venue owner not found"})
		} else {
			add(models.RoleVenueOwner, venue.OwnerID, split.Venue.Net)
		}
	}
	if split.Official != nil && match.OfficialID != "" {
		if resolved[match.OfficialID] {
			add(models.RoleOfficial, match.OfficialID, split.Official.Net)
		} else {
			skipped = append(skipped, SkippedRecipient{Role: models.RoleOfficial, RecipientID: match.OfficialID, Reason: "recipient not found"})
		}
	}
	if split.Staff != nil {
		for _, staffID := range match.StaffRecipients() {
			if !resolved[staffID] {
				skipped = append(skipped, SkippedRecipient{Role: models.RoleStaff, RecipientID: staffID, Reason: "recipient not found"})
				continue
			}
			add(models.RoleStaff, staffID, split.StaffShare.Net)
		}
	}
	return payouts, skipped
}
