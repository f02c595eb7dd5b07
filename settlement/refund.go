package settlement

import (
	"fmt"
	"strings"

	"settlement-svc/models"

	"github.com/shopspring/decimal"
)

// Apportionment selects how a refund is recorded against a payment's bookings.
type Apportionment string

const (
	// ApportionProportional splits the refund across bookings by gross amount.
	ApportionProportional Apportionment = "proportional"
	// ApportionUniform records the whole refund amount on every booking.
	ApportionUniform Apportionment = "uniform"
)

func ParseApportionment(s string) (Apportionment, error) {
	switch a := Apportionment(strings.ToLower(strings.TrimSpace(s))); a {
	case "", ApportionProportional:
		return ApportionProportional, nil
	case ApportionUniform:
		return a, nil
	}
	return "", fmt.Errorf("unknown refund apportionment %q", s)
}

// RefundState is the refund position of a payment.
type RefundState struct {
	Refunded int64
	Status   models.RefundStatus
}

// ApplyRefund adds amount to the refunded total of a payment of size total.
// The total is capped at the payment amount and the status only moves
// forward (none, partial, full). It returns the new state and the amount
// actually applied.
func ApplyRefund(prev RefundState, amount, total int64) (RefundState, int64) {
	if prev.Status == models.RefundStatusFull || amount <= 0 {
		return prev, 0
	}
	next := prev.Refunded + amount
	if next > total {
		next = total
	}
	if next < prev.Refunded {
		next = prev.Refunded
	}
	status := models.RefundStatusPartial
	if next >= total {
		status = models.RefundStatusFull
	}
	return RefundState{Refunded: next, Status: status}, next - prev.Refunded
}

// Apportion returns the refund share of each booking. Proportional shares sum
// to amount exactly, using largest remainder on the fractional parts.
func Apportion(mode Apportionment, bookings []models.Booking, amount int64) []models.BookingRefund {
	shares := make([]models.BookingRefund, len(bookings))
	for i, b := range bookings {
		shares[i].BookingID = b.ID
	}
	if len(bookings) == 0 || amount <= 0 {
		return shares
	}
	if mode == ApportionUniform {
		for i := range shares {
			shares[i].Amount = amount
		}
		return shares
	}

	var weight int64
	for _, b := range bookings {
		weight += b.GrossAmount
	}
	if weight <= 0 {
		return shares
	}

	total := decimal.NewFromInt(weight)
	rems := make([]decimal.Decimal, len(bookings))
	var assigned int64
	for i, b := range bookings {
		q, r := decimal.NewFromInt(amount).Mul(decimal.NewFromInt(b.GrossAmount)).QuoRem(total, 0)
		shares[i].Amount = q.IntPart()
		rems[i] = r
		assigned += shares[i].Amount
	}
	for left := amount - assigned; left > 0; left-- {
		best := -1
		for i := range rems {
			if rems[i].IsZero() {
				continue
			}
			if best < 0 || rems[i].GreaterThan(rems[best]) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		shares[best].Amount++
		rems[best] = decimal.Zero
	}
	return shares
}
