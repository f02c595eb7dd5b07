package settlement

import (
	"fmt"

	"settlement-svc/models"

	"github.com/shopspring/decimal"
)

// DefaultCommissionRate is the platform cut applied to every category unless overridden.
var DefaultCommissionRate = decimal.RequireFromString("0.10")

// RateTable holds the commission rate per category.
type RateTable map[models.Category]decimal.Decimal

func DefaultRates() RateTable {
	rates := make(RateTable, len(models.Categories))
	for _, c := range models.Categories {
		rates[c] = DefaultCommissionRate
	}
	return rates
}

// Validate requires a rate in [0, 1) for every category.
func (r RateTable) Validate() error {
	one := decimal.NewFromInt(1)
	for _, c := range models.Categories {
		rate, ok := r[c]
		if !ok {
			return fmt.Errorf("missing commission rate for %s", c)
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
			return fmt.Errorf("commission rate for %s must be in [0, 1), got %s", c, rate)
		}
	}
	return nil
}

// Commission returns round(gross × rate), half up, in minor units.
func Commission(gross int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(gross).Mul(rate).Round(0).IntPart()
}

type CategorySplit struct {
	Category   models.Category `json:"category"`
	Gross      int64           `json:"gross"`
	Commission int64           `json:"commission"`
	Net        int64           `json:"net"`
}

// Share is one staff member's part of the staff pool.
type Share struct {
	Gross      int64 `json:"gross"`
	Commission int64 `json:"commission"`
	Net        int64 `json:"net"`
}

// Split is the calculator's result for one payment.
//
// The staff pool is divided with integer floor division, so up to n-1 minor
// units of the pool's gross (and commission) are left over. That remainder is
// not paid to any recipient; it stays with the platform and is reported in
// StaffRemainder.
type Split struct {
	Venue      *CategorySplit `json:"venue,omitempty"`
	Official   *CategorySplit `json:"official,omitempty"`
	Staff      *CategorySplit `json:"staff,omitempty"`
	StaffCount int            `json:"staff_count"`
	StaffShare Share          `json:"staff_share"`
	// StaffRemainder is gross mod n and commission mod n of the staff pool.
	StaffRemainder Share `json:"staff_remainder"`
}

// Categories returns the present category splits in booking order.
func (s Split) Categories() []CategorySplit {
	out := make([]CategorySplit, 0, 3)
	for _, cs := range []*CategorySplit{s.Venue, s.Official, s.Staff} {
		if cs != nil {
			out = append(out, *cs)
		}
	}
	return out
}

// Apply writes commission and net of each settled category onto b.
// Skipped categories keep their gross with zero commission and net.
func (s Split) Apply(b models.AmountBreakdown) models.AmountBreakdown {
	set := func(dst *models.CategoryAmount, cs *CategorySplit) {
		if cs != nil {
			*dst = models.CategoryAmount{Gross: cs.Gross, Commission: cs.Commission, Net: cs.Net}
		}
	}
	set(&b.Venue, s.Venue)
	set(&b.Official, s.Official)
	set(&b.Staff, s.Staff)
	return b
}

type Calculator struct {
	rates RateTable
}

func NewCalculator(rates RateTable) (*Calculator, error) {
	if rates == nil {
		rates = DefaultRates()
	}
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{rates: rates}, nil
}

func (c *Calculator) Rate(category models.Category) decimal.Decimal {
	return c.rates[category]
}

// Split computes commission and net per category. Categories with no gross
// amount, and the staff pool when there are no staff recipients, are skipped.
func (c *Calculator) Split(b models.AmountBreakdown, staffCount int) (Split, error) {
	if staffCount < 0 {
		return Split{}, validationError("negative staff count %d", staffCount)
	}
	var s Split
	for _, category := range models.Categories {
		gross := b.Gross(category)
		if gross < 0 {
			return Split{}, validationError("negative %s amount %d", category, gross)
		}
		if gross == 0 {
			continue
		}
		commission := Commission(gross, c.rates[category])
		cs := &CategorySplit{Category: category, Gross: gross, Commission: commission, Net: gross - commission}
		switch category {
		case models.CategoryVenue:
			s.Venue = cs
		case models.CategoryOfficial:
			s.Official = cs
		case models.CategoryStaff:
			if staffCount == 0 {
				continue
			}
			s.Staff = cs
			s.StaffCount = staffCount
			s.StaffShare, s.StaffRemainder = divideStaffPool(*cs, staffCount)
		}
	}
	return s, nil
}

func divideStaffPool(pool CategorySplit, n int) (share, remainder Share) {
	count := int64(n)
	share.Gross = pool.Gross / count
	share.Commission = pool.Commission / count
	share.Net = share.Gross - share.Commission
	remainder.Gross = pool.Gross % count
	remainder.Commission = pool.Commission % count
	remainder.Net = remainder.Gross - remainder.Commission
	return share, remainder
}
