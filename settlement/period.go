package settlement

import "time"

const dateLayout = "2006-01-02"

// Period is a payout period: a calendar month, both ends as dates.
// End is the last day of the month; EndExclusive is the first day of the next.
type Period struct {
	Start time.Time
	End   time.Time
}

// PeriodFor returns the month containing t, evaluated in loc.
func PeriodFor(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return Period{Start: start, End: start.AddDate(0, 1, -1)}
}

func (p Period) EndExclusive() time.Time {
	return p.End.AddDate(0, 0, 1)
}

func (p Period) Previous() Period {
	return PeriodFor(p.Start.AddDate(0, 0, -1), p.Start.Location())
}

func (p Period) Contains(t time.Time) bool {
	t = t.In(p.Start.Location())
	return !t.Before(p.Start) && t.Before(p.EndExclusive())
}

// StartDate and EndDate format the bounds for DATE columns.
func (p Period) StartDate() string { return p.Start.Format(dateLayout) }
func (p Period) EndDate() string   { return p.End.Format(dateLayout) }
