package billing

import "time"

// Meter names a metered quantity. Quotas are keyed by the meter they limit.
type Meter string

const (
	MeterRunCount     Meter = "run_count"
	MeterTokenCount   Meter = "token_count"
	MeterTestRunCount Meter = "test_run_count"
)

// Meters lists every meter the system records
func Meters() []Meter {
	return []Meter{MeterRunCount, MeterTokenCount, MeterTestRunCount}
}

// IsValid reports whether m is one of the declared meters
func (m Meter) IsValid() bool {
	switch m {
	case MeterRunCount, MeterTokenCount, MeterTestRunCount:
		return true
	}
	return false
}

// Period is a half-open accounting interval [Start, End)
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MonthlyPeriod returns the calendar month (UTC) containing t
func MonthlyPeriod(t time.Time) Period {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// Contains reports whether t falls within the period
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}
