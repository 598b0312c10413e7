package rates

import (
	"fmt"
	"time"
)

// Period is a named historical window served from its own cache bucket.
type Period string

const (
	PeriodWeek    Period = "7d"
	PeriodMonth   Period = "30d"
	PeriodQuarter Period = "90d"
	PeriodYear    Period = "1y"
)

// Periods lists every supported bucket.
var Periods = []Period{PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear}

// Duration converts the period to a lookback window.
func (p Period) Duration() (time.Duration, error) {
	switch p {
	case PeriodWeek:
		return 7 * 24 * time.Hour, nil
	case PeriodMonth:
		return 30 * 24 * time.Hour, nil
	case PeriodQuarter:
		return 90 * 24 * time.Hour, nil
	case PeriodYear:
		return 365 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown period %q", string(p))
	}
}

// ParsePeriod validates a period string from CLI or consumer input.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if _, err := p.Duration(); err != nil {
		return "", err
	}
	return p, nil
}
