package services

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidPeriod = errors.New("invalid period")

type PeriodKind string

const (
	PeriodRange PeriodKind = "range"
	PeriodMonth PeriodKind = "month"
	PeriodYear  PeriodKind = "year"
)

// Period is the half-open interval [Start, End) in UTC. Key is "YYYY-MM" for
// months and "YYYY" for years. Defaulted marks the current month picked when
// the caller asked for no period at all.
type Period struct {
	Kind      PeriodKind `json:"kind"`
	Key       string     `json:"key,omitempty"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	Defaulted bool       `json:"-"`
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// HasPlans reports whether planned-vs-spent applies to this period. Only an
// explicitly requested month or year qualifies.
func (p Period) HasPlans() bool {
	if p.Defaulted {
		return false
	}
	return p.Kind == PeriodMonth || p.Kind == PeriodYear
}

// ResolvePeriod picks an explicit from/to range first (to is an inclusive
// day), then month as "YYYY" or "YYYY-MM", then the month containing now.
func ResolvePeriod(from, to, month string, now time.Time) (Period, error) {
	from, to, month = strings.TrimSpace(from), strings.TrimSpace(to), strings.TrimSpace(month)
	if from != "" || to != "" {
		if from == "" || to == "" {
			return Period{}, ErrInvalidPeriod
		}
		start, err := time.ParseInLocation(time.DateOnly, from, time.UTC)
		if err != nil {
			return Period{}, ErrInvalidPeriod
		}
		last, err := time.ParseInLocation(time.DateOnly, to, time.UTC)
		if err != nil || last.Before(start) {
			return Period{}, ErrInvalidPeriod
		}
		return Period{Kind: PeriodRange, Start: start, End: last.AddDate(0, 0, 1)}, nil
	}
	switch len(month) {
	case 0:
		now = now.UTC()
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{Kind: PeriodMonth, Key: start.Format("2006-01"), Start: start, End: start.AddDate(0, 1, 0), Defaulted: true}, nil
	case 4:
		start, err := time.ParseInLocation("2006", month, time.UTC)
		if err != nil {
			return Period{}, ErrInvalidPeriod
		}
		return Period{Kind: PeriodYear, Key: month, Start: start, End: start.AddDate(1, 0, 0)}, nil
	case 7:
		start, err := time.ParseInLocation("2006-01", month, time.UTC)
		if err != nil {
			return Period{}, ErrInvalidPeriod
		}
		return Period{Kind: PeriodMonth, Key: month, Start: start, End: start.AddDate(0, 1, 0)}, nil
	default:
		return Period{}, ErrInvalidPeriod
	}
}
