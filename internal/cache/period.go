package cache

import (
	"math"
	"time"

	"github.com/sweeney/smart-house/internal/house"
)

// Period selects a window of the history for charts and statistics.
type Period string

const (
	PeriodLast24h   Period = "24h"
	PeriodYesterday Period = "yesterday"
	PeriodLast7Days Period = "7days"
)

// ParsePeriod returns the named period; unknown names select the last 24h.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case PeriodYesterday, PeriodLast7Days:
		return Period(s)
	}
	return PeriodLast24h
}

// Bounds returns the inclusive [from, to] window of p relative to now.
// Yesterday is the previous calendar day in now's location.
func (p Period) Bounds(now time.Time) (from, to time.Time) {
	switch p {
	case PeriodYesterday:
		y, m, d := now.AddDate(0, 0, -1).Date()
		from = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		to = from.AddDate(0, 0, 1).Add(-time.Millisecond)
		return from, to
	case PeriodLast7Days:
		return now.Add(-7 * 24 * time.Hour), now
	default:
		return now.Add(-24 * time.Hour), now
	}
}

// Range holds mean, maximum and minimum of one quantity.
type Range struct {
	Mean float64 `json:"mean"`
	Max  float64 `json:"max"`
	Min  float64 `json:"min"`
}

// Summary aggregates a set of readings.
type Summary struct {
	Count       int   `json:"count"`
	Temperature Range `json:"temperature"`
	Humidity    Range `json:"humidity"`
}

// Summarize computes count, mean, max and min of temperature and humidity.
// An empty input yields the zero Summary.
func Summarize(readings []house.Reading) Summary {
	if len(readings) == 0 {
		return Summary{}
	}

	t := Range{Max: math.Inf(-1), Min: math.Inf(1)}
	h := Range{Max: math.Inf(-1), Min: math.Inf(1)}
	for _, r := range readings {
		t.Mean += r.Temperature
		h.Mean += r.Humidity
		t.Max = math.Max(t.Max, r.Temperature)
		t.Min = math.Min(t.Min, r.Temperature)
		h.Max = math.Max(h.Max, r.Humidity)
		h.Min = math.Min(h.Min, r.Humidity)
	}
	n := float64(len(readings))
	t.Mean /= n
	h.Mean /= n

	return Summary{Count: len(readings), Temperature: t, Humidity: h}
}
