package utils

import (
	"fmt"
	"math"
	"time"
)

const Day = 24 * time.Hour

// ElapsedDays returns the fractional number of days from from to to, never
// negative.
func ElapsedDays(from, to time.Time) float64 {
	return math.Max(0, to.Sub(from).Hours()/24)
}

func AddDays(t time.Time, days int) time.Time {
	return t.Add(time.Duration(days) * Day)
}

// LoadLocation resolves an IANA timezone name. An empty name means UTC.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load location (timezone: %s): %w", timezone, err)
	}
	return loc, nil
}
