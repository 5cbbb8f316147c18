// Package dateutil computes schedule trigger times.
package dateutil

import (
	"time"

	"github.com/araddon/dateparse"
	"github.com/jinzhu/now"
)

const week = 7 * 24 * time.Hour

// NextDaily returns the next occurrence of hour o'clock strictly after t.
func NextDaily(t time.Time, hour int) time.Time {
	next := now.With(t).BeginningOfDay().Add(time.Duration(hour) * time.Hour)
	if !next.After(t) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// NextWeekly returns the next occurrence of weekday at hour o'clock strictly
// after t.
func NextWeekly(t time.Time, weekday time.Weekday, hour int) time.Time {
	day := now.With(t).BeginningOfDay()
	offset := (int(weekday) - int(day.Weekday()) + 7) % 7
	next := day.AddDate(0, 0, offset).Add(time.Duration(hour) * time.Hour)
	if !next.After(t) {
		next = next.Add(week)
	}
	return next
}

// Parse parses a date string strictly, e.g. a harvest lower-bound date.
func Parse(value string) (time.Time, error) {
	return dateparse.ParseStrict(value)
}

// MustParse is like Parse but panics on error.
func MustParse(value string) time.Time {
	t, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return t
}
