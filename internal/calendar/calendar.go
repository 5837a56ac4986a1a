// Package calendar normalizes trip dates. A trip date is a calendar day represented
// as midnight UTC, regardless of the school's time zone.
package calendar

import "time"

const Layout = "2006-01-02"

// Day returns the calendar day of t as observed in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Parse reads a YYYY-MM-DD date.
func Parse(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}

// Normalize drops any time-of-day component, keeping the day as written.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Format(t time.Time) string {
	return t.Format(Layout)
}
