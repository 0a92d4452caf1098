package domain

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate parses a "YYYY-MM-DD" calendar date as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
}

// DateOnly truncates t to midnight of its own calendar day, keeping the location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
