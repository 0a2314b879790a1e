package model

import (
	"strings"
	"time"
)

// TimestampLayout renders timestamps as ISO-8601 with an explicit numeric offset.
const TimestampLayout = "2006-01-02T15:04:05-07:00"

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same UTC day.
func SameDay(a, b time.Time) bool { return Day(a).Equal(Day(b)) }

// FormatDate renders a UTC day as YYYY-MM-DD.
func FormatDate(t time.Time) string { return Day(t).Format(time.DateOnly) }

// ParseDate parses YYYY-MM-DD as a UTC day.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), time.UTC)
}

// FormatTimestamp renders t with TimestampLayout; the zero time renders empty.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}

// NormalizeProfileID lowercases and trims a handle, dropping a leading "@".
func NormalizeProfileID(id string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "@"))
}
