// Package dates parses and formats the calendar dates carried by intake
// records. All stored dates use the canonical YYYY-MM-DD form; anything else
// the parser understands is reduced to that form.
package dates

import (
	"strings"
	"time"
)

// CanonicalLayout is the only layout written to storage.
const CanonicalLayout = "2006-01-02"

// TimestampLayout is used for submission timestamps: UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// MinDate is the earliest date accepted for any date field.
var MinDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// Layouts with a time component are reduced to the date written in their own
// offset, so "2024-03-01T23:30:00-05:00" is 2024-03-01.
var layouts = []string{
	CanonicalLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseCanonical parses raw in any supported layout and returns the date at
// midnight UTC. Calendar-invalid input such as 2023-02-30 is rejected.
func ParseCanonical(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// ToCanonicalString formats t as YYYY-MM-DD in t's own location.
func ToCanonicalString(t time.Time) string {
	return t.Format(CanonicalLayout)
}

// Normalize returns the canonical form of raw, or false when raw is not a date.
func Normalize(raw string) (string, bool) {
	t, ok := ParseCanonical(raw)
	if !ok {
		return "", false
	}
	return ToCanonicalString(t), true
}

// IsBlank reports whether a date field carries no value. Nil, empty and
// whitespace-only strings are all equivalent.
func IsBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// NormalizePtr canonicalizes an optional date field. Blank input becomes nil.
// Unparseable input is returned unchanged with ok=false.
func NormalizePtr(s *string) (out *string, ok bool) {
	if IsBlank(s) {
		return nil, true
	}
	canon, ok := Normalize(*s)
	if !ok {
		return s, false
	}
	return &canon, true
}

// IsWithinRange reports min <= d <= max, comparing calendar days only.
// A zero bound is unbounded.
func IsWithinRange(d, min, max time.Time) bool {
	d = Truncate(d)
	if !min.IsZero() && d.Before(Truncate(min)) {
		return false
	}
	if !max.IsZero() && d.After(Truncate(max)) {
		return false
	}
	return true
}

// Truncate drops the time of day, keeping the calendar date of t's location.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AgeOn returns the number of whole years between dob and now.
func AgeOn(dob, now time.Time) int {
	dob, now = Truncate(dob), Truncate(now)
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// FormatTimestamp renders a submission timestamp.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts any RFC3339 timestamp, or a bare date at midnight UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), true
	}
	return ParseCanonical(raw)
}
