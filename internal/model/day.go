package model

import (
	"fmt"
	"strings"
	"time"
)

// DayLayout is the ISO calendar-date layout used by both NASA feeds.
const DayLayout = "2006-01-02"

// Day is a calendar date in canonical YYYY-MM-DD form.
// Two records share a date exactly when their Day values are equal.
type Day string

// ParseDay parses and canonicalises an ISO date. Surrounding whitespace is ignored.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	return DayOf(t), nil
}

// MustParseDay is ParseDay for literals known to be valid.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DayOf returns the calendar day of t in t's location.
func DayOf(t time.Time) Day {
	return Day(t.Format(DayLayout))
}

// Today returns the current UTC calendar day.
func Today() Day {
	return DayOf(time.Now().UTC())
}

// Valid reports whether d is a well-formed canonical date.
func (d Day) Valid() bool {
	if d == "" {
		return false
	}
	t, err := time.Parse(DayLayout, string(d))
	return err == nil && DayOf(t) == d
}

// Time returns midnight UTC of d.
func (d Day) Time() (time.Time, error) {
	return time.Parse(DayLayout, string(d))
}

// AddDays returns d shifted by n days. An invalid d is returned unchanged.
func (d Day) AddDays(n int) Day {
	t, err := d.Time()
	if err != nil {
		return d
	}
	return DayOf(t.AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than other.
// Canonical ISO dates order lexicographically.
func (d Day) Before(other Day) bool {
	return d < other
}

func (d Day) String() string {
	return string(d)
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From Day `json:"from" yaml:"from"`
	To   Day `json:"to" yaml:"to"`
}

// NewDateRange parses both ends and checks their order.
func NewDateRange(from, to string) (DateRange, error) {
	f, err := ParseDay(from)
	if err != nil {
		return DateRange{}, fmt.Errorf("start date: %w", err)
	}
	t, err := ParseDay(to)
	if err != nil {
		return DateRange{}, fmt.Errorf("end date: %w", err)
	}
	r := DateRange{From: f, To: t}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate checks both ends are valid and From <= To.
func (r DateRange) Validate() error {
	if !r.From.Valid() || !r.To.Valid() {
		return fmt.Errorf("date range %s..%s: invalid date", r.From, r.To)
	}
	if r.To.Before(r.From) {
		return fmt.Errorf("date range %s..%s: end before start", r.From, r.To)
	}
	return nil
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d Day) bool {
	return !d.Before(r.From) && !r.To.Before(d)
}

// Days returns the number of calendar days covered by the range.
func (r DateRange) Days() int {
	from, err1 := r.From.Time()
	to, err2 := r.To.Time()
	if err1 != nil || err2 != nil || to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}

// Split breaks the range into consecutive windows of at most size days.
func (r DateRange) Split(size int) []DateRange {
	if size <= 0 || r.Validate() != nil {
		return nil
	}
	var windows []DateRange
	for start := r.From; !r.To.Before(start); start = start.AddDays(size) {
		end := start.AddDays(size - 1)
		if r.To.Before(end) {
			end = r.To
		}
		windows = append(windows, DateRange{From: start, To: end})
	}
	return windows
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.From, r.To)
}
