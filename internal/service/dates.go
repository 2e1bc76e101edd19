package service

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of a civil date.
const DateLayout = "2006-01-02"

// DateOf maps an instant to its calendar day in loc.  The result is a
// civil-date key: midnight UTC carrying that day's Y-M-D, so two instants
// on the same local day compare equal with ==.
func DateOf(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a civil-date key.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// FormatDate renders a civil-date key as YYYY-MM-DD.
func FormatDate(d time.Time) string { return d.Format(DateLayout) }

// NormalizeDate strips any time-of-day from an already-civil date.
func NormalizeDate(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// Bookable reports whether date may still be booked at now: only days
// strictly after today in loc qualify, so bookings for tomorrow close at
// 11:59 PM local time today.
func Bookable(date, now time.Time, loc *time.Location) bool {
	return NormalizeDate(date).After(DateOf(now, loc))
}

// TransferDeadline is the instant transfers for date close: hour:00 in loc
// on the calendar day before date.
func TransferDeadline(date time.Time, loc *time.Location, hour int) time.Time {
	prev := NormalizeDate(date).AddDate(0, 0, -1)
	return time.Date(prev.Year(), prev.Month(), prev.Day(), hour, 0, 0, 0, loc)
}

// TransferExpiry is min(requestedAt+window, deadline).
func TransferExpiry(requestedAt time.Time, window time.Duration, deadline time.Time) time.Time {
	if exp := requestedAt.Add(window); exp.Before(deadline) {
		return exp
	}
	return deadline
}

// daysIn lists every civil date from start to end inclusive.
func daysIn(start, end time.Time) []time.Time {
	start, end = NormalizeDate(start), NormalizeDate(end)
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
