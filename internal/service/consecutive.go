package service

import (
	"context"
	"sort"
	"time"
)

// ConsecutiveValidator enforces the per-user cap on back-to-back park days.
type ConsecutiveValidator struct {
	MaxDays int
}

// Validate checks that booking candidate would not give userID a run of
// more than MaxDays consecutive days.  Only days within MaxDays of the
// candidate can join its run, so that is all that is fetched.  Storage
// errors are returned as-is.
func (v ConsecutiveValidator) Validate(ctx context.Context, reservations ReservationRepository, userID uint64, candidate time.Time) error {
	candidate = NormalizeDate(candidate)
	from := candidate.AddDate(0, 0, -v.MaxDays)
	to := candidate.AddDate(0, 0, v.MaxDays)

	existing, err := reservations.ActiveDatesForUser(ctx, userID, from, to)
	if err != nil {
		return err
	}
	if LongestRun(append(existing, candidate)) > v.MaxDays {
		return ConsecutiveLimit(v.MaxDays)
	}
	return nil
}

// LongestRun returns the length of the longest sequence of calendar days
// in days that are each exactly one day apart.  Duplicates count once.
func LongestRun(days []time.Time) int {
	if len(days) == 0 {
		return 0
	}
	seen := make(map[time.Time]struct{}, len(days))
	uniq := make([]time.Time, 0, len(days))
	for _, d := range days {
		d = NormalizeDate(d)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		uniq = append(uniq, d)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].Before(uniq[j]) })

	best, run := 1, 1
	for i := 1; i < len(uniq); i++ {
		if uniq[i-1].AddDate(0, 0, 1).Equal(uniq[i]) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
