package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/park-reservation/internal/model"
)

// Availability is the capacity picture for one day.
type Availability struct {
	Date           time.Time `json:"-"`
	IsAvailable    bool      `json:"isAvailable"`
	RemainingSpots int       `json:"remainingSpots"`
	TotalBookings  int       `json:"totalBookings"`
	MaxCapacity    int       `json:"maxCapacity"`
}

// CapacityLedger is the only code that moves DateCapacity totals.
// ReserveSeats and ReleaseSeats must run inside the caller's unit of work
// so the check and the write happen under the same row lock.  Callers
// report seat movement to metrics once that unit commits.
type CapacityLedger struct {
	MaxDaily int
	Log      logrus.FieldLogger
}

// CheckAvailability reads the ledger without locking.  A day with no row
// has every spot free.
func (l CapacityLedger) CheckAvailability(ctx context.Context, repo CapacityRepository, date time.Time) (Availability, error) {
	date = NormalizeDate(date)
	row, err := repo.Get(ctx, date)
	if errors.Is(err, sql.ErrNoRows) {
		return Availability{Date: date, IsAvailable: true, RemainingSpots: l.MaxDaily, MaxCapacity: l.MaxDaily}, nil
	}
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		Date:           date,
		IsAvailable:    row.TotalBookings < row.MaxCapacity,
		RemainingSpots: row.Remaining(),
		TotalBookings:  row.TotalBookings,
		MaxCapacity:    row.MaxCapacity,
	}, nil
}

// ReserveSeats takes count spots on date or fails with a Conflict when the
// day cannot hold them.  It returns the updated row.
func (l CapacityLedger) ReserveSeats(ctx context.Context, repo CapacityRepository, date time.Time, count int) (model.DateCapacity, error) {
	if count < 1 {
		return model.DateCapacity{}, fmt.Errorf("reserve seats: count must be positive, got %d", count)
	}
	date = NormalizeDate(date)
	row, err := repo.Acquire(ctx, date, l.MaxDaily)
	if err != nil {
		return model.DateCapacity{}, err
	}
	if row.TotalBookings+count > row.MaxCapacity {
		return model.DateCapacity{}, Conflict(MsgNoSpots)
	}
	row.TotalBookings += count
	if err := repo.SetTotal(ctx, date, row.TotalBookings); err != nil {
		return model.DateCapacity{}, err
	}
	return row, nil
}

// ReleaseSeats returns count spots to date.  The total never drops below
// zero; an underflow means the books were already wrong and is logged.
func (l CapacityLedger) ReleaseSeats(ctx context.Context, repo CapacityRepository, date time.Time, count int) error {
	if count < 1 {
		return nil
	}
	date = NormalizeDate(date)
	row, err := repo.Acquire(ctx, date, l.MaxDaily)
	if err != nil {
		return err
	}
	total := row.TotalBookings - count
	if total < 0 {
		if l.Log != nil {
			l.Log.WithFields(logrus.Fields{
				"date":      FormatDate(date),
				"total":     row.TotalBookings,
				"releasing": count,
			}).Warn("capacity release below zero; clamping")
		}
		total = 0
	}
	return repo.SetTotal(ctx, date, total)
}

// AvailabilityForRange lists the days in [start, end] that can take at
// least one more booking.  It does not know what "today" is; callers drop
// past days.
func (l CapacityLedger) AvailabilityForRange(ctx context.Context, repo CapacityRepository, start, end time.Time) ([]time.Time, error) {
	rows, err := repo.ListRange(ctx, NormalizeDate(start), NormalizeDate(end))
	if err != nil {
		return nil, err
	}
	full := make(map[time.Time]bool, len(rows))
	for _, r := range rows {
		full[NormalizeDate(r.Date)] = r.TotalBookings >= r.MaxCapacity
	}
	out := []time.Time{}
	for _, d := range daysIn(start, end) {
		if !full[d] {
			out = append(out, d)
		}
	}
	return out, nil
}
