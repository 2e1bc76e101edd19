package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/park-reservation/internal/model"
	"github.com/iliyamo/park-reservation/internal/service"
)

const capacityColumns = "capacity_date, total_bookings, max_capacity"

// CapacityRepo provides access to date_capacity, the per-day booking ledger.
type CapacityRepo struct{ ext sqlx.ExtContext }

func (r *CapacityRepo) Get(ctx context.Context, date time.Time) (model.DateCapacity, error) {
	var row model.DateCapacity
	err := sqlx.GetContext(ctx, r.ext, &row,
		"SELECT "+capacityColumns+" FROM date_capacity WHERE capacity_date = ?", service.FormatDate(date))
	return row, err
}

// Acquire makes sure the row exists and then locks it.  The no-op update
// on conflict keeps a concurrent first booking from failing the insert.
func (r *CapacityRepo) Acquire(ctx context.Context, date time.Time, maxCapacity int) (model.DateCapacity, error) {
	key := service.FormatDate(date)
	if _, err := r.ext.ExecContext(ctx,
		`INSERT INTO date_capacity (capacity_date, total_bookings, max_capacity) VALUES (?, 0, ?)
		 ON DUPLICATE KEY UPDATE capacity_date = capacity_date`, key, maxCapacity); err != nil {
		return model.DateCapacity{}, err
	}
	var row model.DateCapacity
	err := sqlx.GetContext(ctx, r.ext, &row,
		"SELECT "+capacityColumns+" FROM date_capacity WHERE capacity_date = ? FOR UPDATE", key)
	return row, err
}

func (r *CapacityRepo) SetTotal(ctx context.Context, date time.Time, total int) error {
	_, err := r.ext.ExecContext(ctx,
		"UPDATE date_capacity SET total_bookings = ? WHERE capacity_date = ?", total, service.FormatDate(date))
	return err
}

func (r *CapacityRepo) ListRange(ctx context.Context, start, end time.Time) ([]model.DateCapacity, error) {
	out := []model.DateCapacity{}
	err := sqlx.SelectContext(ctx, r.ext, &out,
		"SELECT "+capacityColumns+" FROM date_capacity WHERE capacity_date BETWEEN ? AND ? ORDER BY capacity_date",
		service.FormatDate(start), service.FormatDate(end))
	return out, err
}
