package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/park-reservation/internal/model"
	"github.com/iliyamo/park-reservation/internal/service"
)

const reservationColumns = "r.id, r.primary_user_id, r.reservation_date, r.status, r.can_transfer, r.created_at"

// ReservationRepo provides access to the reservations table.
type ReservationRepo struct{ ext sqlx.ExtContext }

func (r *ReservationRepo) Create(ctx context.Context, res model.Reservation) (uint64, error) {
	out, err := r.ext.ExecContext(ctx,
		`INSERT INTO reservations (primary_user_id, reservation_date, status, can_transfer, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		res.PrimaryUserID, service.FormatDate(res.ReservationDate), res.Status, res.CanTransfer, res.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (r *ReservationRepo) Get(ctx context.Context, id uint64) (model.Reservation, error) {
	var res model.Reservation
	err := sqlx.GetContext(ctx, r.ext, &res,
		"SELECT "+reservationColumns+" FROM reservations r WHERE r.id = ?", id)
	return res, err
}

// GetForUpdate locks the row until the surrounding transaction ends.
func (r *ReservationRepo) GetForUpdate(ctx context.Context, id uint64) (model.Reservation, error) {
	var res model.Reservation
	err := sqlx.GetContext(ctx, r.ext, &res,
		"SELECT "+reservationColumns+" FROM reservations r WHERE r.id = ? FOR UPDATE", id)
	return res, err
}

func (r *ReservationRepo) SetStatus(ctx context.Context, id uint64, status string) error {
	return execOne(ctx, r.ext, "UPDATE reservations SET status = ? WHERE id = ?", status, id)
}

func (r *ReservationRepo) SetPrimaryUser(ctx context.Context, id, userID uint64) error {
	return execOne(ctx, r.ext, "UPDATE reservations SET primary_user_id = ? WHERE id = ?", userID, id)
}

func (r *ReservationRepo) ListForUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	out := []model.Reservation{}
	err := sqlx.SelectContext(ctx, r.ext, &out,
		`SELECT `+reservationColumns+`
		   FROM reservations r
		   JOIN reservation_users ru ON ru.reservation_id = r.id
		  WHERE ru.user_id = ? AND ru.status = 'ACTIVE'
		  ORDER BY r.reservation_date DESC, r.id DESC`, userID)
	return out, err
}

func (r *ReservationRepo) ListForDate(ctx context.Context, date time.Time) ([]model.Reservation, error) {
	out := []model.Reservation{}
	err := sqlx.SelectContext(ctx, r.ext, &out,
		"SELECT "+reservationColumns+" FROM reservations r WHERE r.reservation_date = ? ORDER BY r.id",
		service.FormatDate(date))
	return out, err
}

func (r *ReservationRepo) ActiveDatesForUser(ctx context.Context, userID uint64, from, to time.Time) ([]time.Time, error) {
	out := []time.Time{}
	err := sqlx.SelectContext(ctx, r.ext, &out,
		`SELECT DISTINCT r.reservation_date
		   FROM reservations r
		   JOIN reservation_users ru ON ru.reservation_id = r.id
		  WHERE ru.user_id = ? AND ru.status = 'ACTIVE' AND r.status = 'ACTIVE'
		    AND r.reservation_date BETWEEN ? AND ?
		  ORDER BY r.reservation_date`,
		userID, service.FormatDate(from), service.FormatDate(to))
	return out, err
}

// execOne runs an UPDATE that must hit exactly one row.
func execOne(ctx context.Context, ext sqlx.ExecerContext, query string, args ...any) error {
	res, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
