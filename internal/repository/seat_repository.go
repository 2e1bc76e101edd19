package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/park-reservation/internal/model"
)

// SeatRepo provides access to reservation_users, one row per participant.
type SeatRepo struct{ ext sqlx.ExtContext }

func (r *SeatRepo) ListByReservation(ctx context.Context, reservationID uint64) ([]model.ReservationUser, error) {
	out := []model.ReservationUser{}
	err := sqlx.SelectContext(ctx, r.ext, &out,
		`SELECT reservation_id, user_id, is_primary, can_modify, can_transfer, status, added_at, cancelled_at
		   FROM reservation_users
		  WHERE reservation_id = ?
		  ORDER BY is_primary DESC, added_at, user_id`, reservationID)
	return out, err
}

func (r *SeatRepo) Insert(ctx context.Context, u model.ReservationUser) error {
	_, err := r.ext.ExecContext(ctx,
		`INSERT INTO reservation_users
		   (reservation_id, user_id, is_primary, can_modify, can_transfer, status, added_at, cancelled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ReservationID, u.UserID, u.IsPrimary, u.CanModify, u.CanTransfer, u.Status, u.AddedAt.UTC(), u.CancelledAt)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

func (r *SeatRepo) Update(ctx context.Context, u model.ReservationUser) error {
	return execOne(ctx, r.ext,
		`UPDATE reservation_users
		    SET is_primary = ?, can_modify = ?, can_transfer = ?, status = ?, added_at = ?, cancelled_at = ?
		  WHERE reservation_id = ? AND user_id = ?`,
		u.IsPrimary, u.CanModify, u.CanTransfer, u.Status, u.AddedAt.UTC(), u.CancelledAt, u.ReservationID, u.UserID)
}
