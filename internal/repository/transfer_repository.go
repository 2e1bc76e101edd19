package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/park-reservation/internal/model"
)

const transferColumns = `id, reservation_id, from_user_id, to_user_id, spots_to_transfer, is_primary_transfer,
	status, requested_at, expires_at, responded_at`

// TransferRepo provides access to reservation_transfers.
type TransferRepo struct{ ext sqlx.ExtContext }

func (r *TransferRepo) Create(ctx context.Context, t model.ReservationTransfer) (uint64, error) {
	res, err := r.ext.ExecContext(ctx,
		`INSERT INTO reservation_transfers
		   (reservation_id, from_user_id, to_user_id, spots_to_transfer, is_primary_transfer, status, requested_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ReservationID, t.FromUserID, t.ToUserID, t.SpotsToTransfer, t.IsPrimaryTransfer, t.Status,
		t.RequestedAt.UTC(), t.ExpiresAt.UTC())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (r *TransferRepo) Get(ctx context.Context, id uint64) (model.ReservationTransfer, error) {
	var t model.ReservationTransfer
	err := sqlx.GetContext(ctx, r.ext, &t, "SELECT "+transferColumns+" FROM reservation_transfers WHERE id = ?", id)
	return t, err
}

func (r *TransferRepo) GetForUpdate(ctx context.Context, id uint64) (model.ReservationTransfer, error) {
	var t model.ReservationTransfer
	err := sqlx.GetContext(ctx, r.ext, &t,
		"SELECT "+transferColumns+" FROM reservation_transfers WHERE id = ? FOR UPDATE", id)
	return t, err
}

func (r *TransferRepo) PendingForReservation(ctx context.Context, reservationID uint64) (model.ReservationTransfer, error) {
	var t model.ReservationTransfer
	err := sqlx.GetContext(ctx, r.ext, &t,
		`SELECT `+transferColumns+` FROM reservation_transfers
		  WHERE reservation_id = ? AND status = 'PENDING'
		  ORDER BY id LIMIT 1`, reservationID)
	return t, err
}

// Resolve moves a PENDING transfer to status.  A transfer that is no
// longer pending is reported as sql.ErrNoRows.
func (r *TransferRepo) Resolve(ctx context.Context, id uint64, status string, at time.Time) error {
	return execOne(ctx, r.ext,
		"UPDATE reservation_transfers SET status = ?, responded_at = ? WHERE id = ? AND status = 'PENDING'",
		status, at.UTC(), id)
}

func (r *TransferRepo) ListForUser(ctx context.Context, userID uint64, direction string) ([]model.ReservationTransfer, error) {
	var (
		where string
		args  []any
	)
	switch direction {
	case "incoming":
		where, args = "to_user_id = ?", []any{userID}
	case "outgoing":
		where, args = "from_user_id = ?", []any{userID}
	default:
		where, args = "(to_user_id = ? OR from_user_id = ?)", []any{userID, userID}
	}
	out := []model.ReservationTransfer{}
	err := sqlx.SelectContext(ctx, r.ext, &out,
		"SELECT "+transferColumns+" FROM reservation_transfers WHERE "+where+" ORDER BY requested_at DESC, id DESC",
		args...)
	return out, err
}
