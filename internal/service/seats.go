package service

import (
	"context"
	"time"

	"github.com/iliyamo/park-reservation/internal/model"
)

// findSeat returns the row for userID in seats, or nil.
func findSeat(seats []model.ReservationUser, userID uint64) *model.ReservationUser {
	for i := range seats {
		if seats[i].UserID == userID {
			return &seats[i]
		}
	}
	return nil
}

func activeSeats(seats []model.ReservationUser) []model.ReservationUser {
	out := make([]model.ReservationUser, 0, len(seats))
	for _, s := range seats {
		if s.Active() {
			out = append(out, s)
		}
	}
	return out
}

// occupySeat moves the (reservation, user) pair to ACTIVE.
//
//	absent    -> insert want
//	cancelled -> reactivate, keeping the original AddedAt
//	active    -> Conflict
func occupySeat(ctx context.Context, repo SeatRepository, existing *model.ReservationUser, want model.ReservationUser) (model.ReservationUser, error) {
	want.Status = model.StatusActive
	want.CancelledAt = nil
	switch model.StateOf(existing) {
	case model.SeatAbsent:
		return want, repo.Insert(ctx, want)
	case model.SeatCancelled:
		want.AddedAt = existing.AddedAt
		return want, repo.Update(ctx, want)
	default:
		return model.ReservationUser{}, Conflict(MsgAlreadyParticipant)
	}
}

// vacateSeat moves an active seat to CANCELLED.
func vacateSeat(ctx context.Context, repo SeatRepository, seat model.ReservationUser, at time.Time) (model.ReservationUser, error) {
	if !seat.Active() {
		return seat, Conflict(MsgAlreadyCancelled)
	}
	seat.Status = model.StatusCancelled
	seat.CancelledAt = &at
	return seat, repo.Update(ctx, seat)
}
