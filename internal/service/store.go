package service

import (
	"context"
	"time"

	"github.com/iliyamo/park-reservation/internal/model"
	"github.com/iliyamo/park-reservation/internal/queue"
)

// Missing rows are reported as sql.ErrNoRows by every repository.

type ReservationRepository interface {
	Create(ctx context.Context, r model.Reservation) (uint64, error)
	Get(ctx context.Context, id uint64) (model.Reservation, error)
	// GetForUpdate reads the row and locks it until the unit of work ends.
	GetForUpdate(ctx context.Context, id uint64) (model.Reservation, error)
	SetStatus(ctx context.Context, id uint64, status string) error
	SetPrimaryUser(ctx context.Context, id, userID uint64) error
	ListForUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
	ListForDate(ctx context.Context, date time.Time) ([]model.Reservation, error)
	// ActiveDatesForUser returns the dates in [from, to] on which userID
	// holds an active seat in an active reservation.
	ActiveDatesForUser(ctx context.Context, userID uint64, from, to time.Time) ([]time.Time, error)
}

type SeatRepository interface {
	ListByReservation(ctx context.Context, reservationID uint64) ([]model.ReservationUser, error)
	Insert(ctx context.Context, u model.ReservationUser) error
	Update(ctx context.Context, u model.ReservationUser) error
}

type CapacityRepository interface {
	Get(ctx context.Context, date time.Time) (model.DateCapacity, error)
	// Acquire locks the ledger row for date, inserting an empty row with
	// maxCapacity first when none exists.
	Acquire(ctx context.Context, date time.Time, maxCapacity int) (model.DateCapacity, error)
	SetTotal(ctx context.Context, date time.Time, total int) error
	ListRange(ctx context.Context, start, end time.Time) ([]model.DateCapacity, error)
}

type TransferRepository interface {
	Create(ctx context.Context, t model.ReservationTransfer) (uint64, error)
	Get(ctx context.Context, id uint64) (model.ReservationTransfer, error)
	GetForUpdate(ctx context.Context, id uint64) (model.ReservationTransfer, error)
	PendingForReservation(ctx context.Context, reservationID uint64) (model.ReservationTransfer, error)
	Resolve(ctx context.Context, id uint64, status string, at time.Time) error
	// ListForUser filters by direction: "incoming", "outgoing" or "" for both.
	ListForUser(ctx context.Context, userID uint64, direction string) ([]model.ReservationTransfer, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	// Lock serializes seat-adding work for one user across dates.
	Lock(ctx context.Context, id uint64) (model.User, error)
}

// Store is the engine's view of persistence.
type Store interface {
	Reservations() ReservationRepository
	Seats() SeatRepository
	Capacity() CapacityRepository
	Transfers() TransferRepository
	Users() UserRepository
	// WithinTx runs fn as one unit of work: its writes commit together
	// when fn returns nil and are discarded otherwise.  Calling WithinTx on
	// the Store handed to fn joins the running unit.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Notifier receives events after the work that produced them commits.
type Notifier interface {
	Publish(ctx context.Context, ev queue.Event) error
}
