package model

import "time"

// Reservation and seat status values.
const (
    StatusActive    = "ACTIVE"
    StatusCancelled = "CANCELLED"
)

// Reservation is one party's booking for a single park day.
//
// Fields:
//  ID              – primary key identifier.
//  PrimaryUserID   – the participant who manages the reservation.
//  ReservationDate – civil date key (midnight UTC carrying the park-local Y-M-D).
//  Status          – ACTIVE or CANCELLED; cancellation is terminal.
//  CanTransfer     – whether spots on this reservation may be transferred.
//  CreatedAt       – creation timestamp.
type Reservation struct {
    ID              uint64    `db:"id" json:"id"`
    PrimaryUserID   uint64    `db:"primary_user_id" json:"primaryUserId"`
    ReservationDate time.Time `db:"reservation_date" json:"-"`
    Status          string    `db:"status" json:"status"`
    CanTransfer     bool      `db:"can_transfer" json:"canTransfer"`
    CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// Active reports whether the reservation still counts against capacity.
func (r Reservation) Active() bool { return r.Status == StatusActive }

// ReservationUser is a seat: one participant's spot on a reservation.
// Rows are keyed by (ReservationID, UserID) and are never deleted; a
// cancelled row may later be reactivated by a transfer or re-add.
type ReservationUser struct {
    ReservationID uint64     `db:"reservation_id" json:"reservationId"`
    UserID        uint64     `db:"user_id" json:"userId"`
    IsPrimary     bool       `db:"is_primary" json:"isPrimary"`
    CanModify     bool       `db:"can_modify" json:"canModify"`
    CanTransfer   bool       `db:"can_transfer" json:"canTransfer"`
    Status        string     `db:"status" json:"status"`
    AddedAt       time.Time  `db:"added_at" json:"addedAt"`
    CancelledAt   *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
}

// Active reports whether the seat is currently held.
func (u ReservationUser) Active() bool { return u.Status == StatusActive }

// SeatState is the lifecycle position of a (reservation, user) pair.
type SeatState int

const (
    SeatAbsent SeatState = iota
    SeatActive
    SeatCancelled
)

// StateOf classifies an optional seat row.
func StateOf(u *ReservationUser) SeatState {
    switch {
    case u == nil:
        return SeatAbsent
    case u.Active():
        return SeatActive
    default:
        return SeatCancelled
    }
}
