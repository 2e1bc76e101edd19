// Package queue defines the reservation events exchanged over RabbitMQ and
// the publisher and consumer that move them.
package queue

// Event types published after a booking change commits.
const (
    ReservationCreated     = "reservation.created"
    ReservationCancelled   = "reservation.cancelled"
    ReservationUserAdded   = "reservation.user_added"
    ReservationUserRemoved = "reservation.user_removed"
    TransferRequested      = "transfer.requested"
    TransferAccepted       = "transfer.accepted"
    TransferDeclined       = "transfer.declined"
    TransferExpired        = "transfer.expired"
)

// Event carries enough for the notification consumer to render a line
// without querying the database.  Optional fields are zero when they do
// not apply to Type.
type Event struct {
    ID              string   `json:"id"`
    Type            string   `json:"type"`
    ReservationID   uint64   `json:"reservationId"`
    ReservationDate string   `json:"reservationDate"`
    UserID          uint64   `json:"userId"`
    TargetUserID    uint64   `json:"targetUserId,omitempty"`
    TransferID      uint64   `json:"transferId,omitempty"`
    Spots           []uint64 `json:"spots,omitempty"`
    Seats           int      `json:"seats,omitempty"`
    OccurredAt      string   `json:"occurredAt"`
}
