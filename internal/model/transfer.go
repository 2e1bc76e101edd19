package model

import (
    "database/sql/driver"
    "encoding/json"
    "fmt"
    "time"
)

// Transfer status values.
const (
    TransferPending  = "PENDING"
    TransferAccepted = "ACCEPTED"
    TransferDeclined = "DECLINED"
    TransferExpired  = "EXPIRED"
)

// ReservationTransfer is an offer to hand one or more spots on a
// reservation to another user.  Only PENDING offers can change state.
type ReservationTransfer struct {
    ID                uint64     `db:"id" json:"id"`
    ReservationID     uint64     `db:"reservation_id" json:"reservationId"`
    FromUserID        uint64     `db:"from_user_id" json:"fromUserId"`
    ToUserID          uint64     `db:"to_user_id" json:"toUserId"`
    SpotsToTransfer   UserIDs    `db:"spots_to_transfer" json:"spotsToTransfer"`
    IsPrimaryTransfer bool       `db:"is_primary_transfer" json:"isPrimaryTransfer"`
    Status            string     `db:"status" json:"status"`
    RequestedAt       time.Time  `db:"requested_at" json:"requestedAt"`
    ExpiresAt         time.Time  `db:"expires_at" json:"expiresAt"`
    RespondedAt       *time.Time `db:"responded_at" json:"respondedAt,omitempty"`
}

// Expired reports whether a pending offer has run out of time at now.
func (t ReservationTransfer) Expired(now time.Time) bool {
    return t.Status == TransferPending && !now.Before(t.ExpiresAt)
}

// EffectiveStatus is the status a reader should see at now: a PENDING row
// past its expiry reads as EXPIRED even before anything persists it.
func (t ReservationTransfer) EffectiveStatus(now time.Time) string {
    if t.Expired(now) {
        return TransferExpired
    }
    return t.Status
}

// UserIDs is an ordered list of user IDs stored as a JSON array column.
type UserIDs []uint64

// Contains reports whether id is in the list.
func (ids UserIDs) Contains(id uint64) bool {
    for _, v := range ids {
        if v == id {
            return true
        }
    }
    return false
}

// ContainsAny reports whether any of other is in the list.
func (ids UserIDs) ContainsAny(other []uint64) bool {
    for _, id := range other {
        if ids.Contains(id) {
            return true
        }
    }
    return false
}

// Value implements driver.Valuer.
func (ids UserIDs) Value() (driver.Value, error) {
    if ids == nil {
        return "[]", nil
    }
    b, err := json.Marshal([]uint64(ids))
    if err != nil {
        return nil, err
    }
    return string(b), nil
}

// Scan implements sql.Scanner.
func (ids *UserIDs) Scan(src any) error {
    var raw []byte
    switch v := src.(type) {
    case nil:
        *ids = UserIDs{}
        return nil
    case []byte:
        raw = v
    case string:
        raw = []byte(v)
    default:
        return fmt.Errorf("UserIDs: unsupported scan type %T", src)
    }
    var out []uint64
    if err := json.Unmarshal(raw, &out); err != nil {
        return fmt.Errorf("UserIDs: %w", err)
    }
    *ids = out
    return nil
}
