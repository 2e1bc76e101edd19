package model

import "time"

// DateCapacity is the ledger row for one park day.  Rows are created on
// first booking and never deleted.  0 <= TotalBookings <= MaxCapacity.
type DateCapacity struct {
    Date          time.Time `db:"capacity_date" json:"-"`
    TotalBookings int       `db:"total_bookings" json:"totalBookings"`
    MaxCapacity   int       `db:"max_capacity" json:"maxCapacity"`
}

// Remaining returns the number of unbooked spots.
func (d DateCapacity) Remaining() int {
    if r := d.MaxCapacity - d.TotalBookings; r > 0 {
        return r
    }
    return 0
}
