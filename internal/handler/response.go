package handler

import (
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/park-reservation/internal/middleware"
    "github.com/iliyamo/park-reservation/internal/model"
    "github.com/iliyamo/park-reservation/internal/service"
)

// success writes the {"success": true, "data": ...} envelope.
func success(c echo.Context, status int, data interface{}) error {
    return c.JSON(status, echo.Map{"success": true, "data": data})
}

// writeError maps classified service errors to their status code.  Anything
// unclassified is logged and reported as a bare 500.
func writeError(c echo.Context, log logrus.FieldLogger, err error) error {
    var status int
    switch service.KindOf(err) {
    case service.KindValidation:
        status = http.StatusBadRequest
    case service.KindAuthentication:
        status = http.StatusUnauthorized
    case service.KindAuthorization:
        status = http.StatusForbidden
    case service.KindNotFound:
        status = http.StatusNotFound
    case service.KindConflict:
        status = http.StatusConflict
    default:
        log.WithError(err).WithFields(logrus.Fields{
            "method": c.Request().Method,
            "path":   c.Path(),
        }).Error("request failed")
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
    }
    body := echo.Map{"error": err.Error()}
    if e, ok := err.(*service.Error); ok && e.Field != "" {
        body["field"] = e.Field
    }
    return c.JSON(status, body)
}

func badBody(c echo.Context) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
}

// currentUser is the authenticated caller.  Routes using it sit behind
// JWTAuth, so a miss means the token carried no usable subject.
func currentUser(c echo.Context) (uint64, error) {
    uid, ok := middleware.UserID(c)
    if !ok {
        return 0, service.Unauthenticated("Unauthorized")
    }
    return uid, nil
}

func pathID(c echo.Context, name string) (uint64, error) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, service.FieldValidation(name, "Invalid "+name)
    }
    return id, nil
}

// parseDateField reads a YYYY-MM-DD value for field.
func parseDateField(field, raw string) (time.Time, error) {
    if raw == "" {
        return time.Time{}, service.FieldValidation(field, service.MsgRequired)
    }
    d, err := service.ParseDate(raw)
    if err != nil {
        return time.Time{}, service.FieldValidation(field, "Invalid date, expected YYYY-MM-DD")
    }
    return d, nil
}

type capacityView struct {
    Date           string `json:"date"`
    IsAvailable    bool   `json:"isAvailable"`
    TotalBookings  int    `json:"totalBookings"`
    MaxCapacity    int    `json:"maxCapacity"`
    RemainingSpots int    `json:"remainingSpots"`
}

func newCapacityView(a service.Availability) capacityView {
    return capacityView{
        Date:           service.FormatDate(a.Date),
        IsAvailable:    a.IsAvailable,
        TotalBookings:  a.TotalBookings,
        MaxCapacity:    a.MaxCapacity,
        RemainingSpots: a.RemainingSpots,
    }
}

func ledgerView(row model.DateCapacity) capacityView {
    return capacityView{
        Date:           service.FormatDate(row.Date),
        IsAvailable:    row.Remaining() > 0,
        TotalBookings:  row.TotalBookings,
        MaxCapacity:    row.MaxCapacity,
        RemainingSpots: row.Remaining(),
    }
}

type reservationView struct {
    ID              uint64                     `json:"id"`
    PrimaryUserID   uint64                     `json:"primaryUserId"`
    ReservationDate string                     `json:"reservationDate"`
    Status          string                     `json:"status"`
    CanTransfer     bool                       `json:"canTransfer"`
    CreatedAt       time.Time                  `json:"createdAt"`
    Users           []model.ReservationUser    `json:"users,omitempty"`
    PendingTransfer *model.ReservationTransfer `json:"pendingTransfer,omitempty"`
    Capacity        *capacityView              `json:"capacity,omitempty"`
}

func newReservationView(r model.Reservation) reservationView {
    return reservationView{
        ID:              r.ID,
        PrimaryUserID:   r.PrimaryUserID,
        ReservationDate: service.FormatDate(r.ReservationDate),
        Status:          r.Status,
        CanTransfer:     r.CanTransfer,
        CreatedAt:       r.CreatedAt,
    }
}

func detailsView(d service.ReservationDetails) reservationView {
    v := newReservationView(d.Reservation)
    v.Users = d.Users
    v.PendingTransfer = d.PendingTransfer
    if d.Capacity != nil {
        cv := ledgerView(*d.Capacity)
        v.Capacity = &cv
    }
    return v
}
