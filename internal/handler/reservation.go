package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/park-reservation/internal/service"
)

// ReservationHandler exposes the reservation lifecycle.  Every route sits
// behind JWTAuth.
type ReservationHandler struct {
    svc *service.ReservationService
    log logrus.FieldLogger
}

func NewReservationHandler(svc *service.ReservationService, log logrus.FieldLogger) *ReservationHandler {
    return &ReservationHandler{svc: svc, log: log}
}

type partyMemberReq struct {
    UserID      uint64 `json:"userId"`
    CanModify   bool   `json:"canModify"`
    CanTransfer bool   `json:"canTransfer"`
}

type createReservationReq struct {
    ReservationDate string           `json:"reservationDate"`
    AdditionalUsers []partyMemberReq `json:"additionalUsers"`
}

func (m partyMemberReq) member() service.PartyMember {
    return service.PartyMember{UserID: m.UserID, CanModify: m.CanModify, CanTransfer: m.CanTransfer}
}

// Create handles POST /v1/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
    uid, err := currentUser(c)
    if err != nil {
        return writeError(c, h.log, err)
    }
    var req createReservationReq
    if err := c.Bind(&req); err != nil {
        return badBody(c)
    }
    date, err := parseDateField("reservationDate", req.ReservationDate)
    if err != nil {
        return writeError(c, h.log, err)
    }
    in := service.CreateReservationInput{UserID: uid, Date: date}
    for _, m := range req.AdditionalUsers {
        in.AdditionalUsers = append(in.AdditionalUsers, m.member())
    }
    out, err := h.svc.Create(c.Request().Context(), in)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return success(c, http.StatusCreated, detailsView(out))
}

// List handles GET /v1/reservations.
func (h *ReservationHandler) List(c echo.Context) error {
    uid, err := currentUser(c)
    if err != nil {
        return writeError(c, h.log, err)
    }
    list, err := h.svc.ListForUser(c.Request().Context(), uid)
    if err != nil {
        return writeError(c, h.log, err)
    }
    views := make([]reservationView, 0, len(list))
    for _, r := range list {
        views = append(views, newReservationView(r))
    }
    return success(c, http.StatusOK, views)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
    uid, err := currentUser(c)
    if err != nil {
        return writeError(c, h.log, err)
    }
    id, err := pathID(c, "id")
    if err != nil {
        return writeError(c, h.log, err)
    }
    out, err := h.svc.Get(c.Request().Context(), id, uid)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return success(c, http.StatusOK, detailsView(out))
}

// Cancel handles DELETE /v1/reservations/:id.  The primary cancels the
// whole reservation; anyone else only gives up their own seat.
func (h *ReservationHandler) Cancel(c echo.Context) error {
    uid, err := currentUser(c)
    if err != nil {
        return writeError(c, h.log, err)
    }
    id, err := pathID(c, "id")
    if err != nil {
        return writeError(c, h.log, err)
    }
    res, err := h.svc.Cancel(c.Request().Context(), id, uid)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return success(c, http.StatusOK, echo.Map{
        "reservationId":    res.ReservationID,
        "wholeReservation": res.WholeReservation,
        "seatsReleased":    res.SeatsReleased,
    })
}

// AddUser handles POST /v1/reservations/:id/users.
func (h *ReservationHandler) AddUser(c echo.Context) error {
    uid, err := currentUser(c)
    if err != nil {
        return writeError(c, h.log, err)
    }
    id, err := pathID(c, "id")
    if err != nil {
        return writeError(c, h.log, err)
    }
    var req partyMemberReq
    if err := c.Bind(&req); err != nil {
        return badBody(c)
    }
    if req.UserID == 0 {
        return writeError(c, h.log, service.FieldValidation("userId", service.MsgRequired))
    }
    seat, err := h.svc.AddUser(c.Request().Context(), id, uid, req.member())
    if err != nil {
        return writeError(c, h.log, err)
    }
    return success(c, http.StatusCreated, seat)
}

// RemoveUser handles DELETE /v1/reservations/:id/users/:userId.
func (h *ReservationHandler) RemoveUser(c echo.Context) error {
    uid, err := currentUser(c)
    if err != nil {
        return writeError(c, h.log, err)
    }
    id, err := pathID(c, "id")
    if err != nil {
        return writeError(c, h.log, err)
    }
    target, err := pathID(c, "userId")
    if err != nil {
        return writeError(c, h.log, err)
    }
    if err := h.svc.RemoveUser(c.Request().Context(), id, uid, target); err != nil {
        return writeError(c, h.log, err)
    }
    return success(c, http.StatusOK, echo.Map{"reservationId": id, "userId": target})
}
