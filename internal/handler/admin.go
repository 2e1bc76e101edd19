package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/park-reservation/internal/service"
)

// AdminHandler serves the ADMIN-only roster.
type AdminHandler struct {
    svc *service.ReservationService
    log logrus.FieldLogger
}

func NewAdminHandler(svc *service.ReservationService, log logrus.FieldLogger) *AdminHandler {
    return &AdminHandler{svc: svc, log: log}
}

// Roster handles GET /v1/admin/reservations?date=YYYY-MM-DD.
func (h *AdminHandler) Roster(c echo.Context) error {
    date, err := parseDateField("date", c.QueryParam("date"))
    if err != nil {
        return writeError(c, h.log, err)
    }
    roster, err := h.svc.ListForDate(c.Request().Context(), date)
    if err != nil {
        return writeError(c, h.log, err)
    }
    views := make([]reservationView, 0, len(roster.Reservations))
    for _, d := range roster.Reservations {
        views = append(views, detailsView(d))
    }
    return success(c, http.StatusOK, echo.Map{
        "date":         service.FormatDate(roster.Date),
        "capacity":     newCapacityView(roster.Availability),
        "reservations": views,
    })
}
