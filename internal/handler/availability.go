package handler

import (
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/park-reservation/internal/config"
    "github.com/iliyamo/park-reservation/internal/service"
)

// AvailabilityHandler answers capacity questions.  It needs no session.
type AvailabilityHandler struct {
    svc   *service.ReservationService
    rules config.Rules
    log   logrus.FieldLogger
    now   func() time.Time
}

func NewAvailabilityHandler(svc *service.ReservationService, rules config.Rules, log logrus.FieldLogger, now func() time.Time) *AvailabilityHandler {
    if now == nil {
        now = time.Now
    }
    return &AvailabilityHandler{svc: svc, rules: rules, log: log, now: now}
}

// Range handles GET /v1/availability?start=YYYY-MM-DD&end=YYYY-MM-DD and
// returns the bookable days in the range.
func (h *AvailabilityHandler) Range(c echo.Context) error {
    today := service.DateOf(h.now(), h.rules.Location)
    start, end, err := parseDateRange(c.QueryParam("start"), c.QueryParam("end"), today, h.rules.MaxRangeDays)
    if err != nil {
        return writeError(c, h.log, err)
    }
    days, err := h.svc.Availability(c.Request().Context(), start, end)
    if err != nil {
        return writeError(c, h.log, err)
    }
    dates := make([]string, 0, len(days))
    for _, d := range days {
        dates = append(dates, service.FormatDate(d))
    }
    return success(c, http.StatusOK, echo.Map{
        "startDate":      service.FormatDate(start),
        "endDate":        service.FormatDate(end),
        "availableDates": dates,
    })
}

// Day handles GET /v1/availability/:date.
func (h *AvailabilityHandler) Day(c echo.Context) error {
    date, err := parseDateField("date", c.Param("date"))
    if err != nil {
        return writeError(c, h.log, err)
    }
    a, err := h.svc.CheckDate(c.Request().Context(), date)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return success(c, http.StatusOK, newCapacityView(a))
}
