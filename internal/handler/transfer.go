package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/park-reservation/internal/model"
    "github.com/iliyamo/park-reservation/internal/service"
)

// TransferHandler exposes the transfer protocol.
type TransferHandler struct {
    svc *service.TransferService
    log logrus.FieldLogger
}

func NewTransferHandler(svc *service.TransferService, log logrus.FieldLogger) *TransferHandler {
    return &TransferHandler{svc: svc, log: log}
}

type initiateTransferReq struct {
    ToUserID          uint64   `json:"toUserId"`
    SpotsToTransfer   []uint64 `json:"spotsToTransfer"`
    IsPrimaryTransfer bool     `json:"isPrimaryTransfer"`
}

// Initiate handles POST /v1/reservations/:id/transfers.
func (h *TransferHandler) Initiate(c echo.Context) error {
    uid, err := currentUser(c)
    if err != nil {
        return writeError(c, h.log, err)
    }
    id, err := pathID(c, "id")
    if err != nil {
        return writeError(c, h.log, err)
    }
    var req initiateTransferReq
    if err := c.Bind(&req); err != nil {
        return badBody(c)
    }
    if req.ToUserID == 0 {
        return writeError(c, h.log, service.FieldValidation("toUserId", service.MsgRequired))
    }
    if len(req.SpotsToTransfer) == 0 {
        return writeError(c, h.log, service.FieldValidation("spotsToTransfer", service.MsgRequired))
    }
    t, err := h.svc.Initiate(c.Request().Context(), service.InitiateTransferInput{
        ReservationID:     id,
        FromUserID:        uid,
        ToUserID:          req.ToUserID,
        SpotsToTransfer:   req.SpotsToTransfer,
        IsPrimaryTransfer: req.IsPrimaryTransfer,
    })
    if err != nil {
        return writeError(c, h.log, err)
    }
    return success(c, http.StatusCreated, t)
}

// List handles GET /v1/transfers?direction=incoming|outgoing|all.
func (h *TransferHandler) List(c echo.Context) error {
    uid, err := currentUser(c)
    if err != nil {
        return writeError(c, h.log, err)
    }
    list, err := h.svc.ListForUser(c.Request().Context(), uid, c.QueryParam("direction"))
    if err != nil {
        return writeError(c, h.log, err)
    }
    return success(c, http.StatusOK, list)
}

// Accept handles POST /v1/transfers/:id/accept.
func (h *TransferHandler) Accept(c echo.Context) error {
    return h.respond(c, h.svc.Accept)
}

// Decline handles POST /v1/transfers/:id/decline.
func (h *TransferHandler) Decline(c echo.Context) error {
    return h.respond(c, h.svc.Decline)
}

func (h *TransferHandler) respond(c echo.Context, act func(ctx context.Context, transferID, userID uint64) (model.ReservationTransfer, error)) error {
    uid, err := currentUser(c)
    if err != nil {
        return writeError(c, h.log, err)
    }
    id, err := pathID(c, "id")
    if err != nil {
        return writeError(c, h.log, err)
    }
    t, err := act(c.Request().Context(), id, uid)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return success(c, http.StatusOK, t)
}
