package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/park-reservation/internal/config"
	"github.com/iliyamo/park-reservation/internal/metrics"
	"github.com/iliyamo/park-reservation/internal/model"
	"github.com/iliyamo/park-reservation/internal/queue"
)

// InitiateTransferInput is a request by FromUserID to hand spots on a
// reservation to ToUserID.
type InitiateTransferInput struct {
	ReservationID     uint64
	FromUserID        uint64
	ToUserID          uint64
	SpotsToTransfer   []uint64
	IsPrimaryTransfer bool
}

// TransferService runs the transfer protocol.  Expiry is lazy: a PENDING
// offer past ExpiresAt is persisted as EXPIRED by the next write path that
// touches it and reported as EXPIRED by reads.
type TransferService struct {
	store     Store
	rules     config.Rules
	validator ConsecutiveValidator
	ledger    CapacityLedger
	events    Notifier
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewTransferService wires the transfer state machine.  events may be nil;
// now defaults to time.Now.
func NewTransferService(store Store, rules config.Rules, events Notifier, log logrus.FieldLogger, now func() time.Time) *TransferService {
	if now == nil {
		now = time.Now
	}
	return &TransferService{
		store:     store,
		rules:     rules,
		validator: ConsecutiveValidator{MaxDays: rules.MaxConsecutiveDays},
		ledger:    CapacityLedger{MaxDaily: rules.MaxDailyCapacity, Log: log},
		events:    events,
		log:       log,
		now:       now,
	}
}

// Deadline is when transfers for date close.
func (s *TransferService) Deadline(date time.Time) time.Time {
	return TransferDeadline(date, s.rules.Location, s.rules.TransferDeadlineHour)
}

// Initiate records a PENDING transfer after checking eligibility.
func (s *TransferService) Initiate(ctx context.Context, in InitiateTransferInput) (model.ReservationTransfer, error) {
	var (
		out     model.ReservationTransfer
		date    time.Time
		expired *model.ReservationTransfer
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		res, err := lockActiveReservation(ctx, tx, in.ReservationID)
		if err != nil {
			return err
		}
		date = res.ReservationDate
		if !res.CanTransfer {
			return Forbidden(MsgTransfersNotAllowed)
		}
		now := s.now()

		pending, err := tx.Transfers().PendingForReservation(ctx, in.ReservationID)
		switch {
		case err == nil && pending.Expired(now):
			if err := tx.Transfers().Resolve(ctx, pending.ID, model.TransferExpired, now); err != nil {
				return err
			}
			pending.Status = model.TransferExpired
			expired = &pending
		case err == nil:
			return Conflict(MsgTransferPending)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		deadline := s.Deadline(res.ReservationDate)
		if !now.Before(deadline) {
			return Validation(MsgDeadlinePassed)
		}

		seats, err := tx.Seats().ListByReservation(ctx, in.ReservationID)
		if err != nil {
			return err
		}
		if err := checkSpots(res, seats, in); err != nil {
			return err
		}

		if in.ToUserID == 0 {
			return FieldValidation("toUserId", MsgRequired)
		}
		if in.ToUserID == in.FromUserID {
			return FieldValidation("toUserId", MsgSelfTransfer)
		}
		if _, err := tx.Users().GetByID(ctx, in.ToUserID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFound(MsgUserNotFound)
			}
			return err
		}
		if model.StateOf(findSeat(seats, in.ToUserID)) == model.SeatActive {
			return Conflict(MsgAlreadyParticipant)
		}
		if err := s.recipientFree(ctx, tx, in.ToUserID, res.ReservationDate); err != nil {
			return err
		}

		out = model.ReservationTransfer{
			ReservationID:     in.ReservationID,
			FromUserID:        in.FromUserID,
			ToUserID:          in.ToUserID,
			SpotsToTransfer:   model.UserIDs(append([]uint64(nil), in.SpotsToTransfer...)),
			IsPrimaryTransfer: in.IsPrimaryTransfer,
			Status:            model.TransferPending,
			RequestedAt:       now,
			ExpiresAt:         TransferExpiry(now, s.rules.TransferWindow, deadline),
		}
		id, err := tx.Transfers().Create(ctx, out)
		if err != nil {
			return err
		}
		out.ID = id
		return nil
	})
	metrics.RecordOperation("transfer.initiate", outcome(err))
	if expired != nil && err == nil {
		s.announce(ctx, queue.TransferExpired, *expired, date)
	}
	if err != nil {
		return model.ReservationTransfer{}, err
	}
	s.log.WithFields(logrus.Fields{
		"transfer_id":    out.ID,
		"reservation_id": out.ReservationID,
		"user_id":        out.FromUserID,
		"target_user_id": out.ToUserID,
		"expires_at":     out.ExpiresAt,
	}).Info("transfer requested")
	s.announce(ctx, queue.TransferRequested, out, date)
	return out, nil
}

// checkSpots applies the who-may-transfer-what rules.
func checkSpots(res model.Reservation, seats []model.ReservationUser, in InitiateTransferInput) error {
	initiator := findSeat(seats, in.FromUserID)
	if initiator == nil || !initiator.Active() {
		return NotFound(MsgUserNotInReservation)
	}
	if len(in.SpotsToTransfer) == 0 {
		return FieldValidation("spotsToTransfer", MsgRequired)
	}
	spots := model.UserIDs(in.SpotsToTransfer)
	seen := make(map[uint64]bool, len(spots))
	for _, id := range spots {
		if seen[id] {
			return FieldValidation("spotsToTransfer", MsgDuplicateUsers)
		}
		seen[id] = true
	}

	if res.PrimaryUserID != in.FromUserID {
		if len(spots) != 1 || spots[0] != in.FromUserID {
			return Forbidden(MsgOwnSpotOnly)
		}
		if in.IsPrimaryTransfer {
			return Forbidden(MsgPrimaryTransferOnly)
		}
	} else if in.IsPrimaryTransfer != spots.Contains(in.FromUserID) {
		return FieldValidation("isPrimaryTransfer", MsgPrimarySpotMismatch)
	}

	for _, id := range spots {
		if seat := findSeat(seats, id); seat == nil || !seat.Active() {
			return NotFound(MsgUserNotInReservation)
		}
	}
	return nil
}

// recipientFree checks that userID, who holds no seat on the reservation
// being transferred, may take one on date.
func (s *TransferService) recipientFree(ctx context.Context, tx Store, userID uint64, date time.Time) error {
	same, err := tx.Reservations().ActiveDatesForUser(ctx, userID, date, date)
	if err != nil {
		return err
	}
	if len(same) > 0 {
		return Conflict(MsgAlreadyBookedOnDate)
	}
	return s.validator.Validate(ctx, tx.Reservations(), userID, date)
}

// respond loads and locks a transfer on behalf of its recipient and settles
// lazy expiry.  It returns expired=true after persisting EXPIRED; the
// caller must commit and then report MsgTransferExpired.
func (s *TransferService) respond(ctx context.Context, tx Store, transferID, userID uint64) (t model.ReservationTransfer, expired bool, err error) {
	t, err = tx.Transfers().GetForUpdate(ctx, transferID)
	if errors.Is(err, sql.ErrNoRows) {
		return t, false, NotFound(MsgTransferNotFound)
	}
	if err != nil {
		return t, false, err
	}
	if t.Status != model.TransferPending {
		return t, false, Conflict(MsgTransferNotPending)
	}
	if t.ToUserID != userID {
		return t, false, Forbidden(MsgNotRecipient)
	}
	now := s.now()
	if t.Expired(now) {
		if err := tx.Transfers().Resolve(ctx, t.ID, model.TransferExpired, now); err != nil {
			return t, false, err
		}
		t.Status = model.TransferExpired
		t.RespondedAt = &now
		return t, true, nil
	}
	return t, false, nil
}

// Accept moves the offered spots to the recipient.  The N offered seats
// collapse into one, so N-1 seats go back to the day's capacity.
func (s *TransferService) Accept(ctx context.Context, transferID, userID uint64) (model.ReservationTransfer, error) {
	var (
		t        model.ReservationTransfer
		expired  bool
		date     time.Time
		released int
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		t, expired, err = s.respond(ctx, tx, transferID, userID)
		if err != nil || expired {
			return err
		}
		res, err := lockActiveReservation(ctx, tx, t.ReservationID)
		if err != nil {
			return err
		}
		date = res.ReservationDate
		if _, err := tx.Users().Lock(ctx, t.ToUserID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFound(MsgUserNotFound)
			}
			return err
		}
		seats, err := tx.Seats().ListByReservation(ctx, t.ReservationID)
		if err != nil {
			return err
		}
		recipient := findSeat(seats, t.ToUserID)
		if model.StateOf(recipient) == model.SeatActive {
			return Conflict(MsgAlreadyParticipant)
		}
		if err := s.recipientFree(ctx, tx, t.ToUserID, res.ReservationDate); err != nil {
			return err
		}
		now := s.now()
		for _, id := range t.SpotsToTransfer {
			seat := findSeat(seats, id)
			if seat == nil || !seat.Active() {
				return Conflict(MsgSpotNoLongerHeld)
			}
			if t.IsPrimaryTransfer && seat.IsPrimary {
				seat.IsPrimary = false
			}
			if _, err := vacateSeat(ctx, tx.Seats(), *seat, now); err != nil {
				return err
			}
		}
		if _, err := occupySeat(ctx, tx.Seats(), recipient, model.ReservationUser{
			ReservationID: t.ReservationID,
			UserID:        t.ToUserID,
			IsPrimary:     t.IsPrimaryTransfer,
			CanModify:     t.IsPrimaryTransfer,
			CanTransfer:   t.IsPrimaryTransfer,
			AddedAt:       now,
		}); err != nil {
			return err
		}
		if t.IsPrimaryTransfer {
			if err := tx.Reservations().SetPrimaryUser(ctx, t.ReservationID, t.ToUserID); err != nil {
				return err
			}
		}
		if n := len(t.SpotsToTransfer) - 1; n > 0 {
			if err := s.ledger.ReleaseSeats(ctx, tx.Capacity(), res.ReservationDate, n); err != nil {
				return err
			}
			released = n
		}
		if err := tx.Transfers().Resolve(ctx, t.ID, model.TransferAccepted, now); err != nil {
			return err
		}
		t.Status = model.TransferAccepted
		t.RespondedAt = &now
		return nil
	})
	if err == nil && expired {
		err = Conflict(MsgTransferExpired)
		s.announce(ctx, queue.TransferExpired, t, date)
	}
	metrics.RecordOperation("transfer.accept", outcome(err))
	if err != nil {
		return model.ReservationTransfer{}, err
	}
	metrics.RecordSeats(-released)
	s.log.WithFields(logrus.Fields{
		"transfer_id":    t.ID,
		"reservation_id": t.ReservationID,
		"user_id":        userID,
		"spots":          len(t.SpotsToTransfer),
		"primary":        t.IsPrimaryTransfer,
	}).Info("transfer accepted")
	s.announce(ctx, queue.TransferAccepted, t, date)
	return t, nil
}

// Decline closes the offer without touching any seat.
func (s *TransferService) Decline(ctx context.Context, transferID, userID uint64) (model.ReservationTransfer, error) {
	var (
		t       model.ReservationTransfer
		expired bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		t, expired, err = s.respond(ctx, tx, transferID, userID)
		if err != nil || expired {
			return err
		}
		now := s.now()
		if err := tx.Transfers().Resolve(ctx, t.ID, model.TransferDeclined, now); err != nil {
			return err
		}
		t.Status = model.TransferDeclined
		t.RespondedAt = &now
		return nil
	})
	if err == nil && expired {
		err = Conflict(MsgTransferExpired)
		s.announce(ctx, queue.TransferExpired, t, time.Time{})
	}
	metrics.RecordOperation("transfer.decline", outcome(err))
	if err != nil {
		return model.ReservationTransfer{}, err
	}
	s.log.WithFields(logrus.Fields{"transfer_id": t.ID, "reservation_id": t.ReservationID, "user_id": userID}).
		Info("transfer declined")
	s.announce(ctx, queue.TransferDeclined, t, time.Time{})
	return t, nil
}

// ListForUser returns transfers involving userID with expiry applied to
// the reported status.
func (s *TransferService) ListForUser(ctx context.Context, userID uint64, direction string) ([]model.ReservationTransfer, error) {
	switch direction {
	case "", "all":
		direction = ""
	case "incoming", "outgoing":
	default:
		return nil, FieldValidation("direction", "Direction must be incoming, outgoing or all")
	}
	list, err := s.store.Transfers().ListForUser(ctx, userID, direction)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range list {
		list[i].Status = list[i].EffectiveStatus(now)
	}
	return list, nil
}

func (s *TransferService) announce(ctx context.Context, typ string, t model.ReservationTransfer, date time.Time) {
	publishEvent(ctx, s.events, s.log, s.now, transferEvent(typ, t, date))
}

func transferEvent(typ string, t model.ReservationTransfer, date time.Time) queue.Event {
	ev := queue.Event{
		Type:          typ,
		ReservationID: t.ReservationID,
		UserID:        t.FromUserID,
		TargetUserID:  t.ToUserID,
		TransferID:    t.ID,
		Spots:         []uint64(t.SpotsToTransfer),
	}
	if !date.IsZero() {
		ev.ReservationDate = FormatDate(date)
	}
	return ev
}
