package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/park-reservation/internal/config"
	"github.com/iliyamo/park-reservation/internal/metrics"
	"github.com/iliyamo/park-reservation/internal/model"
	"github.com/iliyamo/park-reservation/internal/queue"
)

// PartyMember is an additional participant requested at booking time.
type PartyMember struct {
	UserID      uint64
	CanModify   bool
	CanTransfer bool
}

// CreateReservationInput describes a booking request from UserID.
type CreateReservationInput struct {
	UserID          uint64
	Date            time.Time
	AdditionalUsers []PartyMember
}

// ReservationDetails is a reservation with its seats and, depending on the
// call, a pending transfer or the day's capacity after the change.
type ReservationDetails struct {
	Reservation     model.Reservation
	Users           []model.ReservationUser
	PendingTransfer *model.ReservationTransfer
	Capacity        *model.DateCapacity
}

// CancelResult reports what a cancellation touched.
type CancelResult struct {
	ReservationID uint64
	// WholeReservation is true when the primary cancelled everything.
	WholeReservation bool
	SeatsReleased    int
}

// DateRoster is the admin view of one park day.
type DateRoster struct {
	Date         time.Time
	Availability Availability
	Reservations []ReservationDetails
}

// ReservationService owns the reservation lifecycle: booking, party
// changes and cancellation.
type ReservationService struct {
	store     Store
	rules     config.Rules
	ledger    CapacityLedger
	validator ConsecutiveValidator
	events    Notifier
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewReservationService wires the lifecycle manager.  events may be nil;
// now defaults to time.Now.
func NewReservationService(store Store, rules config.Rules, events Notifier, log logrus.FieldLogger, now func() time.Time) *ReservationService {
	if now == nil {
		now = time.Now
	}
	return &ReservationService{
		store:     store,
		rules:     rules,
		ledger:    CapacityLedger{MaxDaily: rules.MaxDailyCapacity, Log: log},
		validator: ConsecutiveValidator{MaxDays: rules.MaxConsecutiveDays},
		events:    events,
		log:       log,
		now:       now,
	}
}

// Create books date for the requester and any additional users.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (ReservationDetails, error) {
	var out ReservationDetails
	err := s.create(ctx, in, &out)
	metrics.RecordOperation("reservation.create", outcome(err))
	if err != nil {
		return ReservationDetails{}, err
	}
	metrics.RecordSeats(len(out.Users))
	s.log.WithFields(logrus.Fields{
		"reservation_id": out.Reservation.ID,
		"user_id":        in.UserID,
		"date":           FormatDate(out.Reservation.ReservationDate),
		"seats":          len(out.Users),
	}).Info("reservation created")
	s.publish(ctx, queue.Event{
		Type:            queue.ReservationCreated,
		ReservationID:   out.Reservation.ID,
		ReservationDate: FormatDate(out.Reservation.ReservationDate),
		UserID:          in.UserID,
		Seats:           len(out.Users),
	})
	return out, nil
}

func (s *ReservationService) create(ctx context.Context, in CreateReservationInput, out *ReservationDetails) error {
	if in.Date.IsZero() {
		return FieldValidation("reservationDate", MsgRequired)
	}
	now := s.now()
	date := NormalizeDate(in.Date)
	if !Bookable(date, now, s.rules.Location) {
		return FieldValidation("reservationDate", MsgBookingCutoff)
	}
	if 1+len(in.AdditionalUsers) > s.rules.MaxPartySize {
		return FieldValidation("additionalUsers", fmt.Sprintf(msgPartyTooLargeFormat, s.rules.MaxPartySize))
	}
	party := []uint64{in.UserID}
	seen := map[uint64]bool{in.UserID: true}
	for _, m := range in.AdditionalUsers {
		if m.UserID == 0 {
			return FieldValidation("additionalUsers", MsgRequired)
		}
		if seen[m.UserID] {
			return FieldValidation("additionalUsers", MsgDuplicateUsers)
		}
		seen[m.UserID] = true
		party = append(party, m.UserID)
	}

	return s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if err := s.lockParticipants(ctx, tx, party); err != nil {
			return err
		}
		for _, uid := range party {
			if err := s.checkSeatable(ctx, tx, uid, date); err != nil {
				return err
			}
		}

		snap, err := s.ledger.ReserveSeats(ctx, tx.Capacity(), date, len(party))
		if err != nil {
			return err
		}

		res := model.Reservation{
			PrimaryUserID:   in.UserID,
			ReservationDate: date,
			Status:          model.StatusActive,
			CanTransfer:     true,
			CreatedAt:       now,
		}
		id, err := tx.Reservations().Create(ctx, res)
		if err != nil {
			return err
		}
		res.ID = id

		seats := make([]model.ReservationUser, 0, len(party))
		seats = append(seats, model.ReservationUser{
			ReservationID: id, UserID: in.UserID,
			IsPrimary: true, CanModify: true, CanTransfer: true,
			Status: model.StatusActive, AddedAt: now,
		})
		for _, m := range in.AdditionalUsers {
			seats = append(seats, model.ReservationUser{
				ReservationID: id, UserID: m.UserID,
				CanModify: m.CanModify, CanTransfer: m.CanTransfer,
				Status: model.StatusActive, AddedAt: now,
			})
		}
		for _, seat := range seats {
			if err := tx.Seats().Insert(ctx, seat); err != nil {
				return err
			}
		}

		*out = ReservationDetails{Reservation: res, Users: seats, Capacity: &snap}
		return nil
	})
}

// lockParticipants locks user rows in ascending ID order so two bookings
// that share participants cannot deadlock.
func (s *ReservationService) lockParticipants(ctx context.Context, tx Store, ids []uint64) error {
	sorted := append([]uint64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, id := range sorted {
		if _, err := tx.Users().Lock(ctx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFound(MsgUserNotFound)
			}
			return err
		}
	}
	return nil
}

// checkSeatable applies the per-user rules for gaining a seat on date.
func (s *ReservationService) checkSeatable(ctx context.Context, tx Store, userID uint64, date time.Time) error {
	same, err := tx.Reservations().ActiveDatesForUser(ctx, userID, date, date)
	if err != nil {
		return err
	}
	if len(same) > 0 {
		return Conflict(MsgAlreadyBookedOnDate)
	}
	return s.validator.Validate(ctx, tx.Reservations(), userID, date)
}

// Cancel cancels on behalf of userID.  The primary cancels the whole
// reservation; anyone else gives up only their own seat.
func (s *ReservationService) Cancel(ctx context.Context, reservationID, userID uint64) (CancelResult, error) {
	var (
		result CancelResult
		date   time.Time
		voided *model.ReservationTransfer
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		res, err := lockActiveReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		date = res.ReservationDate
		seats, err := tx.Seats().ListByReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		mine := findSeat(seats, userID)
		if mine == nil {
			return NotFound(MsgUserNotInReservation)
		}
		now := s.now()
		result.ReservationID = reservationID

		if res.PrimaryUserID == userID {
			released := 0
			for _, seat := range activeSeats(seats) {
				if _, err := vacateSeat(ctx, tx.Seats(), seat, now); err != nil {
					return err
				}
				released++
			}
			if err := tx.Reservations().SetStatus(ctx, reservationID, model.StatusCancelled); err != nil {
				return err
			}
			if voided, err = voidPendingTransfer(ctx, tx, reservationID, nil, now); err != nil {
				return err
			}
			result.WholeReservation = true
			result.SeatsReleased = released
			return s.ledger.ReleaseSeats(ctx, tx.Capacity(), res.ReservationDate, released)
		}

		if _, err := vacateSeat(ctx, tx.Seats(), *mine, now); err != nil {
			return err
		}
		if voided, err = voidPendingTransfer(ctx, tx, reservationID, []uint64{userID}, now); err != nil {
			return err
		}
		result.SeatsReleased = 1
		return s.ledger.ReleaseSeats(ctx, tx.Capacity(), res.ReservationDate, 1)
	})
	metrics.RecordOperation("reservation.cancel", outcome(err))
	if err != nil {
		return CancelResult{}, err
	}
	metrics.RecordSeats(-result.SeatsReleased)
	s.log.WithFields(logrus.Fields{
		"reservation_id": reservationID,
		"user_id":        userID,
		"whole":          result.WholeReservation,
		"released":       result.SeatsReleased,
	}).Info("reservation cancelled")
	s.publish(ctx, queue.Event{
		Type:            queue.ReservationCancelled,
		ReservationID:   reservationID,
		ReservationDate: FormatDate(date),
		UserID:          userID,
		Seats:           result.SeatsReleased,
	})
	s.voided(ctx, voided, date)
	return result, nil
}

// RemoveUser lets the primary drop another participant's seat.
func (s *ReservationService) RemoveUser(ctx context.Context, reservationID, primaryID, targetID uint64) error {
	var (
		date   time.Time
		voided *model.ReservationTransfer
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		res, err := lockActiveReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		date = res.ReservationDate
		if res.PrimaryUserID != primaryID {
			return Forbidden(MsgPrimaryOnly)
		}
		if targetID == primaryID {
			return Validation(MsgPrimaryMustCancel)
		}
		seats, err := tx.Seats().ListByReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		target := findSeat(seats, targetID)
		if target == nil || !target.Active() {
			return NotFound(MsgUserNotInReservation)
		}
		now := s.now()
		if _, err := vacateSeat(ctx, tx.Seats(), *target, now); err != nil {
			return err
		}
		if voided, err = voidPendingTransfer(ctx, tx, reservationID, []uint64{targetID}, now); err != nil {
			return err
		}
		return s.ledger.ReleaseSeats(ctx, tx.Capacity(), res.ReservationDate, 1)
	})
	metrics.RecordOperation("reservation.remove_user", outcome(err))
	if err != nil {
		return err
	}
	metrics.RecordSeats(-1)
	s.log.WithFields(logrus.Fields{"reservation_id": reservationID, "user_id": primaryID, "target_user_id": targetID}).
		Info("participant removed")
	s.publish(ctx, queue.Event{
		Type:            queue.ReservationUserRemoved,
		ReservationID:   reservationID,
		ReservationDate: FormatDate(date),
		UserID:          primaryID,
		TargetUserID:    targetID,
		Seats:           1,
	})
	s.voided(ctx, voided, date)
	return nil
}

// AddUser lets the primary bring another user onto the reservation.
func (s *ReservationService) AddUser(ctx context.Context, reservationID, primaryID uint64, member PartyMember) (model.ReservationUser, error) {
	var (
		seat model.ReservationUser
		date time.Time
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if member.UserID == 0 {
			return FieldValidation("userId", MsgRequired)
		}
		res, err := lockActiveReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		date = res.ReservationDate
		if res.PrimaryUserID != primaryID {
			return Forbidden(MsgPrimaryOnly)
		}
		if !Bookable(res.ReservationDate, s.now(), s.rules.Location) {
			return Validation(MsgBookingCutoff)
		}
		// The first plain read fixes the snapshot; the member's dates must
		// be read under their lock.
		if err := s.lockParticipants(ctx, tx, []uint64{member.UserID}); err != nil {
			return err
		}
		seats, err := tx.Seats().ListByReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		existing := findSeat(seats, member.UserID)
		if model.StateOf(existing) == model.SeatActive {
			return Conflict(MsgAlreadyParticipant)
		}
		if len(activeSeats(seats))+1 > s.rules.MaxPartySize {
			return FieldValidation("userId", fmt.Sprintf(msgPartyTooLargeFormat, s.rules.MaxPartySize))
		}
		if err := s.checkSeatable(ctx, tx, member.UserID, res.ReservationDate); err != nil {
			return err
		}
		if _, err := s.ledger.ReserveSeats(ctx, tx.Capacity(), res.ReservationDate, 1); err != nil {
			return err
		}
		seat, err = occupySeat(ctx, tx.Seats(), existing, model.ReservationUser{
			ReservationID: reservationID,
			UserID:        member.UserID,
			CanModify:     member.CanModify,
			CanTransfer:   member.CanTransfer,
			AddedAt:       s.now(),
		})
		return err
	})
	metrics.RecordOperation("reservation.add_user", outcome(err))
	if err != nil {
		return model.ReservationUser{}, err
	}
	metrics.RecordSeats(1)
	s.log.WithFields(logrus.Fields{"reservation_id": reservationID, "user_id": primaryID, "target_user_id": member.UserID}).
		Info("participant added")
	s.publish(ctx, queue.Event{
		Type:            queue.ReservationUserAdded,
		ReservationID:   reservationID,
		ReservationDate: FormatDate(date),
		UserID:          primaryID,
		TargetUserID:    member.UserID,
		Seats:           1,
	})
	return seat, nil
}

// Get returns a reservation to one of its participants, past or present.
func (s *ReservationService) Get(ctx context.Context, reservationID, userID uint64) (ReservationDetails, error) {
	res, err := s.store.Reservations().Get(ctx, reservationID)
	if errors.Is(err, sql.ErrNoRows) {
		return ReservationDetails{}, NotFound(MsgReservationNotFound)
	}
	if err != nil {
		return ReservationDetails{}, err
	}
	seats, err := s.store.Seats().ListByReservation(ctx, reservationID)
	if err != nil {
		return ReservationDetails{}, err
	}
	if findSeat(seats, userID) == nil {
		return ReservationDetails{}, Forbidden(MsgNoAccess)
	}
	out := ReservationDetails{Reservation: res, Users: seats}
	pending, err := s.store.Transfers().PendingForReservation(ctx, reservationID)
	switch {
	case err == nil:
		pending.Status = pending.EffectiveStatus(s.now())
		out.PendingTransfer = &pending
	case !errors.Is(err, sql.ErrNoRows):
		return ReservationDetails{}, err
	}
	return out, nil
}

// ListForUser returns the reservations userID currently holds a seat on.
func (s *ReservationService) ListForUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	return s.store.Reservations().ListForUser(ctx, userID)
}

// ListForDate is the admin roster for date.
func (s *ReservationService) ListForDate(ctx context.Context, date time.Time) (DateRoster, error) {
	date = NormalizeDate(date)
	avail, err := s.ledger.CheckAvailability(ctx, s.store.Capacity(), date)
	if err != nil {
		return DateRoster{}, err
	}
	list, err := s.store.Reservations().ListForDate(ctx, date)
	if err != nil {
		return DateRoster{}, err
	}
	roster := DateRoster{Date: date, Availability: avail, Reservations: make([]ReservationDetails, 0, len(list))}
	for _, res := range list {
		seats, err := s.store.Seats().ListByReservation(ctx, res.ID)
		if err != nil {
			return DateRoster{}, err
		}
		roster.Reservations = append(roster.Reservations, ReservationDetails{Reservation: res, Users: seats})
	}
	return roster, nil
}

// CheckDate reports capacity for one day.
func (s *ReservationService) CheckDate(ctx context.Context, date time.Time) (Availability, error) {
	return s.ledger.CheckAvailability(ctx, s.store.Capacity(), date)
}

// Availability lists bookable days in [start, end].  Days up to and
// including today are dropped since they can no longer be booked.
func (s *ReservationService) Availability(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	start, end = NormalizeDate(start), NormalizeDate(end)
	if end.Before(start) {
		return nil, FieldValidation("endDate", "Start date must be before or equal to end date")
	}
	days, err := s.ledger.AvailabilityForRange(ctx, s.store.Capacity(), start, end)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := days[:0]
	for _, d := range days {
		if Bookable(d, now, s.rules.Location) {
			out = append(out, d)
		}
	}
	return out, nil
}

// lockActiveReservation locks the reservation row and rejects missing or
// cancelled reservations.  Concurrent cancellations serialize here.
func lockActiveReservation(ctx context.Context, tx Store, id uint64) (model.Reservation, error) {
	res, err := tx.Reservations().GetForUpdate(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, NotFound(MsgReservationNotFound)
	}
	if err != nil {
		return model.Reservation{}, err
	}
	if !res.Active() {
		return model.Reservation{}, Conflict(MsgAlreadyCancelled)
	}
	return res, nil
}

// voidPendingTransfer expires the reservation's PENDING transfer once it
// can no longer be honoured: the whole reservation is going away (vacated
// is nil) or one of its spots is in vacated.
func voidPendingTransfer(ctx context.Context, tx Store, reservationID uint64, vacated []uint64, now time.Time) (*model.ReservationTransfer, error) {
	t, err := tx.Transfers().PendingForReservation(ctx, reservationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if vacated != nil && !t.SpotsToTransfer.ContainsAny(vacated) {
		return nil, nil
	}
	if err := tx.Transfers().Resolve(ctx, t.ID, model.TransferExpired, now); err != nil {
		return nil, err
	}
	t.Status = model.TransferExpired
	t.RespondedAt = &now
	return &t, nil
}

func (s *ReservationService) voided(ctx context.Context, t *model.ReservationTransfer, date time.Time) {
	if t == nil {
		return
	}
	s.log.WithFields(logrus.Fields{"transfer_id": t.ID, "reservation_id": t.ReservationID}).
		Info("pending transfer voided")
	s.publish(ctx, transferEvent(queue.TransferExpired, *t, date))
}

// publish hands ev to the notifier.  Delivery failures are logged and never
// undo committed work.
func (s *ReservationService) publish(ctx context.Context, ev queue.Event) {
	publishEvent(ctx, s.events, s.log, s.now, ev)
}

func publishEvent(ctx context.Context, n Notifier, log logrus.FieldLogger, now func() time.Time, ev queue.Event) {
	if n == nil {
		return
	}
	if ev.OccurredAt == "" {
		ev.OccurredAt = now().UTC().Format(time.RFC3339)
	}
	if err := n.Publish(ctx, ev); err != nil {
		log.WithError(err).WithFields(logrus.Fields{"event": ev.Type, "reservation_id": ev.ReservationID}).
			Warn("event publish failed")
	}
}
