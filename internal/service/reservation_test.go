package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/park-reservation/internal/model"
	"github.com/iliyamo/park-reservation/internal/queue"
	"github.com/iliyamo/park-reservation/internal/service"
)

func TestCreateBooksWholeParty(t *testing.T) {
	e := newEnv(t)
	a, b, c := e.user(t), e.user(t), e.user(t)

	out, err := e.res.Create(context.Background(), service.CreateReservationInput{
		UserID: a,
		Date:   day("2025-06-12"),
		AdditionalUsers: []service.PartyMember{
			{UserID: b, CanModify: true},
			{UserID: c, CanTransfer: true},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, a, out.Reservation.PrimaryUserID)
	assert.Equal(t, model.StatusActive, out.Reservation.Status)
	require.Len(t, out.Users, 3)
	assert.True(t, seatOf(t, out, a).IsPrimary)
	assert.True(t, seatOf(t, out, b).CanModify)
	assert.False(t, seatOf(t, out, b).CanTransfer)
	assert.True(t, seatOf(t, out, c).CanTransfer)

	require.NotNil(t, out.Capacity)
	assert.Equal(t, 3, out.Capacity.TotalBookings)
	assert.Equal(t, 60, out.Capacity.MaxCapacity)
	assert.Equal(t, 3, e.total(t, "2025-06-12"))
	assert.Equal(t, []string{queue.ReservationCreated}, e.events.types())
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t), e.user(t)
	ctx := context.Background()

	_, err := e.res.Create(ctx, service.CreateReservationInput{UserID: a})
	requireKind(t, err, service.KindValidation, service.MsgRequired)

	_, err = e.res.Create(ctx, service.CreateReservationInput{UserID: a, Date: day("2025-06-10")})
	requireKind(t, err, service.KindValidation, service.MsgBookingCutoff)

	_, err = e.res.Create(ctx, service.CreateReservationInput{UserID: a, Date: day("2025-06-09")})
	requireKind(t, err, service.KindValidation, service.MsgBookingCutoff)

	_, err = e.res.Create(ctx, service.CreateReservationInput{
		UserID: a, Date: day("2025-06-12"),
		AdditionalUsers: []service.PartyMember{{UserID: b}, {UserID: b}},
	})
	requireKind(t, err, service.KindValidation, service.MsgDuplicateUsers)

	_, err = e.res.Create(ctx, service.CreateReservationInput{
		UserID: a, Date: day("2025-06-12"),
		AdditionalUsers: []service.PartyMember{{UserID: 999}},
	})
	requireKind(t, err, service.KindNotFound, service.MsgUserNotFound)

	assert.Equal(t, 0, e.total(t, "2025-06-12"))
	assert.Empty(t, e.events.types())
}

func TestCreatePartySizeLimit(t *testing.T) {
	e := newEnv(t)
	primary := e.user(t)
	var party []service.PartyMember
	for i := 0; i < e.rules.MaxPartySize; i++ {
		party = append(party, service.PartyMember{UserID: e.user(t)})
	}
	_, err := e.res.Create(context.Background(), service.CreateReservationInput{
		UserID: primary, Date: day("2025-06-12"), AdditionalUsers: party,
	})
	require.Error(t, err)
	assert.True(t, service.IsValidation(err))
}

func TestBookingCutoffIsMidnightParkTime(t *testing.T) {
	e := newEnv(t)
	a := e.user(t)
	ctx := context.Background()

	e.clock.Set(at(2025, time.June, 10, 23, 59))
	_, err := e.res.Create(ctx, service.CreateReservationInput{UserID: a, Date: day("2025-06-11")})
	require.NoError(t, err)

	b := e.user(t)
	e.clock.Set(at(2025, time.June, 11, 0, 0))
	_, err = e.res.Create(ctx, service.CreateReservationInput{UserID: b, Date: day("2025-06-11")})
	requireKind(t, err, service.KindValidation, service.MsgBookingCutoff)
}

func TestConsecutiveDaysLimit(t *testing.T) {
	e := newEnv(t)
	a := e.user(t)
	ctx := context.Background()
	limit := "Cannot make reservation. Users are limited to 3 consecutive days."

	e.book(t, a, "2025-06-11")
	second := e.book(t, a, "2025-06-12")
	e.book(t, a, "2025-06-13")

	_, err := e.res.Create(ctx, service.CreateReservationInput{UserID: a, Date: day("2025-06-14")})
	requireKind(t, err, service.KindConflict, limit)

	// A one-day gap starts a new run.
	e.book(t, a, "2025-06-15")

	// Filling the gap would join both runs.
	_, err = e.res.Create(ctx, service.CreateReservationInput{UserID: a, Date: day("2025-06-14")})
	requireKind(t, err, service.KindConflict, limit)

	// Cancelled days do not count.
	_, err = e.res.Cancel(ctx, second.Reservation.ID, a)
	require.NoError(t, err)
	e.book(t, a, "2025-06-14")
}

func TestConsecutiveLimitAppliesToEveryPartyMember(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t), e.user(t)

	e.book(t, b, "2025-06-11")
	e.book(t, b, "2025-06-12")
	e.book(t, b, "2025-06-13")

	_, err := e.res.Create(context.Background(), service.CreateReservationInput{
		UserID: a, Date: day("2025-06-14"),
		AdditionalUsers: []service.PartyMember{{UserID: b}},
	})
	require.Error(t, err)
	assert.True(t, service.IsConflict(err))
	assert.Equal(t, 0, e.total(t, "2025-06-14"))
}

func TestOneReservationPerUserPerDay(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t), e.user(t)
	e.book(t, a, "2025-06-12")

	_, err := e.res.Create(context.Background(), service.CreateReservationInput{
		UserID: b, Date: day("2025-06-12"),
		AdditionalUsers: []service.PartyMember{{UserID: a}},
	})
	requireKind(t, err, service.KindConflict, service.MsgAlreadyBookedOnDate)
	assert.Equal(t, 1, e.total(t, "2025-06-12"))
}

func TestCapacityExhaustion(t *testing.T) {
	e := newEnv(t)
	e.store.PutCapacity(model.DateCapacity{Date: day("2025-06-12"), TotalBookings: 58, MaxCapacity: 60})
	a, b, c, d := e.user(t), e.user(t), e.user(t), e.user(t)
	ctx := context.Background()

	_, err := e.res.Create(ctx, service.CreateReservationInput{
		UserID: a, Date: day("2025-06-12"),
		AdditionalUsers: []service.PartyMember{{UserID: b}, {UserID: c}},
	})
	requireKind(t, err, service.KindConflict, service.MsgNoSpots)
	assert.Equal(t, 58, e.total(t, "2025-06-12"))

	e.book(t, a, "2025-06-12", b)
	assert.Equal(t, 60, e.total(t, "2025-06-12"))

	_, err = e.res.Create(ctx, service.CreateReservationInput{UserID: d, Date: day("2025-06-12")})
	requireKind(t, err, service.KindConflict, service.MsgNoSpots)

	avail, err := e.res.CheckDate(ctx, day("2025-06-12"))
	require.NoError(t, err)
	assert.False(t, avail.IsAvailable)
	assert.Equal(t, 0, avail.RemainingSpots)
}

func TestConcurrentBookingsNeverOversell(t *testing.T) {
	e := newEnv(t)
	e.store.PutCapacity(model.DateCapacity{Date: day("2025-06-12"), TotalBookings: 59, MaxCapacity: 60})

	const n = 12
	users := make([]uint64, n)
	for i := range users {
		users[i] = e.user(t)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for _, uid := range users {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			_, err := e.res.Create(context.Background(), service.CreateReservationInput{UserID: uid, Date: day("2025-06-12")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case err.Error() == service.MsgNoSpots:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uid)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, rejected)
	assert.Equal(t, 60, e.total(t, "2025-06-12"))
}

func TestConcurrentCancellationsReleaseOnce(t *testing.T) {
	e := newEnv(t)
	a, b, c := e.user(t), e.user(t), e.user(t)
	r := e.book(t, a, "2025-06-12", b, c)
	require.Equal(t, 3, e.total(t, "2025-06-12"))

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.res.Cancel(context.Background(), r.Reservation.ID, a)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case service.KindOf(err) == service.KindConflict && err.Error() == service.MsgAlreadyCancelled:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, rejected)
	assert.Equal(t, 0, e.total(t, "2025-06-12"))
}

func TestCancelBySeatHolder(t *testing.T) {
	e := newEnv(t)
	a, b, c := e.user(t), e.user(t), e.user(t)
	r := e.book(t, a, "2025-06-12", b, c)
	ctx := context.Background()

	res, err := e.res.Cancel(ctx, r.Reservation.ID, b)
	require.NoError(t, err)
	assert.False(t, res.WholeReservation)
	assert.Equal(t, 1, res.SeatsReleased)
	assert.Equal(t, 2, e.total(t, "2025-06-12"))

	// A seat can only be given up once.
	_, err = e.res.Cancel(ctx, r.Reservation.ID, b)
	requireKind(t, err, service.KindConflict, service.MsgAlreadyCancelled)

	res, err = e.res.Cancel(ctx, r.Reservation.ID, a)
	require.NoError(t, err)
	assert.True(t, res.WholeReservation)
	assert.Equal(t, 2, res.SeatsReleased)
	assert.Equal(t, 0, e.total(t, "2025-06-12"))

	_, err = e.res.Cancel(ctx, r.Reservation.ID, a)
	requireKind(t, err, service.KindConflict, service.MsgAlreadyCancelled)

	got, err := e.res.Get(ctx, r.Reservation.ID, a)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Reservation.Status)
	for _, s := range got.Users {
		assert.Equal(t, model.StatusCancelled, s.Status)
		assert.NotNil(t, s.CancelledAt)
	}
}

func TestCancelErrors(t *testing.T) {
	e := newEnv(t)
	a, stranger := e.user(t), e.user(t)
	r := e.book(t, a, "2025-06-12")
	ctx := context.Background()

	_, err := e.res.Cancel(ctx, 404, a)
	requireKind(t, err, service.KindNotFound, service.MsgReservationNotFound)

	_, err = e.res.Cancel(ctx, r.Reservation.ID, stranger)
	requireKind(t, err, service.KindNotFound, service.MsgUserNotInReservation)
	assert.Equal(t, 1, e.total(t, "2025-06-12"))
}

func TestRemoveAndReAddUser(t *testing.T) {
	e := newEnv(t)
	a, b, c := e.user(t), e.user(t), e.user(t)
	r := e.book(t, a, "2025-06-12", b)
	id := r.Reservation.ID
	ctx := context.Background()
	addedAt := seatOf(t, r, b).AddedAt

	requireKind(t, e.res.RemoveUser(ctx, id, b, a), service.KindAuthorization, service.MsgPrimaryOnly)
	requireKind(t, e.res.RemoveUser(ctx, id, a, a), service.KindValidation, service.MsgPrimaryMustCancel)
	requireKind(t, e.res.RemoveUser(ctx, id, a, c), service.KindNotFound, service.MsgUserNotInReservation)

	require.NoError(t, e.res.RemoveUser(ctx, id, a, b))
	assert.Equal(t, 1, e.total(t, "2025-06-12"))
	requireKind(t, e.res.RemoveUser(ctx, id, a, b), service.KindNotFound, service.MsgUserNotInReservation)

	e.clock.Advance(time.Hour)
	seat, err := e.res.AddUser(ctx, id, a, service.PartyMember{UserID: b, CanTransfer: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, seat.Status)
	assert.Nil(t, seat.CancelledAt)
	assert.True(t, seat.CanTransfer)
	assert.True(t, seat.AddedAt.Equal(addedAt), "reactivated seat keeps its original addedAt")
	assert.Equal(t, 2, e.total(t, "2025-06-12"))

	_, err = e.res.AddUser(ctx, id, a, service.PartyMember{UserID: b})
	requireKind(t, err, service.KindConflict, service.MsgAlreadyParticipant)

	_, err = e.res.AddUser(ctx, id, b, service.PartyMember{UserID: c})
	requireKind(t, err, service.KindAuthorization, service.MsgPrimaryOnly)

	_, err = e.res.AddUser(ctx, id, a, service.PartyMember{UserID: c})
	require.NoError(t, err)
	assert.Equal(t, 3, e.total(t, "2025-06-12"))

	types := e.events.types()
	assert.Contains(t, types, queue.ReservationUserRemoved)
	assert.Contains(t, types, queue.ReservationUserAdded)
}

func TestAddUserRespectsCapacity(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t), e.user(t)
	r := e.book(t, a, "2025-06-12")
	e.store.PutCapacity(model.DateCapacity{Date: day("2025-06-12"), TotalBookings: 60, MaxCapacity: 60})

	_, err := e.res.AddUser(context.Background(), r.Reservation.ID, a, service.PartyMember{UserID: b})
	requireKind(t, err, service.KindConflict, service.MsgNoSpots)
}

func TestGetRequiresParticipant(t *testing.T) {
	e := newEnv(t)
	a, b, stranger := e.user(t), e.user(t), e.user(t)
	r := e.book(t, a, "2025-06-12", b)
	ctx := context.Background()

	got, err := e.res.Get(ctx, r.Reservation.ID, b)
	require.NoError(t, err)
	assert.Len(t, got.Users, 2)
	assert.Nil(t, got.PendingTransfer)

	_, err = e.res.Get(ctx, r.Reservation.ID, stranger)
	requireKind(t, err, service.KindAuthorization, service.MsgNoAccess)

	_, err = e.res.Get(ctx, 404, a)
	requireKind(t, err, service.KindNotFound, service.MsgReservationNotFound)
}

func TestListForUserAndDate(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t), e.user(t)
	first := e.book(t, a, "2025-06-12", b)
	e.book(t, a, "2025-06-20")
	ctx := context.Background()

	mine, err := e.res.ListForUser(ctx, a)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := e.res.ListForUser(ctx, b)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, first.Reservation.ID, theirs[0].ID)

	roster, err := e.res.ListForDate(ctx, day("2025-06-12"))
	require.NoError(t, err)
	require.Len(t, roster.Reservations, 1)
	assert.Len(t, roster.Reservations[0].Users, 2)
	assert.Equal(t, 2, roster.Availability.TotalBookings)
	assert.Equal(t, 58, roster.Availability.RemainingSpots)
}

func TestAvailabilityRange(t *testing.T) {
	e := newEnv(t)
	e.store.PutCapacity(model.DateCapacity{Date: day("2025-06-13"), TotalBookings: 60, MaxCapacity: 60})
	e.store.PutCapacity(model.DateCapacity{Date: day("2025-06-14"), TotalBookings: 59, MaxCapacity: 60})
	ctx := context.Background()

	days, err := e.res.Availability(ctx, day("2025-06-11"), day("2025-06-15"))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2025-06-11"), day("2025-06-12"), day("2025-06-14"), day("2025-06-15")}, days)

	// Today and earlier can no longer be booked.
	days, err = e.res.Availability(ctx, day("2025-06-08"), day("2025-06-11"))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2025-06-11")}, days)

	_, err = e.res.Availability(ctx, day("2025-06-15"), day("2025-06-11"))
	require.Error(t, err)
	assert.True(t, service.IsValidation(err))
}
