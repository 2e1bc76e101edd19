package service_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	_ "time/tzdata"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/park-reservation/internal/config"
	"github.com/iliyamo/park-reservation/internal/model"
	"github.com/iliyamo/park-reservation/internal/queue"
	"github.com/iliyamo/park-reservation/internal/repository/memory"
	"github.com/iliyamo/park-reservation/internal/service"
)

var chicago = mustLocation("America/Chicago")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// at is a wall-clock instant in the park's time zone.
func at(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, chicago)
}

func day(s string) time.Time {
	d, err := service.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *clock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []queue.Event
}

func (r *recorder) Publish(_ context.Context, ev queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type env struct {
	store  *memory.Store
	res    *service.ReservationService
	tr     *service.TransferService
	clock  *clock
	events *recorder
	rules  config.Rules
	nextID int
}

// newEnv starts the clock at noon on 2025-06-10, park time.
func newEnv(t *testing.T) *env {
	t.Helper()
	rules := config.DefaultRules()
	rules.Location = chicago

	log := logrus.New()
	log.SetOutput(io.Discard)

	clk := &clock{t: at(2025, time.June, 10, 12, 0)}
	store := memory.New()
	store.SetClock(clk.Now)
	rec := &recorder{}
	return &env{
		store:  store,
		res:    service.NewReservationService(store, rules, rec, log, clk.Now),
		tr:     service.NewTransferService(store, rules, rec, log, clk.Now),
		clock:  clk,
		events: rec,
		rules:  rules,
	}
}

func (e *env) user(t *testing.T) uint64 {
	t.Helper()
	e.nextID++
	u := e.store.AddUser(model.User{
		Email:     fmt.Sprintf("camper%d@example.com", e.nextID),
		FirstName: "Camper",
		LastName:  fmt.Sprint(e.nextID),
	})
	return u.ID
}

func (e *env) book(t *testing.T, primary uint64, date string, others ...uint64) service.ReservationDetails {
	t.Helper()
	in := service.CreateReservationInput{UserID: primary, Date: day(date)}
	for _, id := range others {
		in.AdditionalUsers = append(in.AdditionalUsers, service.PartyMember{UserID: id})
	}
	out, err := e.res.Create(context.Background(), in)
	require.NoError(t, err)
	return out
}

func (e *env) total(t *testing.T, date string) int {
	t.Helper()
	a, err := e.res.CheckDate(context.Background(), day(date))
	require.NoError(t, err)
	return a.TotalBookings
}

func seatOf(t *testing.T, d service.ReservationDetails, userID uint64) model.ReservationUser {
	t.Helper()
	for _, s := range d.Users {
		if s.UserID == userID {
			return s
		}
	}
	t.Fatalf("user %d has no seat on reservation %d", userID, d.Reservation.ID)
	return model.ReservationUser{}
}

// requireKind asserts err is a classified error with the given message.
func requireKind(t *testing.T, err error, kind service.Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, service.KindOf(err), "error: %v", err)
	require.Equal(t, msg, err.Error())
}
