// Package memory is an in-process implementation of the booking store.  It
// serializes units of work with a single mutex and restores a snapshot of
// the booking tables when one fails, which is enough to mirror the row
// locking the MySQL store relies on.  Intended for tests and local runs.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/park-reservation/internal/model"
	"github.com/iliyamo/park-reservation/internal/repository"
	"github.com/iliyamo/park-reservation/internal/service"
	"github.com/iliyamo/park-reservation/internal/utils"
)

type seatKey struct {
	reservationID uint64
	userID        uint64
}

// tables are the rows a unit of work can roll back.
type tables struct {
	nextReservation uint64
	nextTransfer    uint64
	reservations    map[uint64]model.Reservation
	seats           map[seatKey]model.ReservationUser
	capacity        map[time.Time]model.DateCapacity
	transfers       map[uint64]model.ReservationTransfer
}

func newTables() *tables {
	return &tables{
		nextReservation: 1,
		nextTransfer:    1,
		reservations:    make(map[uint64]model.Reservation),
		seats:           make(map[seatKey]model.ReservationUser),
		capacity:        make(map[time.Time]model.DateCapacity),
		transfers:       make(map[uint64]model.ReservationTransfer),
	}
}

func (t *tables) clone() *tables {
	c := &tables{
		nextReservation: t.nextReservation,
		nextTransfer:    t.nextTransfer,
		reservations:    make(map[uint64]model.Reservation, len(t.reservations)),
		seats:           make(map[seatKey]model.ReservationUser, len(t.seats)),
		capacity:        make(map[time.Time]model.DateCapacity, len(t.capacity)),
		transfers:       make(map[uint64]model.ReservationTransfer, len(t.transfers)),
	}
	for k, v := range t.reservations {
		c.reservations[k] = v
	}
	for k, v := range t.seats {
		c.seats[k] = v
	}
	for k, v := range t.capacity {
		c.capacity[k] = v
	}
	for k, v := range t.transfers {
		v.SpotsToTransfer = append(model.UserIDs(nil), v.SpotsToTransfer...)
		c.transfers[k] = v
	}
	return c
}

// Store is safe for concurrent use.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	t    *tables

	// Accounts live outside the rollback snapshot; auth writes them
	// without a unit of work.
	nextUser  uint64
	users     map[uint64]model.User
	nextToken uint64
	tokens    map[string]model.RefreshToken
	now       func() time.Time
}

var _ service.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		t:         newTables(),
		nextUser:  1,
		users:     make(map[uint64]model.User),
		nextToken: 1,
		tokens:    make(map[string]model.RefreshToken),
		now:       time.Now,
	}
}

func (s *Store) Reservations() service.ReservationRepository { return reservations{s} }
func (s *Store) Seats() service.SeatRepository               { return seats{s} }
func (s *Store) Capacity() service.CapacityRepository        { return capacity{s} }
func (s *Store) Transfers() service.TransferRepository       { return transfers{s} }
func (s *Store) Users() service.UserRepository               { return &Users{s} }

// Accounts exposes the user table for the auth endpoints.
func (s *Store) Accounts() *Users { return &Users{s} }

// Tokens exposes refresh-token storage for the auth endpoints.
func (s *Store) Tokens() *Tokens { return &Tokens{s} }

// WithinTx runs fn while holding the unit-of-work mutex.  On error, or if
// ctx is done by the time fn returns, the booking tables are restored.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx service.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	snap := s.t.clone()
	s.mu.RUnlock()

	err := fn(ctx, txView{s})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Lock()
		s.t = snap
		s.mu.Unlock()
	}
	return err
}

// txView is the Store handed to a running unit of work; nested WithinTx
// calls join it.
type txView struct{ *Store }

func (v txView) WithinTx(ctx context.Context, fn func(ctx context.Context, tx service.Store) error) error {
	return fn(ctx, v)
}

// SetClock replaces the time source used for row timestamps and token
// expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddUser seeds a user and returns it with its assigned ID.
func (s *Store) AddUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextUser
	}
	if u.ID >= s.nextUser {
		s.nextUser = u.ID + 1
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	u.IsActive = true
	s.users[u.ID] = u
	return u
}

// PutCapacity overwrites the ledger row for a date.
func (s *Store) PutCapacity(row model.DateCapacity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row.Date = service.NormalizeDate(row.Date)
	s.t.capacity[row.Date] = row
}

// ---- reservations ----

type reservations struct{ s *Store }

func (r reservations) Create(_ context.Context, res model.Reservation) (uint64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res.ID = r.s.t.nextReservation
	r.s.t.nextReservation++
	res.ReservationDate = service.NormalizeDate(res.ReservationDate)
	r.s.t.reservations[res.ID] = res
	return res.ID, nil
}

func (r reservations) Get(_ context.Context, id uint64) (model.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.t.reservations[id]
	if !ok {
		return model.Reservation{}, sql.ErrNoRows
	}
	return res, nil
}

func (r reservations) GetForUpdate(ctx context.Context, id uint64) (model.Reservation, error) {
	return r.Get(ctx, id)
}

func (r reservations) SetStatus(_ context.Context, id uint64, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.t.reservations[id]
	if !ok {
		return sql.ErrNoRows
	}
	res.Status = status
	r.s.t.reservations[id] = res
	return nil
}

func (r reservations) SetPrimaryUser(_ context.Context, id, userID uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.t.reservations[id]
	if !ok {
		return sql.ErrNoRows
	}
	res.PrimaryUserID = userID
	r.s.t.reservations[id] = res
	return nil
}

func (r reservations) ListForUser(_ context.Context, userID uint64) ([]model.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []model.Reservation{}
	for k, seat := range r.s.t.seats {
		if k.userID != userID || !seat.Active() {
			continue
		}
		if res, ok := r.s.t.reservations[k.reservationID]; ok {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReservationDate.Equal(out[j].ReservationDate) {
			return out[i].ReservationDate.After(out[j].ReservationDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r reservations) ListForDate(_ context.Context, date time.Time) ([]model.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	date = service.NormalizeDate(date)
	out := []model.Reservation{}
	for _, res := range r.s.t.reservations {
		if res.ReservationDate.Equal(date) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r reservations) ActiveDatesForUser(_ context.Context, userID uint64, from, to time.Time) ([]time.Time, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	from, to = service.NormalizeDate(from), service.NormalizeDate(to)
	seen := map[time.Time]bool{}
	out := []time.Time{}
	for k, seat := range r.s.t.seats {
		if k.userID != userID || !seat.Active() {
			continue
		}
		res, ok := r.s.t.reservations[k.reservationID]
		if !ok || !res.Active() {
			continue
		}
		d := res.ReservationDate
		if d.Before(from) || d.After(to) || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// ---- seats ----

type seats struct{ s *Store }

func (r seats) ListByReservation(_ context.Context, reservationID uint64) ([]model.ReservationUser, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []model.ReservationUser{}
	for k, seat := range r.s.t.seats {
		if k.reservationID == reservationID {
			out = append(out, seat)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r seats) Insert(_ context.Context, u model.ReservationUser) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := seatKey{u.ReservationID, u.UserID}
	if _, exists := r.s.t.seats[k]; exists {
		return repository.ErrDuplicate
	}
	r.s.t.seats[k] = u
	return nil
}

func (r seats) Update(_ context.Context, u model.ReservationUser) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := seatKey{u.ReservationID, u.UserID}
	if _, exists := r.s.t.seats[k]; !exists {
		return sql.ErrNoRows
	}
	r.s.t.seats[k] = u
	return nil
}

// ---- capacity ----

type capacity struct{ s *Store }

func (r capacity) Get(_ context.Context, date time.Time) (model.DateCapacity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	row, ok := r.s.t.capacity[service.NormalizeDate(date)]
	if !ok {
		return model.DateCapacity{}, sql.ErrNoRows
	}
	return row, nil
}

func (r capacity) Acquire(_ context.Context, date time.Time, maxCapacity int) (model.DateCapacity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	date = service.NormalizeDate(date)
	row, ok := r.s.t.capacity[date]
	if !ok {
		row = model.DateCapacity{Date: date, MaxCapacity: maxCapacity}
		r.s.t.capacity[date] = row
	}
	return row, nil
}

func (r capacity) SetTotal(_ context.Context, date time.Time, total int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	date = service.NormalizeDate(date)
	row, ok := r.s.t.capacity[date]
	if !ok {
		return sql.ErrNoRows
	}
	row.TotalBookings = total
	r.s.t.capacity[date] = row
	return nil
}

func (r capacity) ListRange(_ context.Context, start, end time.Time) ([]model.DateCapacity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	start, end = service.NormalizeDate(start), service.NormalizeDate(end)
	out := []model.DateCapacity{}
	for d, row := range r.s.t.capacity {
		if !d.Before(start) && !d.After(end) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// ---- transfers ----

type transfers struct{ s *Store }

func (r transfers) Create(_ context.Context, t model.ReservationTransfer) (uint64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t.ID = r.s.t.nextTransfer
	r.s.t.nextTransfer++
	t.SpotsToTransfer = append(model.UserIDs(nil), t.SpotsToTransfer...)
	r.s.t.transfers[t.ID] = t
	return t.ID, nil
}

func (r transfers) Get(_ context.Context, id uint64) (model.ReservationTransfer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.t.transfers[id]
	if !ok {
		return model.ReservationTransfer{}, sql.ErrNoRows
	}
	t.SpotsToTransfer = append(model.UserIDs(nil), t.SpotsToTransfer...)
	return t, nil
}

func (r transfers) GetForUpdate(ctx context.Context, id uint64) (model.ReservationTransfer, error) {
	return r.Get(ctx, id)
}

func (r transfers) PendingForReservation(_ context.Context, reservationID uint64) (model.ReservationTransfer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.t.transfers {
		if t.ReservationID == reservationID && t.Status == model.TransferPending {
			t.SpotsToTransfer = append(model.UserIDs(nil), t.SpotsToTransfer...)
			return t, nil
		}
	}
	return model.ReservationTransfer{}, sql.ErrNoRows
}

func (r transfers) Resolve(_ context.Context, id uint64, status string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.t.transfers[id]
	if !ok || t.Status != model.TransferPending {
		return sql.ErrNoRows
	}
	t.Status = status
	t.RespondedAt = &at
	r.s.t.transfers[id] = t
	return nil
}

func (r transfers) ListForUser(_ context.Context, userID uint64, direction string) ([]model.ReservationTransfer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []model.ReservationTransfer{}
	for _, t := range r.s.t.transfers {
		in := t.ToUserID == userID
		outgoing := t.FromUserID == userID
		switch direction {
		case "incoming":
			if !in {
				continue
			}
		case "outgoing":
			if !outgoing {
				continue
			}
		default:
			if !in && !outgoing {
				continue
			}
		}
		t.SpotsToTransfer = append(model.UserIDs(nil), t.SpotsToTransfer...)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.After(out[j].RequestedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ---- users ----

// Users is the in-memory user table.
type Users struct{ s *Store }

func (r *Users) GetByID(_ context.Context, id uint64) (model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (r *Users) Lock(ctx context.Context, id uint64) (model.User, error) {
	return r.GetByID(ctx, id)
}

func (r *Users) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

// Create hashes password and stores u, rejecting a taken email.
func (r *Users) Create(_ context.Context, u model.User, password string, cost int) (uint64, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return 0, repository.ErrEmailExists
		}
	}
	u.ID = r.s.nextUser
	r.s.nextUser++
	u.PasswordHash = hash
	u.IsActive = true
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	now := r.s.now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.users[u.ID] = u
	return u.ID, nil
}

func (r *Users) UpdateAddress(_ context.Context, id uint64, addr model.Address) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Street, u.City, u.State, u.Zip = addr.Street, addr.City, addr.State, addr.Zip
	u.UpdatedAt = r.s.now().UTC()
	r.s.users[id] = u
	return nil
}

// ---- refresh tokens ----

// Tokens is the in-memory refresh-token table.
type Tokens struct{ s *Store }

func (r *Tokens) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tokens[tokenHash] = model.RefreshToken{
		ID: r.s.nextToken, UserID: userID, TokenHash: tokenHash, ExpiresAt: exp, CreatedAt: r.s.now().UTC(),
	}
	r.s.nextToken++
	return nil
}

func (r *Tokens) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tokens[tokenHash]
	if !ok || t.RevokedAt != nil || !r.s.now().UTC().Before(t.ExpiresAt) {
		return 0, sql.ErrNoRows
	}
	return t.UserID, nil
}

func (r *Tokens) RevokeByHash(_ context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tokens[tokenHash]; ok && t.RevokedAt == nil {
		now := r.s.now().UTC()
		t.RevokedAt = &now
		r.s.tokens[tokenHash] = t
	}
	return nil
}

func (r *Tokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now().UTC()
	for h, t := range r.s.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			r.s.tokens[h] = t
		}
	}
	return nil
}
