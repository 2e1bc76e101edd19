package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/park-reservation/internal/service"
)

// Storage is the MySQL booking store.  A Storage created by NewStorage
// opens a transaction per unit of work; the Storage handed to the unit
// runs every statement on that transaction.
type Storage struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
}

var _ service.Store = (*Storage)(nil)

func NewStorage(db *sqlx.DB) *Storage { return &Storage{db: db, ext: db} }

func (s *Storage) Reservations() service.ReservationRepository { return &ReservationRepo{ext: s.ext} }
func (s *Storage) Seats() service.SeatRepository               { return &SeatRepo{ext: s.ext} }
func (s *Storage) Capacity() service.CapacityRepository        { return &CapacityRepo{ext: s.ext} }
func (s *Storage) Transfers() service.TransferRepository       { return &TransferRepo{ext: s.ext} }
func (s *Storage) Users() service.UserRepository               { return &UserRepo{ext: s.ext} }

// WithinTx begins a transaction, runs fn on it and commits when fn returns
// nil.  Any error, including a cancelled ctx, rolls back.
func (s *Storage) WithinTx(ctx context.Context, fn func(ctx context.Context, tx service.Store) error) error {
	if s.db == nil {
		// Already inside a transaction.
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, &Storage{ext: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
