package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/park-reservation/internal/model"
	"github.com/iliyamo/park-reservation/internal/utils"
)

const userColumns = `id, email, password_hash, first_name, last_name, role,
	street, city, state, zip, is_active, created_at, updated_at`

// UserRepo provides access to the users table.
type UserRepo struct{ ext sqlx.ExtContext }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{ext: db} }

// Create hashes password, inserts u and returns its ID.
func (r *UserRepo) Create(ctx context.Context, u model.User, password string, cost int) (uint64, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	role := u.Role
	if role == "" {
		role = model.RoleUser
	}
	res, err := r.ext.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, role, street, city, state, zip)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.ToLower(strings.TrimSpace(u.Email)), hash, u.FirstName, u.LastName, role,
		u.Street, u.City, u.State, u.Zip)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, r.ext, &u,
		"SELECT "+userColumns+" FROM users WHERE email = ? LIMIT 1", strings.ToLower(strings.TrimSpace(email)))
	return u, err
}

func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, r.ext, &u, "SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id)
	return u, err
}

// Lock takes the user's row lock for the rest of the transaction.
func (r *UserRepo) Lock(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, r.ext, &u, "SELECT "+userColumns+" FROM users WHERE id = ? FOR UPDATE", id)
	return u, err
}

func (r *UserRepo) UpdateAddress(ctx context.Context, id uint64, addr model.Address) error {
	return execOne(ctx, r.ext,
		"UPDATE users SET street = ?, city = ?, state = ?, zip = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?",
		addr.Street, addr.City, addr.State, addr.Zip, id)
}
