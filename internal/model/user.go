package model

import "time"

// Roles carried in the JWT "role" claim.
const (
    RoleUser  = "USER"
    RoleAdmin = "ADMIN"
)

// User mirrors the `users` table.  Address fields are optional and are
// set through the profile endpoint.
type User struct {
    ID           uint64    `db:"id" json:"id"`
    Email        string    `db:"email" json:"email"`
    PasswordHash string    `db:"password_hash" json:"-"`
    FirstName    string    `db:"first_name" json:"firstName"`
    LastName     string    `db:"last_name" json:"lastName"`
    Role         string    `db:"role" json:"role"`
    Street       string    `db:"street" json:"street,omitempty"`
    City         string    `db:"city" json:"city,omitempty"`
    State        string    `db:"state" json:"state,omitempty"`
    Zip          string    `db:"zip" json:"zip,omitempty"`
    IsActive     bool      `db:"is_active" json:"isActive"`
    CreatedAt    time.Time `db:"created_at" json:"createdAt"`
    UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Address is the mutable postal part of a user profile.
type Address struct {
    Street string `json:"street"`
    City   string `json:"city"`
    State  string `json:"state"`
    Zip    string `json:"zip"`
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token is stored.
type RefreshToken struct {
    ID        uint64     `db:"id"`
    UserID    uint64     `db:"user_id"`
    TokenHash string     `db:"token_hash"`
    ExpiresAt time.Time  `db:"expires_at"`
    RevokedAt *time.Time `db:"revoked_at"`
    CreatedAt time.Time  `db:"created_at"`
}
