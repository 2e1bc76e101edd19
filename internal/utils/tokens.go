package utils // package utils holds token and password helpers shared by the auth layer

import (
    "crypto/rand"
    "crypto/sha256"
    "encoding/hex"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped into every access token.
const Issuer = "park-reservation"

// AccessToken is a signed JWT and the moment it stops being accepted.
type AccessToken struct {
    Token string
    Exp   time.Time
}

// RefreshToken is the raw value handed to the client.  Only its SHA-256
// hash is persisted.
type RefreshToken struct {
    Raw string
    Exp time.Time
}

// NewAccessToken signs an HS256 token carrying the user's ID as sub and
// their role.  issuedAt is usually time.Now.
func NewAccessToken(secret string, userID uint64, role string, ttl time.Duration, issuedAt time.Time) (AccessToken, error) {
    issuedAt = issuedAt.UTC()
    exp := issuedAt.Add(ttl)
    claims := jwt.MapClaims{
        "sub":  userID,
        "role": role,
        "iss":  Issuer,
        "iat":  issuedAt.Unix(),
        "exp":  exp.Unix(),
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// NewRefreshToken returns 48 random bytes hex-encoded.
func NewRefreshToken(ttl time.Duration, issuedAt time.Time) (RefreshToken, error) {
    buf := make([]byte, 48)
    if _, err := rand.Read(buf); err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{Raw: hex.EncodeToString(buf), Exp: issuedAt.UTC().Add(ttl)}, nil
}

// HashRefreshRaw is the lookup key for a refresh token.
func HashRefreshRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}
