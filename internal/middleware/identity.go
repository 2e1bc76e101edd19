package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// UserID returns the authenticated user's ID set by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
    return toUserID(c.Get("user_id"))
}

// toUserID accepts the shapes a numeric subject can take after a JSON
// round trip.
func toUserID(v interface{}) (uint64, bool) {
    switch t := v.(type) {
    case uint64:
        return t, t > 0
    case int:
        return uint64(t), t > 0
    case int64:
        return uint64(t), t > 0
    case float64:
        return uint64(t), t >= 1
    case string:
        n, err := strconv.ParseUint(t, 10, 64)
        return n, err == nil && n > 0
    }
    return 0, false
}

// rateIdentity is the user part of a rate-limit key.
func rateIdentity(c echo.Context) string {
    if uid, ok := UserID(c); ok {
        return strconv.FormatUint(uid, 10)
    }
    return "anon"
}
