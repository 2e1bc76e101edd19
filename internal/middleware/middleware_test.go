package middleware

import (
    "io"
    "net/http"
    "net/http/httptest"
    "strconv"
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/park-reservation/internal/config"
)

func quietLogger() logrus.FieldLogger {
    l := logrus.New()
    l.SetOutput(io.Discard)
    return l
}

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
    t.Helper()
    s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    require.NoError(t, err)
    return s
}

func TestJWTAuthSetsIdentity(t *testing.T) {
    e := echo.New()
    var gotID uint64
    var gotRole string
    e.GET("/me", func(c echo.Context) error {
        gotID, _ = UserID(c)
        gotRole, _ = c.Get("role").(string)
        return c.NoContent(http.StatusOK)
    }, JWTAuth("s3cret"))

    tok := signed(t, "s3cret", jwt.MapClaims{"sub": 42, "role": "USER", "exp": time.Now().Add(time.Minute).Unix()})
    req := httptest.NewRequest(http.MethodGet, "/me", nil)
    req.Header.Set("Authorization", "Bearer "+tok)
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)

    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, uint64(42), gotID)
    assert.Equal(t, "USER", gotRole)
}

func TestJWTAuthRejects(t *testing.T) {
    e := echo.New()
    e.GET("/me", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, JWTAuth("s3cret"))

    cases := map[string]string{
        "missing":      "",
        "wrong secret": "Bearer " + signed(t, "other", jwt.MapClaims{"sub": 1, "exp": time.Now().Add(time.Minute).Unix()}),
        "expired":      "Bearer " + signed(t, "s3cret", jwt.MapClaims{"sub": 1, "exp": time.Now().Add(-time.Minute).Unix()}),
        "no subject":   "Bearer " + signed(t, "s3cret", jwt.MapClaims{"exp": time.Now().Add(time.Minute).Unix()}),
    }
    for name, header := range cases {
        t.Run(name, func(t *testing.T) {
            req := httptest.NewRequest(http.MethodGet, "/me", nil)
            if header != "" {
                req.Header.Set("Authorization", header)
            }
            rec := httptest.NewRecorder()
            e.ServeHTTP(rec, req)
            assert.Equal(t, http.StatusUnauthorized, rec.Code)
        })
    }
}

func TestRequireRole(t *testing.T) {
    e := echo.New()
    h := RequireRole("ADMIN")(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

    c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
    c.Set("role", "USER")
    require.NoError(t, h(c))
    assert.Equal(t, http.StatusForbidden, c.Response().Status)

    rec := httptest.NewRecorder()
    c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
    c.Set("role", "ADMIN")
    require.NoError(t, h(c))
    assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLocalBucketsLimitPerKey(t *testing.T) {
    now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
    cfg := config.RateLimitConfig{Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute, Prefix: "rl", KeyStrategy: "ip"}
    store := newLocalBuckets(cfg, func() time.Time { return now })

    e := echo.New()
    e.POST("/v1/auth/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, tokenBucket(cfg, store, quietLogger()))

    do := func(ip string) *httptest.ResponseRecorder {
        req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
        req.Header.Set(echo.HeaderXRealIP, ip)
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, req)
        return rec
    }

    assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)
    assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)
    blocked := do("10.0.0.1")
    assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
    retry, err := strconv.Atoi(blocked.Header().Get("Retry-After"))
    require.NoError(t, err)
    assert.InDelta(t, 60, retry, 1)

    assert.Equal(t, http.StatusOK, do("10.0.0.2").Code)

    now = now.Add(2 * time.Minute)
    assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)
}

func TestTokenBucketDisabledPassesThrough(t *testing.T) {
    mw := NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, quietLogger())
    e := echo.New()
    rec := httptest.NewRecorder()
    c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
    require.NoError(t, mw(func(c echo.Context) error { return c.NoContent(http.StatusAccepted) })(c))
    assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestPayloadRoundTrip(t *testing.T) {
    hdr := http.Header{"Content-Type": {"application/json"}}
    bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
    require.NoError(t, err)

    status, got, body, ok := decodePayload(bs)
    require.True(t, ok)
    assert.Equal(t, http.StatusOK, status)
    assert.Equal(t, "application/json", got.Get("Content-Type"))
    assert.Equal(t, `{"ok":true}`, string(body))

    _, _, _, ok = decodePayload([]byte{0, 1})
    assert.False(t, ok)
}

func TestCacheKeyIncludesQueryAndParams(t *testing.T) {
    cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
    e := echo.New()

    key := func(target string, date string) string {
        c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
        c.SetPath("/v1/availability/:date")
        c.SetParamNames("date")
        c.SetParamValues(date)
        return cacheKeyFrom(cfg, c)
    }
    a := key("/v1/availability/2025-02-08", "2025-02-08")
    b := key("/v1/availability/2025-02-09", "2025-02-09")
    assert.NotEqual(t, a, b)
    assert.Equal(t, a, key("/v1/availability/2025-02-08", "2025-02-08"))
    assert.Contains(t, a, "cache:")
}

func TestCaptureWriterLimit(t *testing.T) {
    rec := httptest.NewRecorder()
    cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
    _, _ = cw.Write([]byte("abcdef"))
    assert.Equal(t, "abcd", cw.buf.String())
    assert.True(t, cw.truncated())
    assert.Equal(t, "abcdef", rec.Body.String())
}
