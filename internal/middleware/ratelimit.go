package middleware

import (
    "context"
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"
    "golang.org/x/time/rate"

    "github.com/iliyamo/park-reservation/internal/config"
)

// decision is the outcome of one token request.
type decision struct {
    allowed   bool
    remaining int64
    retry     time.Duration
}

type bucketStore interface {
    take(ctx context.Context, key string) (decision, error)
}

// tokenBucketScript refills and takes one token atomically.  State is a
// hash of tokens and last_refill_ms that expires after ttl_seconds idle.
var tokenBucketScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])
    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    local elapsed = math.max(0, now_ms - last_refill)
    local intervals = math.floor(elapsed / interval_ms)
    if intervals > 0 then
        tokens = math.min(capacity, tokens + (intervals * refill_tokens))
        last_refill = last_refill + (intervals * interval_ms)
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)
    return { allowed, tokens, retry_after_ms }
`)

// redisBuckets keeps buckets in Redis so every instance shares them.
type redisBuckets struct {
    cfg config.RateLimitConfig
    rdb *redis.Client
}

func (b redisBuckets) take(ctx context.Context, key string) (decision, error) {
    vals, err := tokenBucketScript.Run(ctx, b.rdb, []string{key},
        time.Now().UnixMilli(),
        b.cfg.Capacity,
        b.cfg.RefillTokens,
        b.cfg.RefillInterval.Milliseconds(),
        int64(b.cfg.TTL/time.Second),
    ).Result()
    if err != nil {
        return decision{}, err
    }
    arr, ok := vals.([]interface{})
    if !ok || len(arr) != 3 {
        return decision{}, fmt.Errorf("unexpected script result %#v", vals)
    }
    return decision{
        allowed:   asInt64(arr[0]) == 1,
        remaining: asInt64(arr[1]),
        retry:     time.Duration(asInt64(arr[2])) * time.Millisecond,
    }, nil
}

// localBuckets is the per-process fallback used when Redis is unavailable
// and RATE_LIMIT_LOCAL_FALLBACK is on.
type localBuckets struct {
    mu       sync.Mutex
    limiters map[string]*rate.Limiter
    limit    rate.Limit
    burst    int
    now      func() time.Time
}

func newLocalBuckets(cfg config.RateLimitConfig, now func() time.Time) *localBuckets {
    if now == nil {
        now = time.Now
    }
    perSecond := float64(cfg.RefillTokens) / cfg.RefillInterval.Seconds()
    return &localBuckets{
        limiters: make(map[string]*rate.Limiter),
        limit:    rate.Limit(perSecond),
        burst:    cfg.Capacity,
        now:      now,
    }
}

func (b *localBuckets) take(_ context.Context, key string) (decision, error) {
    b.mu.Lock()
    l, ok := b.limiters[key]
    if !ok {
        l = rate.NewLimiter(b.limit, b.burst)
        b.limiters[key] = l
    }
    b.mu.Unlock()

    now := b.now()
    r := l.ReserveN(now, 1)
    if delay := r.DelayFrom(now); delay > 0 {
        r.CancelAt(now)
        return decision{retry: delay}, nil
    }
    return decision{allowed: true, remaining: int64(l.TokensAt(now))}, nil
}

// NewTokenBucket limits requests per key built from cfg.KeyStrategy.
// With no Redis client it either falls back to in-process buckets or, by
// default, lets every request through.  Redis errors fail open.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log logrus.FieldLogger) echo.MiddlewareFunc {
    var store bucketStore
    switch {
    case !cfg.Enabled:
    case rdb != nil:
        store = redisBuckets{cfg: cfg, rdb: rdb}
    case cfg.LocalFallback:
        log.Warn("rate limiter using per-process buckets")
        store = newLocalBuckets(cfg, nil)
    }
    return tokenBucket(cfg, store, log)
}

func tokenBucket(cfg config.RateLimitConfig, store bucketStore, log logrus.FieldLogger) echo.MiddlewareFunc {
    if store == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            d, err := store.take(c.Request().Context(), key)
            if err != nil {
                log.WithError(err).WithField("key", key).Warn("rate limiter unavailable; allowing request")
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if !d.allowed {
                secs := int(math.Ceil(d.retry.Seconds()))
                h.Set("Retry-After", strconv.Itoa(secs))
                return c.JSON(http.StatusTooManyRequests, echo.Map{
                    "error":       "Too many requests, please try again later",
                    "retry_after": secs,
                })
            }
            return next(c)
        }
    }
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    uid := rateIdentity(c)
    route := c.Request().Method + " " + c.Path()

    parts := []string{cfg.Prefix}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", uid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "user_route":
        parts = append(parts, "user", uid, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}
