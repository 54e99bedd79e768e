package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/ehr/formengine/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns the settings used for record writes.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 5,
		BurstSize:         10,
	}
}

// visitor is the limiter state of one caller.
type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiter keeps one token bucket per caller key. Visitors idle long enough
// to have refilled completely carry no state and are dropped on sweep.
type limiter struct {
	cfg      RateLimitConfig
	now      func() time.Time
	idle     time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
	takes    int
}

const sweepEvery = 256

func newLimiter(cfg RateLimitConfig, now func() time.Time) *limiter {
	idle := time.Minute
	if cfg.RequestsPerSecond > 0 {
		idle += time.Duration(float64(cfg.BurstSize) / cfg.RequestsPerSecond * float64(time.Second))
	}
	return &limiter{
		cfg:      cfg,
		now:      now,
		idle:     idle,
		visitors: make(map[string]*visitor),
	}
}

// take spends one token for key. It returns whether the call is allowed, the
// whole tokens left and, when refused, the seconds until the next token.
func (l *limiter) take(key string) (ok bool, remaining int, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.takes++
	if l.takes%sweepEvery == 0 {
		l.sweep(now)
	}

	v, found := l.visitors[key]
	if !found {
		v = &visitor{lim: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.BurstSize)}
		l.visitors[key] = v
	}
	v.seen = now

	if v.lim.AllowN(now, 1) {
		return true, int(v.lim.TokensAt(now)), 0
	}
	if l.cfg.RequestsPerSecond <= 0 {
		return false, 0, 1
	}
	return false, 0, int((1-v.lim.TokensAt(now))/l.cfg.RequestsPerSecond) + 1
}

func (l *limiter) sweep(now time.Time) {
	for k, v := range l.visitors {
		if now.Sub(v.seen) > l.idle {
			delete(l.visitors, k)
		}
	}
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// rateLimitKey buckets authenticated callers per user and the rest per
// client IP.
func rateLimitKey(c echo.Context) string {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.RealIP()
}

// RateLimit returns a rate limiting middleware keyed by rateLimitKey.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newLimiter(cfg, time.Now))
}

func rateLimit(l *limiter) echo.MiddlewareFunc {
	limit := strconv.FormatFloat(l.cfg.RequestsPerSecond, 'f', -1, 64)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, remaining, retryAfter := l.take(rateLimitKey(c))
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
