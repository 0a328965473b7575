package limiter

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/middleware"
)

// RateLimiter is a token-bucket limiter keyed by Context.Client. Buckets
// idle for longer than the idle timeout are dropped.
type RateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter allows perSecond calls per client with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Name returns the middleware name
func (m *RateLimiter) Name() string {
	return "RateLimiter"
}

// Execute rejects the call with ErrRateLimited when the client's bucket is
// empty.
func (m *RateLimiter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if !m.Allow(ctx.Client) {
		return fmt.Errorf("%w: client %q", agerrors.ErrRateLimited, ctx.Client)
	}
	return next(ctx)
}

// Allow takes a token from the client's bucket.
func (m *RateLimiter) Allow(client string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[client]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(m.limit, m.burst)}
		m.buckets[client] = b
	}
	b.seen = now
	m.sweepLocked(now)
	return b.lim.AllowN(now, 1)
}

// Clients returns how many buckets are tracked.
func (m *RateLimiter) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

func (m *RateLimiter) sweepLocked(now time.Time) {
	for k, b := range m.buckets {
		if now.Sub(b.seen) > m.idle {
			delete(m.buckets, k)
		}
	}
}
