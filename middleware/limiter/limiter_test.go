package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sweetpotato0/agri-advisor/advisory"
	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/middleware"
)

func TestRateLimiterRejectsOverBudget(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 2)
	l.now = func() time.Time { return now }
	ok := func(*middleware.Context) error { return nil }

	ctx := middleware.NewContext(context.Background(), advisory.Request{})
	ctx.Client = "10.0.0.1"

	assert.NoError(t, l.Execute(ctx, ok))
	assert.NoError(t, l.Execute(ctx, ok))
	assert.ErrorIs(t, l.Execute(ctx, ok), agerrors.ErrRateLimited)

	// Another client has its own bucket.
	other := middleware.NewContext(context.Background(), advisory.Request{})
	other.Client = "10.0.0.2"
	assert.NoError(t, l.Execute(other, ok))

	// Tokens refill over time.
	now = now.Add(time.Second)
	assert.NoError(t, l.Execute(ctx, ok))
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(5, 5)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Clients())

	now = now.Add(11 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Clients())
}
