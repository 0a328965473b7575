package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/pkg/logging"
)

// fakeTimer fires immediately and records every requested wait.
type fakeTimer struct {
	waits []time.Duration
	c     chan time.Time
}

func newFakeTimer() *fakeTimer { return &fakeTimer{c: make(chan time.Time, 1)} }

func (f *fakeTimer) Start(d time.Duration) {
	f.waits = append(f.waits, d)
	f.c <- time.Now()
}

func (f *fakeTimer) Stop() {}

func (f *fakeTimer) C() <-chan time.Time { return f.c }

func (f *fakeTimer) total() (d time.Duration) {
	for _, w := range f.waits {
		d += w
	}
	return d
}

// scriptedBackend returns the scripted errors in order, then "ok".
type scriptedBackend struct {
	name  string
	errs  []error
	calls int
	last  Request
}

func (s *scriptedBackend) Name() string { return s.name }

func (s *scriptedBackend) Generate(_ context.Context, req Request) (string, error) {
	s.calls++
	s.last = req
	if s.calls <= len(s.errs) {
		return "", s.errs[s.calls-1]
	}
	return s.name + ":ok", nil
}

func rateLimited(backend string) error {
	return &StatusError{Backend: backend, StatusCode: http.StatusTooManyRequests, Err: errors.New("quota")}
}

func testPolicy(timer *fakeTimer) RetryPolicy {
	p := DefaultRetryPolicy()
	p.BaseDelay = 100 * time.Millisecond
	p.timer = timer
	return p
}

func TestRetryRateLimitThenSuccess(t *testing.T) {
	timer := newFakeTimer()
	backend := &scriptedBackend{name: "primary", errs: []error{rateLimited("primary"), rateLimited("primary")}}
	gw := New([]Descriptor{StaticBackend(TierPrimary, backend)},
		WithRetryPolicy(testPolicy(timer)), WithLogger(logging.Discard()))

	res := gw.Generate(context.Background(), Request{Prompt: "hi"})

	require.True(t, res.OK(), res.Err)
	assert.Equal(t, "primary:ok", res.Text)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, timer.waits)
	assert.Equal(t, 100*time.Millisecond+2*100*time.Millisecond, timer.total())
}

func TestRetryStopsOnNonRateLimitError(t *testing.T) {
	timer := newFakeTimer()
	badKey := &StatusError{Backend: "primary", StatusCode: http.StatusUnauthorized, Err: errors.New("invalid api key")}
	backend := &scriptedBackend{name: "primary", errs: []error{badKey, badKey, badKey}}
	gw := New([]Descriptor{StaticBackend(TierPrimary, backend)},
		WithRetryPolicy(testPolicy(timer)), WithLogger(logging.Discard()))

	res := gw.Generate(context.Background(), Request{Prompt: "hi"})

	require.False(t, res.OK())
	assert.ErrorIs(t, res.Err, badKey)
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, timer.waits)
}

func TestRetryBudgetExhausted(t *testing.T) {
	timer := newFakeTimer()
	limit := rateLimited("primary")
	backend := &scriptedBackend{name: "primary", errs: []error{limit, limit, limit, limit}}
	gw := New([]Descriptor{StaticBackend(TierPrimary, backend)},
		WithRetryPolicy(testPolicy(timer)), WithLogger(logging.Discard()))

	res := gw.Generate(context.Background(), Request{Prompt: "hi"})

	assert.True(t, res.Unavailable())
	assert.ErrorIs(t, res.Err, agerrors.ErrBackendsExhausted)
	assert.ErrorIs(t, res.Err, limit)
	assert.Equal(t, 3, backend.calls)
	assert.Len(t, timer.waits, 2)
}

func TestFailoverToSecondary(t *testing.T) {
	timer := newFakeTimer()
	primary := &scriptedBackend{name: "primary", errs: []error{errors.New("boom")}}
	secondary := &scriptedBackend{name: "secondary"}
	gw := New([]Descriptor{
		StaticBackend(TierSecondary, secondary),
		StaticBackend(TierPrimary, primary),
	}, WithRetryPolicy(testPolicy(timer)), WithLogger(logging.Discard()))

	res := gw.Generate(context.Background(), Request{Prompt: "hi"})

	require.True(t, res.OK())
	assert.Equal(t, "secondary", res.Backend)
	assert.Equal(t, 1, primary.calls)
}

func TestNoFailover(t *testing.T) {
	primary := &scriptedBackend{name: "primary", errs: []error{errors.New("boom")}}
	secondary := &scriptedBackend{name: "secondary"}
	gw := New([]Descriptor{StaticBackend(TierPrimary, primary), StaticBackend(TierSecondary, secondary)},
		WithFailover(false), WithRetryPolicy(NoRetry()), WithLogger(logging.Discard()))

	res := gw.Generate(context.Background(), Request{Prompt: "hi"})

	assert.False(t, res.OK())
	assert.Zero(t, secondary.calls)
}

func TestSelectByCredential(t *testing.T) {
	factory := func() (Backend, error) { return &scriptedBackend{name: "x"}, nil }
	descs := []Descriptor{
		{Tier: TierSecondary, Name: "openai", Credential: "sk-1", Factory: factory},
		{Tier: TierPrimary, Name: "gemini", Credential: "", Factory: factory},
		{Tier: TierTertiary, Name: "claude", Credential: "ak-1", Factory: factory},
	}

	selected, err := Select(descs)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "openai", selected[0].Name)
	assert.Equal(t, "claude", selected[1].Name)

	descs[1].Credential = "gm-1"
	selected, err = Select(descs)
	require.NoError(t, err)
	assert.Equal(t, "gemini", selected[0].Name)
}

func TestNoBackendAvailable(t *testing.T) {
	_, err := Select(nil)
	assert.ErrorIs(t, err, agerrors.ErrNoBackendAvailable)

	gw := New([]Descriptor{{Tier: TierPrimary, Name: "gemini"}}, WithLogger(logging.Discard()))
	assert.False(t, gw.Available())

	res := gw.Generate(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, res.Err, agerrors.ErrNoBackendAvailable)
	assert.True(t, res.Unavailable())
}

func TestVisionRequiresCapability(t *testing.T) {
	text := &scriptedBackend{name: "text-only"}
	vision := &scriptedBackend{name: "vision"}
	gw := New([]Descriptor{
		StaticBackend(TierPrimary, text),
		StaticBackend(TierSecondary, vision, CapVision),
	}, WithLogger(logging.Discard()))

	res := gw.Generate(context.Background(), Request{Prompt: "look", Image: []byte{0xff, 0xd8}})

	require.True(t, res.OK())
	assert.Equal(t, "vision", res.Backend)
	assert.Zero(t, text.calls)
}

func TestFactoryIsCalledOnce(t *testing.T) {
	built := 0
	desc := Descriptor{Tier: TierPrimary, Name: "lazy", Credential: "k", Factory: func() (Backend, error) {
		built++
		return &scriptedBackend{name: "lazy"}, nil
	}}
	gw := New([]Descriptor{desc}, WithLogger(logging.Discard()))

	gw.Generate(context.Background(), Request{Prompt: "a"})
	gw.Generate(context.Background(), Request{Prompt: "b"})

	assert.Equal(t, 1, built)
}

func TestIsRateLimit(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 429", rateLimited("x"), true},
		{"status 500", &StatusError{StatusCode: 500, Err: errors.New("x")}, false},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"wrapped text", fmt.Errorf("call: %w", errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED")), true},
		{"status text", errors.New("POST /v1/chat: status 429"), true},
		{"too many requests", errors.New("429 Too Many Requests"), true},
		{"port 4290", errors.New("dial tcp 10.0.0.7:4290: connection refused"), false},
		{"address with 429", errors.New("dial tcp 10.0.4.29:443: i/o timeout"), false},
		{"plain", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRateLimit(tc.err))
		})
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultRetryPolicy()
	p.BaseDelay = time.Hour

	attempts, err := p.Do(ctx, func(context.Context) error {
		cancel()
		return rateLimited("x")
	})

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequestTemperatureOr(t *testing.T) {
	assert.Equal(t, 0.2, Request{}.TemperatureOr(0.2))
	assert.Equal(t, 0.0, Request{Temperature: Float(0)}.TemperatureOr(0.2))
	assert.Equal(t, 0.9, Request{Temperature: Float(0.9)}.TemperatureOr(0.2))
}
