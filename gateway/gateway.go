package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/pkg/logging"
	"github.com/sweetpotato0/agri-advisor/pkg/telemetry"
)

// Generator is the contract the advisory stages depend on.
type Generator interface {
	Generate(ctx context.Context, req Request) Result
}

// Result is the outcome of a gateway call. Exactly one of Text or Err is
// meaningful; callers branch on OK rather than on panics.
type Result struct {
	Text     string
	Backend  string
	Attempts int
	Err      error
}

// OK reports whether a backend produced output.
func (r Result) OK() bool { return r.Err == nil }

// Unavailable reports whether the caller should switch to a non-LLM strategy:
// no backend was configured or every backend failed.
func (r Result) Unavailable() bool {
	return errors.Is(r.Err, agerrors.ErrNoBackendAvailable) || errors.Is(r.Err, agerrors.ErrBackendsExhausted)
}

// Gateway selects a backend per call and wraps it in the retry policy.
type Gateway struct {
	descriptors []Descriptor
	policy      RetryPolicy
	callTimeout time.Duration
	failover    bool
	logger      *slog.Logger

	mu       sync.Mutex
	backends map[string]Backend
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(g *Gateway) { g.policy = p }
}

// WithCallTimeout bounds each backend attempt.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.callTimeout = d }
}

// WithFailover controls whether a failed backend hands over to the next one.
func WithFailover(enabled bool) Option {
	return func(g *Gateway) { g.failover = enabled }
}

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a gateway over the given descriptors. Descriptors without a
// credential are kept but never selected.
func New(descs []Descriptor, opts ...Option) *Gateway {
	g := &Gateway{
		descriptors: append([]Descriptor(nil), descs...),
		policy:      DefaultRetryPolicy(),
		callTimeout: 60 * time.Second,
		failover:    true,
		logger:      logging.WithComponent("gateway"),
		backends:    make(map[string]Backend),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Available reports whether any backend could be selected.
func (g *Gateway) Available() bool {
	_, err := Select(g.descriptors)
	return err == nil
}

// Backends lists selectable backend names in priority order.
func (g *Gateway) Backends() []string {
	selected, err := Select(g.descriptors)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(selected))
	for _, d := range selected {
		names = append(names, d.Name)
	}
	return names
}

// Generate runs the request on the highest-priority usable backend.
func (g *Gateway) Generate(ctx context.Context, req Request) Result {
	selected, err := Select(g.descriptors)
	if err != nil {
		return Result{Err: err}
	}
	if req.NeedsVision() {
		selected = filterCapability(selected, CapVision)
		if len(selected) == 0 {
			return Result{Err: fmt.Errorf("%w: no backend supports vision", agerrors.ErrNoBackendAvailable)}
		}
	}

	var last Result
	for _, desc := range selected {
		last = g.generateWith(ctx, desc, req)
		if last.OK() {
			return last
		}
		if ctx.Err() != nil || !g.failover {
			break
		}
		g.logger.Warn("backend failed, trying next",
			"backend", desc.Name,
			"tier", desc.Tier.String(),
			"attempts", last.Attempts,
			"error", last.Err,
		)
	}
	last.Err = fmt.Errorf("%w: %w", agerrors.ErrBackendsExhausted, last.Err)
	return last
}

func (g *Gateway) generateWith(ctx context.Context, desc Descriptor, req Request) Result {
	backend, err := g.backend(desc)
	if err != nil {
		return Result{Backend: desc.Name, Err: err}
	}

	ctx, span := telemetry.Start(ctx, "gateway.generate",
		attribute.String("backend", desc.Name),
		attribute.String("tier", desc.Tier.String()),
		attribute.Bool("json", req.JSON),
		attribute.Bool("vision", req.NeedsVision()),
	)

	policy := g.policy
	userHook := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		g.logger.Warn("rate limited, backing off",
			"backend", desc.Name,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		if userHook != nil {
			userHook(attempt, err, wait)
		}
	}

	text, attempts, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		callCtx := ctx
		if g.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.callTimeout)
			defer cancel()
		}
		return backend.Generate(callCtx, req)
	})
	span.SetAttributes(attribute.Int("attempts", attempts))
	telemetry.End(span, err)

	return Result{Text: text, Backend: desc.Name, Attempts: attempts, Err: err}
}

func (g *Gateway) backend(desc Descriptor) (Backend, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.backends[desc.Name]; ok {
		return b, nil
	}
	b, err := desc.Factory()
	if err != nil {
		return nil, fmt.Errorf("init backend %s: %w", desc.Name, err)
	}
	g.backends[desc.Name] = b
	return b, nil
}

func filterCapability(descs []Descriptor, c Capability) []Descriptor {
	out := descs[:0:0]
	for _, d := range descs {
		if d.Supports(c) {
			out = append(out, d)
		}
	}
	return out
}
