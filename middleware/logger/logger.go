package logger

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/agri-advisor/middleware"
	"github.com/sweetpotato0/agri-advisor/pkg/logging"
)

// RequestLogger logs each advisory call and its outcome.
type RequestLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewRequestLogger creates a logging middleware. A nil logger uses the
// "advice_calls" component logger.
func NewRequestLogger(logger *slog.Logger) *RequestLogger {
	if logger == nil {
		logger = logging.WithComponent("advice_calls")
	}
	return &RequestLogger{logger: logger, now: time.Now}
}

// Name returns the middleware name
func (m *RequestLogger) Name() string {
	return "RequestLogger"
}

// Execute logs the request before and the response after the call.
func (m *RequestLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	start := m.now()
	req := ctx.Request
	m.logger.Info("advice requested",
		"client", ctx.Client,
		"session", ctx.SessionID,
		"query_len", len(req.Query),
		"structured", req.Input != nil,
		"has_location", req.Location != nil,
		"has_image", len(req.Image) > 0,
	)

	err := next(ctx)

	attrs := []any{"client", ctx.Client, "duration", m.now().Sub(start)}
	if resp := ctx.Response; resp != nil {
		attrs = append(attrs, "run_id", resp.RunID, "status", resp.Status, "source", resp.Advice.Source)
	}
	if err != nil {
		m.logger.Warn("advice call failed", append(attrs, "error", err)...)
	} else {
		m.logger.Info("advice served", attrs...)
	}
	return err
}
