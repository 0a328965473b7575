package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sweetpotato0/agri-advisor/advisory"
	"github.com/sweetpotato0/agri-advisor/middleware"
)

func TestRequestLoggerLogsOutcome(t *testing.T) {
	var buf bytes.Buffer
	m := NewRequestLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	tick := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		tick = tick.Add(250 * time.Millisecond)
		return tick
	}

	ctx := middleware.NewContext(context.Background(), advisory.Request{Query: "aphids on mustard"})
	ctx.Client = "10.0.0.7"
	err := m.Execute(ctx, func(c *middleware.Context) error {
		c.Response = &advisory.Response{RunID: "run-1", Status: advisory.StatusCompleted, Advice: advisory.AgriAdvice{Source: "gemini"}}
		return nil
	})
	assert.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "advice requested")
	assert.Contains(t, out, "query_len=17")
	assert.Contains(t, out, "advice served")
	assert.Contains(t, out, "run_id=run-1")
	assert.Contains(t, out, "source=gemini")
	assert.Contains(t, out, "duration=250ms")
}

func TestRequestLoggerPassesErrorThrough(t *testing.T) {
	var buf bytes.Buffer
	m := NewRequestLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	boom := errors.New("boom")

	err := m.Execute(middleware.NewContext(context.Background(), advisory.Request{}), func(*middleware.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "level=WARN msg=\"advice call failed\"")
}
