package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweetpotato0/agri-advisor/advisory"
	"github.com/sweetpotato0/agri-advisor/pkg/logging"
)

// Entry is the persisted summary of one pipeline run.
type Entry struct {
	RunID      string                `json:"run_id" bson:"_id"`
	Query      string                `json:"query" bson:"query"`
	Status     advisory.Status       `json:"status" bson:"status"`
	Source     string                `json:"source" bson:"source"`
	Conflict   bool                  `json:"conflict" bson:"conflict"`
	Errors     []string              `json:"errors,omitempty" bson:"errors,omitempty"`
	Trace      []advisory.TraceEntry `json:"trace" bson:"trace"`
	AdviceText string                `json:"advice_text,omitempty" bson:"advice_text,omitempty"`
	StartedAt  time.Time             `json:"started_at" bson:"started_at"`
	FinishedAt time.Time             `json:"finished_at" bson:"finished_at"`
}

// Duration is the wall time of the run.
func (e Entry) Duration() time.Duration { return e.FinishedAt.Sub(e.StartedAt) }

// FromRun summarises a finished run.
func FromRun(run advisory.Run) Entry {
	resp := run.Response
	return Entry{
		RunID:      resp.RunID,
		Query:      run.Query,
		Status:     resp.Status,
		Source:     resp.Advice.Source,
		Conflict:   resp.Conflict != nil && resp.Conflict.HasConflict,
		Errors:     resp.Errors,
		Trace:      resp.Trace,
		AdviceText: resp.AdviceText,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

// Store persists audit entries.
type Store interface {
	Save(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close(ctx context.Context) error
}

// Recorder adapts a Store to advisory.Recorder.
type Recorder struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
}

// NewRecorder creates a recorder. Each save is bounded by timeout when it is
// positive.
func NewRecorder(store Store, timeout time.Duration) *Recorder {
	if store == nil {
		store = Noop{}
	}
	return &Recorder{store: store, timeout: timeout, logger: logging.WithComponent("audit")}
}

// Record implements advisory.Recorder.
func (r *Recorder) Record(ctx context.Context, run advisory.Run) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	entry := FromRun(run)
	if entry.RunID == "" {
		return fmt.Errorf("audit: run has no id")
	}
	if err := r.store.Save(ctx, entry); err != nil {
		return fmt.Errorf("audit: save run %s: %w", entry.RunID, err)
	}
	r.logger.Debug("run recorded", "run_id", entry.RunID, "status", entry.Status)
	return nil
}

// Noop discards entries.
type Noop struct{}

// Save drops the entry.
func (Noop) Save(context.Context, Entry) error { return nil }

// Recent always returns no entries.
func (Noop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

// Close is a no-op.
func (Noop) Close(context.Context) error { return nil }
