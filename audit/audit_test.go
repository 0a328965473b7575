package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/agri-advisor/advisory"
)

type captureStore struct {
	Noop
	saved    []Entry
	err      error
	deadline bool
}

func (c *captureStore) Save(ctx context.Context, e Entry) error {
	_, c.deadline = ctx.Deadline()
	if c.err != nil {
		return c.err
	}
	c.saved = append(c.saved, e)
	return nil
}

func sampleRun() advisory.Run {
	start := time.Date(2024, 7, 3, 6, 30, 0, 0, time.UTC)
	return advisory.Run{
		Query: "soil is bone dry",
		Response: advisory.Response{
			RunID:      "run-1",
			Status:     advisory.StatusCompleted,
			Advice:     advisory.AgriAdvice{Source: "gemini"},
			AdviceText: "Please verify: ...",
			Conflict:   &advisory.ConflictReport{HasConflict: true},
			Trace:      []advisory.TraceEntry{{Node: advisory.NodeValidateInput, Detail: "accepted"}},
		},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}
}

func TestFromRun(t *testing.T) {
	e := FromRun(sampleRun())
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, "soil is bone dry", e.Query)
	assert.Equal(t, "gemini", e.Source)
	assert.True(t, e.Conflict)
	assert.Equal(t, 1500*time.Millisecond, e.Duration())
	require.Len(t, e.Trace, 1)
}

func TestRecorder(t *testing.T) {
	store := &captureStore{}
	r := NewRecorder(store, time.Second)

	require.NoError(t, r.Record(context.Background(), sampleRun()))
	require.Len(t, store.saved, 1)
	assert.True(t, store.deadline)

	store.err = errors.New("connection refused")
	err := r.Record(context.Background(), sampleRun())
	assert.ErrorContains(t, err, "run-1")

	run := sampleRun()
	run.Response.RunID = ""
	assert.Error(t, r.Record(context.Background(), run))
}

func TestRecorderDefaultsToNoop(t *testing.T) {
	r := NewRecorder(nil, 0)
	assert.NoError(t, r.Record(context.Background(), sampleRun()))
}
