package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/agri-advisor/environment"
	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/message"
	"github.com/sweetpotato0/agri-advisor/session"
)

func newTestStore(t *testing.T) *RedisStore {
	addr := os.Getenv("AGRI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AGRI_TEST_REDIS_ADDR not set")
	}
	s := NewRedisStore(&RedisConfig{Addr: addr, Prefix: "agri:test:" + uuid.NewString() + ":", TTL: time.Minute})
	require.NoError(t, s.Ping(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := &session.Record{
		ID:          "s1",
		State:       session.StateActive,
		Location:    &environment.Coordinates{Latitude: 26.85, Longitude: 80.95},
		Environment: &environment.Context{Weather: environment.Weather{TemperatureC: 31, RainfallMM: environment.Float(4)}},
		History:     []message.Message{message.NewMessage(message.RoleUser, "sowing time for mustard?")},
	}
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 31.0, got.Environment.Weather.TemperatureC)
	assert.Equal(t, 4.0, got.Environment.Weather.Rainfall())
	assert.Equal(t, "sowing time for mustard?", got.History[0].Content)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = s.Load(ctx, "s1")
	assert.ErrorIs(t, err, agerrors.ErrSessionNotFound)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("AGRI_SESSION_REDIS_DB", "3")
	t.Setenv("AGRI_SESSION_TTL", "90m")
	cfg := RedisConfigFromEnv()
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, 90*time.Minute, cfg.TTL)
	assert.Equal(t, "agri:session:", cfg.Prefix)
}
