package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/agri-advisor/gateway"
)

func newServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const completion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop",
    "message": {"role": "assistant", "content": "{\"urgency\": \"high\"}"}}]
}`

func TestGenerateJSONMode(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, http.StatusOK, completion, &seen)

	cfg := DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL
	p := New(cfg)

	out, err := p.Generate(context.Background(), gateway.Request{System: "extract", Prompt: "aphids on tomato", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"urgency": "high"}`, out)

	format, ok := seen["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
	assert.Len(t, seen["messages"], 2)
}

func TestGenerateRateLimitIsClassified(t *testing.T) {
	srv := newServer(t, http.StatusTooManyRequests, `{"error": {"message": "slow down", "type": "rate_limit"}}`, nil)

	cfg := DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL
	_, err := New(cfg).Generate(context.Background(), gateway.Request{Prompt: "hi"})

	require.Error(t, err)
	assert.True(t, gateway.IsRateLimit(err))
}

func TestGenerateAuthErrorIsNotRateLimit(t *testing.T) {
	srv := newServer(t, http.StatusUnauthorized, `{"error": {"message": "bad key"}}`, nil)

	cfg := DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL
	_, err := New(cfg).Generate(context.Background(), gateway.Request{Prompt: "hi"})

	var se *gateway.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.False(t, gateway.IsRateLimit(err))
}

func TestDescriptorCredentialGatesSelection(t *testing.T) {
	d := Descriptor(DefaultConfig(""))
	_, err := gateway.Select([]gateway.Descriptor{d})
	assert.Error(t, err)

	d = Descriptor(DefaultConfig("sk-test"))
	assert.True(t, d.Supports(gateway.CapVision))
	assert.Equal(t, gateway.TierSecondary, d.Tier)
}

func TestGenerateSendsExplicitZeroTemperature(t *testing.T) {
	tests := []struct {
		name string
		req  gateway.Request
		want float64
	}{
		{"unset uses config", gateway.Request{Prompt: "hi"}, 0.2},
		{"explicit zero", gateway.Request{Prompt: "hi", Temperature: gateway.Float(0)}, 0},
		{"override", gateway.Request{Prompt: "hi", Temperature: gateway.Float(0.7)}, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen map[string]any
			srv := newServer(t, http.StatusOK, completion, &seen)

			cfg := DefaultConfig("sk-test")
			cfg.BaseURL = srv.URL
			_, err := New(cfg).Generate(context.Background(), tt.req)
			require.NoError(t, err)

			temp, ok := seen["temperature"].(float64)
			require.True(t, ok, "temperature missing from request body")
			assert.InDelta(t, tt.want, temp, 1e-9)
		})
	}
}
