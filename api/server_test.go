package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/agri-advisor/advisory"
	"github.com/sweetpotato0/agri-advisor/contrib/session/inmemory"
	"github.com/sweetpotato0/agri-advisor/environment"
	"github.com/sweetpotato0/agri-advisor/middleware"
	"github.com/sweetpotato0/agri-advisor/middleware/enricher"
	"github.com/sweetpotato0/agri-advisor/middleware/limiter"
	"github.com/sweetpotato0/agri-advisor/middleware/validator"
	"github.com/sweetpotato0/agri-advisor/pkg/logging"
	"github.com/sweetpotato0/agri-advisor/session"
	"github.com/sweetpotato0/agri-advisor/simulator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fieldSource struct{ calls int }

func (f *fieldSource) Fetch(_ context.Context, at *environment.Coordinates) environment.Context {
	f.calls++
	return environment.Context{
		Location: at,
		Weather:  environment.Weather{TemperatureC: 29, Humidity: 60, RainfallMM: environment.Float(0)},
		Soil:     environment.Soil{SoilType: "loamy", SoilPH: environment.Float(8.2), SoilMoisture: environment.Float(35)},
		Sources:  environment.Sources{Weather: environment.OriginLive, Soil: environment.OriginLive},
	}
}

func newTestServer(t *testing.T, perSecond float64, burst int) (*Server, *fieldSource) {
	t.Helper()
	quiet := advisory.WithLogger(logging.Discard())
	src := &fieldSource{}
	sim := simulator.New(50)

	pipeline, err := advisory.NewPipeline(nil, src, sim, quiet)
	require.NoError(t, err)
	sessions := session.NewManager(
		session.WithStore(inmemory.NewInMemoryStore()),
		session.WithEnvironmentSource(src),
		session.WithLogger(logging.Discard()),
	)
	lim := limiter.NewRateLimiter(perSecond, burst)

	return NewServer(Deps{
		Pipeline:    pipeline,
		Chat:        advisory.NewChatService(nil, sim, quiet),
		Analyst:     advisory.NewAnalyst(nil, sim, quiet),
		Sessions:    sessions,
		Environment: src,
		Chain: middleware.NewChain(
			lim,
			validator.NewRequestValidator(0),
			enricher.NewSessionEnricher(sessions),
		),
		Limiter: lim,
		Logger:  logging.Discard(),
	}), src
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, 10, 10)
	w := do(t, s.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAdviceFreeText(t *testing.T) {
	s, _ := newTestServer(t, 10, 10)
	w := do(t, s.Handler(), http.MethodPost, "/v1/advice", gin.H{"query": "My tomato leaves are turning yellow"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp advisory.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, advisory.StatusCompleted, resp.Status)
	assert.Contains(t, resp.Advice.RootCause, "lock-up")
}

func TestAdviceInvalidFarmerInput(t *testing.T) {
	s, _ := newTestServer(t, 10, 10)
	w := do(t, s.Handler(), http.MethodPost, "/v1/advice", gin.H{
		"soil_type":       "volcanic",
		"crop":            "Rice",
		"reported_action": "flooded the field",
		"location":        "Cuttack",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "soil_type")
}

func TestAdviceRejectedQuery(t *testing.T) {
	s, _ := newTestServer(t, 10, 10)
	w := do(t, s.Handler(), http.MethodPost, "/v1/advice", gin.H{"query": "??"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"failed"`)

	w = do(t, s.Handler(), http.MethodPost, "/v1/advice", gin.H{"query": "rust", "latitude": 12.9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdviceRateLimited(t *testing.T) {
	s, _ := newTestServer(t, 0.001, 1)
	h := s.Handler()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/advice", gin.H{"query": "aphids on okra"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/v1/advice", gin.H{"query": "aphids on okra"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/v1/analysis", gin.H{}).Code)
}

func TestSessionFlow(t *testing.T) {
	s, src := newTestServer(t, 100, 100)
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/v1/sessions/f1/environment", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/v1/sessions/f1/environment", gin.H{"latitude": 18.5, "longitude": 73.8})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, src.calls)

	w = do(t, h, http.MethodPost, "/v1/advice", gin.H{"session_id": "f1", "query": "aphids on my cotton"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, src.calls, "cached session environment is reused")

	w = do(t, h, http.MethodPost, "/v1/chat", gin.H{"session_id": "f1", "message": "when should I spray?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reply advisory.ChatReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "simulated", reply.Source)

	w = do(t, h, http.MethodGet, "/v1/sessions/f1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		History []json.RawMessage `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	assert.Len(t, hist.History, 4)

	w = do(t, h, http.MethodPost, "/v1/sessions/f1/environment", gin.H{"refresh": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, src.calls)
	assert.Contains(t, w.Body.String(), `"refreshed":true`)

	w = do(t, h, http.MethodGet, "/v1/sessions/missing/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalysis(t *testing.T) {
	s, _ := newTestServer(t, 10, 10)
	w := do(t, s.Handler(), http.MethodPost, "/v1/analysis", gin.H{"latitude": 26.9, "longitude": 75.8})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Analysis advisory.FieldAnalysis `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "simulated", body.Analysis.Source)
	assert.NotEmpty(t, body.Analysis.SuggestedCrops)
}
