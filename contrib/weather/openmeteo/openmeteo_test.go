package openmeteo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/agri-advisor/environment"
)

func TestFetchWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("current_weather"))
		_, _ = w.Write([]byte(`{
			"current_weather": {"time": "2026-07-01T10:00", "temperature": 31.2, "weathercode": 65},
			"hourly": {"time": ["2026-07-01T09:00", "2026-07-01T10:00"], "relative_humidity_2m": [70, 84]},
			"daily": {"precipitation_sum": [62.5]}
		}`))
	}))
	defer srv.Close()

	w, err := New(Config{BaseURL: srv.URL}).FetchWeather(context.Background(), environment.Coordinates{Latitude: 22.5, Longitude: 88.3})

	require.NoError(t, err)
	assert.Equal(t, 31.2, w.TemperatureC)
	assert.Equal(t, 84.0, w.Humidity)
	assert.Equal(t, 62.5, w.Rainfall())
	assert.Equal(t, "Heavy rain alert", w.WeatherAlert)
}

func TestFetchWeatherMissingCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hourly": {}}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).FetchWeather(context.Background(), environment.Coordinates{})
	assert.Error(t, err)
}

func TestHumidityAtFallsBack(t *testing.T) {
	v := 55.0
	assert.Equal(t, 55.0, humidityAt([]string{"a"}, []*float64{nil, &v}, "zzz"))
	assert.Zero(t, humidityAt(nil, nil, ""))
}
