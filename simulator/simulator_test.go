package simulator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/agri-advisor/advisory"
	"github.com/sweetpotato0/agri-advisor/environment"
)

func envWith(ph, moisture, rain float64, alert string) environment.Context {
	return environment.Context{
		Weather: environment.Weather{TemperatureC: 28, Humidity: 60, RainfallMM: environment.Float(rain), WeatherAlert: alert},
		Soil:    environment.Soil{SoilType: "loamy", SoilPH: environment.Float(ph), SoilMoisture: environment.Float(moisture)},
	}
}

func TestAdviseNeverEmpty(t *testing.T) {
	sim := New(50)
	queries := []string{"", "???", "aphids on my tomato", "when should I water", "how much urea", "brown spots on wheat", "hello"}
	for _, q := range queries {
		for _, ph := range []float64{5.0, 6.8, 8.2} {
			a := sim.Advise(q, envWith(ph, 50, 0, ""))
			assert.False(t, a.IsEmpty(), "query %q pH %.1f", q, ph)
			assert.Equal(t, Source, a.Source)
			assert.NotEmpty(t, a.Text())
		}
	}
}

func TestAdviseIsDeterministic(t *testing.T) {
	sim := New(50)
	env := envWith(6.5, 40, 3, "")
	assert.Equal(t, sim.Advise("pests on cotton", env), sim.Advise("pests on cotton", env))
}

func TestAdviseDelaysUnderHeavyRain(t *testing.T) {
	a := New(50).Advise("Should I apply fertilizer and irrigate my rice today?", envWith(6.5, 60, 70, "Heavy rain alert"))

	require.NotEmpty(t, a.ImmediateActions)
	assert.Equal(t, advisory.RainDelayAction, a.ImmediateActions[0])
	assert.Contains(t, strings.ToLower(a.IrrigationAdvice), "heavy rain")
}

func TestAdviseAlkalineYellowing(t *testing.T) {
	a := New(50).Advise("tomato leaves turning yellow", envWith(8.2, 65, 5, ""))

	assert.Contains(t, a.RootCause, "lock-up")
	for _, act := range a.ImmediateActions {
		assert.NotContains(t, strings.ToLower(act), "more nitrogen")
	}
}

func TestChat(t *testing.T) {
	sim := New(50)
	cc := advisory.ChatContext{Crop: "wheat", Environment: envWith(6.5, 50, 0, "")}

	assert.Contains(t, sim.Chat("How often should I water?", cc), "For your wheat")
	assert.Contains(t, sim.Chat("There are bugs everywhere", cc), "neem oil")
	assert.Contains(t, sim.Chat("Which fertilizer?", cc), "pH 6.5")
	assert.Contains(t, sim.Chat("tell me something", cc), "wheat")
	assert.Contains(t, sim.Chat("anything", advisory.ChatContext{}), "crop")

	rainy := advisory.ChatContext{Crop: "rice", Environment: envWith(6.5, 50, 80, "Heavy rain alert")}
	assert.Contains(t, sim.Chat("should I irrigate?", rainy), "delay")
}

func TestAnalyzeBands(t *testing.T) {
	sim := New(50)
	tests := []struct {
		ph        float64
		firstCrop string
		action    string
	}{
		{5.2, "Blueberries", "Apply agricultural lime to raise pH"},
		{8.0, "Asparagus", "Apply elemental sulfur"},
		{7.0, "Rice", "Maintain current fertilization"},
	}
	for _, tt := range tests {
		fa := sim.Analyze(environment.Weather{TemperatureC: 25}, environment.Soil{SoilPH: environment.Float(tt.ph)})
		assert.Equal(t, tt.firstCrop, fa.SuggestedCrops[0])
		assert.Equal(t, tt.action, fa.ActionPlan[0])
		assert.Len(t, fa.ActionPlan, 3)
		assert.True(t, strings.HasPrefix(fa.SoilAnalysis, "(Simulated) "))
	}
}

func TestAnalyzeMergesSoilSuggestions(t *testing.T) {
	fa := New(50).Analyze(environment.Weather{TemperatureC: 33}, environment.Soil{SoilType: "sandy", SoilPH: environment.Float(7)})
	assert.Equal(t, []string{"Rice", "Wheat", "Maize", "Tomatoes", "Cotton", "Bajra", "Groundnut", "Mustard", "Watermelon"}, fa.SuggestedCrops)
}
