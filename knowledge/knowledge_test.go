package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	b := Default()

	r, ok := b.Lookup("maharashtra")
	require.True(t, ok)
	assert.Equal(t, "Black Soil", r.Soil)
	assert.Equal(t, []string{"Sugarcane", "Cotton", "Soybean", "Jowar"}, r.Crops)

	r, ok = b.Lookup(" Tamil Nadu ")
	require.True(t, ok)
	assert.Equal(t, "Red soil", r.Soil)

	r, ok = b.Lookup("Unknown State")
	assert.False(t, ok)
	assert.Equal(t, Region{Soil: "Loamy", Crops: []string{"Rice", "Wheat"}}, r)
}

func TestStates(t *testing.T) {
	states := Default().States()
	assert.Len(t, states, 8)
	assert.Equal(t, "gujarat", states[0])
}

func TestParseRejectsMissingDefault(t *testing.T) {
	_, err := Parse([]byte("regions:\n  Goa:\n    soil: Laterite\n    crops: [Cashew]\n"))
	assert.Error(t, err)
}

func TestSuggestCrops(t *testing.T) {
	tests := []struct {
		name string
		in   Conditions
		want []string
	}{
		{"clay mild", Conditions{SoilType: "clay", TemperatureC: 25}, []string{"Rice", "Sugarcane", "Cotton", "Soybean"}},
		{"clay hot rain", Conditions{SoilType: "Clay", TemperatureC: 34, Raining: true}, []string{"Rice", "Sugarcane", "Cotton", "Soybean"}},
		{"sandy hot", Conditions{SoilType: "sandy", TemperatureC: 33}, []string{"Cotton", "Bajra", "Groundnut", "Mustard", "Watermelon"}},
		{"loamy cool", Conditions{SoilType: "loamy", TemperatureC: 15}, []string{"Wheat", "Maize", "Vegetables", "Pulses", "Cotton"}},
		{"unknown rain", Conditions{SoilType: "peaty", TemperatureC: 25, Raining: true}, []string{"Rice", "Sugarcane", "Wheat", "Jute"}},
		{"black soil", Conditions{SoilType: "Black Soil", TemperatureC: 25}, []string{"Rice", "Sugarcane", "Cotton", "Soybean"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestCrops(tt.in))
		})
	}
}
