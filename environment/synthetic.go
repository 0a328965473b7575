package environment

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Ranges for synthetic readings.
const (
	SyntheticTempMin     = 22.0
	SyntheticTempMax     = 32.0
	SyntheticHumidityMin = 40.0
	SyntheticHumidityMax = 80.0
	syntheticRainMax     = 20.0
	syntheticPHMin       = 5.5
	syntheticPHMax       = 8.0
	syntheticMoistureMin = 20.0
	syntheticMoistureMax = 80.0
)

var syntheticSoilTypes = []string{"loamy", "clay", "sandy", "silty", "peaty", "chalky"}

// Synthetic produces bounded random readings used when live services are
// unavailable. It is safe for concurrent use.
type Synthetic struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthetic seeds a generator from the clock.
func NewSynthetic() *Synthetic {
	now := uint64(time.Now().UnixNano())
	return NewSyntheticWithSeed(now, now>>17)
}

// NewSyntheticWithSeed returns a reproducible generator.
func NewSyntheticWithSeed(seed1, seed2 uint64) *Synthetic {
	return &Synthetic{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

func (s *Synthetic) between(min, max float64) float64 {
	v := min + s.rng.Float64()*(max-min)
	v = math.Round(v*10) / 10
	return math.Min(math.Max(v, min), max)
}

// Weather returns a synthetic weather reading.
func (s *Synthetic) Weather() Weather {
	s.mu.Lock()
	defer s.mu.Unlock()
	rain := s.between(0, syntheticRainMax)
	return Weather{
		TemperatureC: s.between(SyntheticTempMin, SyntheticTempMax),
		Humidity:     math.Round(s.between(SyntheticHumidityMin, SyntheticHumidityMax)),
		RainfallMM:   Float(rain),
		WeatherAlert: AlertFor(0, rain),
	}
}

// Soil returns a synthetic soil reading.
func (s *Synthetic) Soil() Soil {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Soil{
		SoilType:     syntheticSoilTypes[s.rng.IntN(len(syntheticSoilTypes))],
		SoilPH:       Float(s.between(syntheticPHMin, syntheticPHMax)),
		SoilMoisture: Float(s.between(syntheticMoistureMin, syntheticMoistureMax)),
	}
}
