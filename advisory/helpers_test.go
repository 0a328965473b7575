package advisory

import (
	"errors"
	"fmt"

	"github.com/sweetpotato0/agri-advisor/environment"
	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/pkg/logging"
)

var errExhausted = fmt.Errorf("%w: upstream returned 503", agerrors.ErrBackendsExhausted)

var errUnscripted = errors.New("no scripted reply")

func quiet() Option { return WithLogger(logging.Discard()) }

func field(tempC, rainMM float64, alert string, ph, moisture float64) environment.Context {
	return environment.Context{
		Weather: environment.Weather{TemperatureC: tempC, Humidity: 60, RainfallMM: environment.Float(rainMM), WeatherAlert: alert},
		Soil:    environment.Soil{SoilType: "loamy", SoilPH: environment.Float(ph), SoilMoisture: environment.Float(moisture)},
		Sources: environment.Sources{Weather: environment.OriginLive, Soil: environment.OriginLive},
	}
}

type stubFallback struct{}

func (stubFallback) Advise(query string, _ environment.Context) AgriAdvice {
	return AgriAdvice{RootCause: "offline: " + query, ImmediateActions: []string{"Inspect the field"}, Source: "simulated"}
}

func (stubFallback) Chat(prompt string, _ ChatContext) string { return "offline reply to " + prompt }

func (stubFallback) Analyze(environment.Weather, environment.Soil) FieldAnalysis {
	return FieldAnalysis{SuggestedCrops: []string{"Wheat"}, SoilAnalysis: "(Simulated) loam", ActionPlan: []string{"Test soil"}, Source: "simulated"}
}
