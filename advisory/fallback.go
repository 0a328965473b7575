package advisory

import (
	"context"

	"github.com/sweetpotato0/agri-advisor/environment"
)

// Fallback produces output without a model backend. Implementations must be
// deterministic and must never return empty output.
type Fallback interface {
	Advise(query string, env environment.Context) AgriAdvice
	Chat(prompt string, cc ChatContext) string
	Analyze(w environment.Weather, s environment.Soil) FieldAnalysis
}

// EnvironmentSource resolves the environmental context for a location.
type EnvironmentSource interface {
	Fetch(ctx context.Context, at *environment.Coordinates) environment.Context
}

// Recorder persists finished pipeline runs.
type Recorder interface {
	Record(ctx context.Context, run Run) error
}
