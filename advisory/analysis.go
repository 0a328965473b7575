package advisory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sweetpotato0/agri-advisor/environment"
	"github.com/sweetpotato0/agri-advisor/gateway"
	"github.com/sweetpotato0/agri-advisor/knowledge"
	"github.com/sweetpotato0/agri-advisor/prompt"
)

const actionPlanSize = 3

// Analyst suggests crops and a short action plan for a field.
type Analyst struct {
	gen      gateway.Generator
	fallback Fallback
	regions  *knowledge.Base
	cfg      *Config
}

// NewAnalyst creates an analyst that falls back to fb when no backend answers.
func NewAnalyst(gen gateway.Generator, fb Fallback, opts ...Option) *Analyst {
	return &Analyst{gen: gen, fallback: fb, regions: knowledge.Default(), cfg: applyOptions(opts)}
}

// Analyze never fails: backend errors and malformed output yield the
// simulated analysis.
func (a *Analyst) Analyze(ctx context.Context, env environment.Context) FieldAnalysis {
	simulated := a.fallback.Analyze(env.Weather, env.Soil)
	if a.gen == nil {
		return simulated
	}

	vars := prompt.Vars{"Environment": prompt.Environment(env)}
	if env.Place != nil {
		region, _ := a.regions.Lookup(env.Place.State)
		vars["Region"] = fmt.Sprintf("%s, typical soil %s, staple crops %s", env.Place.State, region.Soil, strings.Join(region.Crops, ", "))
	}
	req, err := a.cfg.request(prompt.Analysis, vars)
	if err != nil {
		a.cfg.logger.Error("render analysis prompt", "error", err)
		return simulated
	}

	res := gateway.GenerateStructured(ctx, a.gen, req, simulated, func(fa *FieldAnalysis) error {
		fa.SuggestedCrops = trimList(fa.SuggestedCrops)
		fa.ActionPlan = trimList(fa.ActionPlan)
		if len(fa.SuggestedCrops) == 0 || len(fa.ActionPlan) == 0 || strings.TrimSpace(fa.SoilAnalysis) == "" {
			return errors.New("analysis is missing crops, soil analysis or action plan")
		}
		return nil
	})
	if !res.OK() || res.Degraded {
		a.cfg.logger.Warn("field analysis falling back to simulator", "error", errors.Join(res.Err, res.DecodeErr))
		return simulated
	}

	out := res.Value
	if len(out.ActionPlan) > actionPlanSize {
		out.ActionPlan = out.ActionPlan[:actionPlanSize]
	}
	out.SoilAnalysis = strings.TrimSpace(out.SoilAnalysis)
	out.Source = res.Backend
	return out
}
