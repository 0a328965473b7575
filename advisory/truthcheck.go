package advisory

import (
	"context"
	"fmt"
	"strings"

	"github.com/sweetpotato0/agri-advisor/environment"
	"github.com/sweetpotato0/agri-advisor/gateway"
	"github.com/sweetpotato0/agri-advisor/prompt"
)

// Moisture and rainfall levels that contradict a claim. Used only when no
// backend can judge the claim.
const (
	WetMoisturePct = 70.0
	DryMoisturePct = 25.0
	WetRainfallMM  = 20.0
)

var (
	dryClaims = []string{"dry", "parched", "drought", "no rain", "not rained", "hasn't rained", "has not rained", "cracked", "thirsty"}
	wetClaims = []string{"waterlogged", "water logged", "flooded", "soggy", "too wet", "very wet", "standing water", "puddle", "muddy"}
)

// TruthChecker compares a farmer's claim with sensor readings.
type TruthChecker struct {
	gen gateway.Generator
	cfg *Config
}

// NewTruthChecker creates a checker. A nil generator uses the lexical rules.
func NewTruthChecker(gen gateway.Generator, opts ...Option) *TruthChecker {
	return &TruthChecker{gen: gen, cfg: applyOptions(opts)}
}

// CheckConflict reports whether claim contradicts env. Conflicts are
// advisory; only the configured policy may set ProceedWithAdvice to false.
func (t *TruthChecker) CheckConflict(ctx context.Context, claim string, env environment.Context) ConflictReport {
	report := t.judge(ctx, claim, env)
	return t.cfg.Policy.Apply(report, claim, env)
}

func (t *TruthChecker) judge(ctx context.Context, claim string, env environment.Context) ConflictReport {
	if t.gen == nil {
		return LexicalConflict(claim, env)
	}
	req, err := t.cfg.request(prompt.TruthCheck, prompt.Vars{
		"Claim":       strings.TrimSpace(claim),
		"Environment": prompt.Environment(env),
	})
	if err != nil {
		t.cfg.logger.Error("render truth-check prompt", "error", err)
		return LexicalConflict(claim, env)
	}
	req.Temperature = gateway.Float(0)

	res := gateway.GenerateStructured(ctx, t.gen, req, NeutralConflict(), nil)
	if !res.OK() {
		t.cfg.logger.Warn("truth check unavailable, using lexical rules", "error", res.Err)
		return LexicalConflict(claim, env)
	}
	if res.Degraded {
		t.cfg.logger.Warn("truth check output malformed", "error", res.DecodeErr)
	}

	report := res.Value.normalize()
	if report.HasConflict && report.VerificationQuestion == "" {
		report.VerificationQuestion = "Could you check the field again and confirm what you see?"
	}
	if !report.HasConflict {
		report.ConflictDescription = ""
		report.VerificationQuestion = ""
	}
	return report
}

// Apply enforces the blocking policy on a report.
func (p ConflictPolicy) Apply(r ConflictReport, claim string, env environment.Context) ConflictReport {
	severe := p.BlockSevere && RequestsFieldWork(claim) && env.HeavyRain(p.HeavyRainMM)
	if !severe {
		r.ProceedWithAdvice = true
		return r
	}
	r.HasConflict = true
	r.ProceedWithAdvice = false
	if r.ConflictDescription == "" {
		r.ConflictDescription = fmt.Sprintf("Heavy rain is forecast (%s); irrigation or fertilizer applied now would be washed out.", rainSummary(env.Weather))
	}
	if r.VerificationQuestion == "" {
		r.VerificationQuestion = "Can you wait until the rain has passed before irrigating or applying fertilizer?"
	}
	if r.Confidence < 0.7 {
		r.Confidence = 0.7
	}
	return r
}

// LexicalConflict detects dry/wet claims that contradict moisture or
// rainfall readings.
func LexicalConflict(claim string, env environment.Context) ConflictReport {
	c := strings.ToLower(claim)
	r := NeutralConflict()
	moisture := env.Soil.SoilMoisture
	rain := env.Weather.Rainfall()

	switch {
	case containsAny(c, dryClaims) && !containsAny(c, wetClaims):
		if (moisture != nil && *moisture >= WetMoisturePct) || rain >= WetRainfallMM {
			r.HasConflict = true
			r.ConflictDescription = fmt.Sprintf("You describe the field as dry, but sensors show %s and %s.",
				moistureSummary(moisture), rainSummary(env.Weather))
			r.VerificationQuestion = "Could you push a finger 5 cm into the soil and tell me whether it feels dry or damp?"
		}
	case containsAny(c, wetClaims):
		if moisture != nil && *moisture <= DryMoisturePct {
			r.HasConflict = true
			r.ConflictDescription = fmt.Sprintf("You describe the field as waterlogged, but sensors show %s.", moistureSummary(moisture))
			r.VerificationQuestion = "Is there standing water in the field right now, or only in some low patches?"
		}
	}
	if r.HasConflict {
		r.Confidence = 0.8
	} else {
		r.Confidence = 0.6
	}
	return r
}

func moistureSummary(m *float64) string {
	if m == nil {
		return "no moisture reading"
	}
	return fmt.Sprintf("soil moisture of %.0f%%", *m)
}

func rainSummary(w environment.Weather) string {
	s := fmt.Sprintf("%.1f mm of rain", w.Rainfall())
	if w.WeatherAlert != "" {
		s += ", alert: " + w.WeatherAlert
	}
	return s
}
