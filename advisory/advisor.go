package advisory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sweetpotato0/agri-advisor/environment"
	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/gateway"
	"github.com/sweetpotato0/agri-advisor/message"
	"github.com/sweetpotato0/agri-advisor/prompt"
	"github.com/sweetpotato0/agri-advisor/tokenizer"
)

// Advisor generates structured advice from a query and its context.
type Advisor struct {
	gen gateway.Generator
	cfg *Config
}

// NewAdvisor creates an advisor. Without a generator every call reports
// ErrNoBackendAvailable.
func NewAdvisor(gen gateway.Generator, opts ...Option) *Advisor {
	return &Advisor{gen: gen, cfg: applyOptions(opts)}
}

type adviceRequest struct {
	query    string
	env      environment.Context
	conflict *ConflictReport
	keywords *ExtractedKeywords
	vision   string
	history  []message.Message
}

// GenerateAdvice asks the backend for advice and applies the field-safety
// rules to whatever it returns.
func (a *Advisor) GenerateAdvice(ctx context.Context, query string, env environment.Context, conflict *ConflictReport, history []message.Message) (AgriAdvice, error) {
	return a.generate(ctx, adviceRequest{query: query, env: env, conflict: conflict, history: history})
}

func (a *Advisor) generate(ctx context.Context, in adviceRequest) (AgriAdvice, error) {
	if a.gen == nil {
		return AgriAdvice{}, agerrors.ErrNoBackendAvailable
	}
	if strings.TrimSpace(in.query) == "" {
		return AgriAdvice{}, fmt.Errorf("%w: empty query", agerrors.ErrInvalidInput)
	}

	req, err := a.cfg.request(prompt.Advice, a.vars(in, true))
	if err != nil {
		return AgriAdvice{}, err
	}

	res := gateway.GenerateStructured(ctx, a.gen, req, AgriAdvice{}, func(adv *AgriAdvice) error {
		if adv.Normalize().IsEmpty() {
			return errors.New("advice has no root cause or actions")
		}
		return nil
	})
	if !res.OK() {
		return AgriAdvice{}, res.Err
	}

	advice := res.Value
	if res.Degraded {
		// The backend answered in prose; keep it rather than discard it.
		a.cfg.logger.Warn("advice output malformed, keeping raw text", "backend", res.Backend, "error", res.DecodeErr)
		advice = AgriAdvice{RootCause: strings.TrimSpace(res.Text)}
		if advice.RootCause == "" {
			return AgriAdvice{}, res.DecodeErr
		}
	}
	advice.Source = res.Backend
	return a.postProcess(advice, in.query, in.env), nil
}

func (a *Advisor) postProcess(advice AgriAdvice, query string, env environment.Context) AgriAdvice {
	advice = advice.Normalize()
	advice = ApplyRainDelay(advice, query, env, a.cfg.Policy.HeavyRainMM)
	advice = ApplyAlkalinityLockup(advice, query, env)
	return advice
}

func (a *Advisor) vars(in adviceRequest, asJSON bool) prompt.Vars {
	vars := prompt.Vars{
		"JSON":        asJSON,
		"Query":       strings.TrimSpace(in.query),
		"Environment": prompt.Environment(in.env),
	}
	if in.keywords != nil {
		vars["Keywords"] = in.keywords.summary()
	}
	if in.conflict != nil && in.conflict.HasConflict {
		vars["Conflict"] = in.conflict.ConflictDescription
		vars["Question"] = in.conflict.VerificationQuestion
	}
	if in.vision != "" {
		vars["Vision"] = in.vision
	}
	if hist := tokenizer.TrimHistory(in.history, a.cfg.HistoryBudget, a.cfg.counter); len(hist) > 0 {
		vars["History"] = message.Transcript(hist)
	}
	return vars
}
