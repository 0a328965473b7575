package advisory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/agri-advisor/environment"
	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/gateway"
	"github.com/sweetpotato0/agri-advisor/graph"
	"github.com/sweetpotato0/agri-advisor/knowledge"
	"github.com/sweetpotato0/agri-advisor/message"
	"github.com/sweetpotato0/agri-advisor/pkg/telemetry"
)

// Node names, in execution order.
const (
	NodeValidateInput   = "validate_input"
	NodeExtractKeywords = "extract_keywords"
	NodeWeatherGate     = "weather_gate"
	NodeWeatherAnalysis = "weather_analysis"
	NodeSoilGate        = "soil_gate"
	NodeSoilAnalysis    = "soil_analysis"
	NodeGenerateAdvice  = "generate_advice"
	NodeEnd             = "end"
)

// Request is one farmer query. Query may be empty when Input is set.
type Request struct {
	Query       string
	Input       *FarmerInput
	Location    *environment.Coordinates
	Environment *environment.Context // attached by the caller, e.g. a session cache
	History     []message.Message
	Image       []byte
}

// Response is the outcome of a run. Errors lists the user-facing reasons a
// run failed or degraded.
type Response struct {
	RunID       string              `json:"run_id"`
	Status      Status              `json:"status"`
	Advice      AgriAdvice          `json:"advice"`
	AdviceText  string              `json:"advice_text"`
	Keywords    ExtractedKeywords   `json:"keywords"`
	Validation  ValidationResult    `json:"validation"`
	Conflict    *ConflictReport     `json:"conflict,omitempty"`
	Vision      string              `json:"vision,omitempty"`
	Environment environment.Context `json:"environment"`
	Trace       []TraceEntry        `json:"trace"`
	Errors      []string            `json:"errors,omitempty"`
}

// Run is a finished pipeline execution as handed to a Recorder.
type Run struct {
	Query      string
	Response   Response
	StartedAt  time.Time
	FinishedAt time.Time
}

// State is the working record of one run. It is owned by a single run and
// never shared.
type State struct {
	RunID       string
	Input       *FarmerInput
	Query       string
	Location    *environment.Coordinates
	Keywords    ExtractedKeywords
	Validation  ValidationResult
	Conflict    *ConflictReport
	Environment environment.Context
	Advice      AgriAdvice
	Vision      string
	Image       []byte
	History     []message.Message
	Errors      []string
	Trace       []TraceEntry
	Status      Status

	envAttached bool
	envFetched  bool
	stages      stages
}

var errRejected = errors.New("input rejected")

// Pipeline runs the advisory stages over a state graph.
type Pipeline struct {
	cfg      *Config
	env      EnvironmentSource
	fallback Fallback
	gen      gateway.Generator
	regions  *knowledge.Base
	graph    *graph.Graph[*State]
	logger   *slog.Logger
}

// stages are the model-backed steps of one run. They share the run's
// generator.
type stages struct {
	validator *InputValidator
	extractor *Extractor
	truth     *TruthChecker
	advisor   *Advisor
	vision    *VisionTieBreaker
}

func newStages(gen gateway.Generator, cfg *Config) stages {
	return stages{
		validator: &InputValidator{gen: gen, cfg: cfg},
		extractor: &Extractor{gen: gen, cfg: cfg},
		truth:     &TruthChecker{gen: gen, cfg: cfg},
		advisor:   &Advisor{gen: gen, cfg: cfg},
		vision:    &VisionTieBreaker{gen: gen, cfg: cfg},
	}
}

// runGenerator stops calling the gateway for the rest of a run once it
// reports that no backend can serve. Later stages then use their local
// rules or the simulator.
type runGenerator struct {
	gen    gateway.Generator
	down   error
	logger *slog.Logger
}

func (r *runGenerator) Generate(ctx context.Context, req gateway.Request) gateway.Result {
	if r.down != nil {
		return gateway.Result{Err: r.down}
	}
	res := r.gen.Generate(ctx, req)
	if res.Unavailable() {
		r.down = res.Err
		r.logger.Warn("model backends unavailable, using local rules for the rest of the run", "error", res.Err)
	}
	return res
}

// NewPipeline wires the stages. gen may be nil, in which case every stage
// uses its local rules and advice comes from fb.
func NewPipeline(gen gateway.Generator, env EnvironmentSource, fb Fallback, opts ...Option) (*Pipeline, error) {
	if env == nil {
		return nil, fmt.Errorf("environment source is required")
	}
	if fb == nil {
		return nil, fmt.Errorf("fallback advisor is required")
	}
	cfg := applyOptions(opts)

	p := &Pipeline{
		cfg:      cfg,
		env:      env,
		fallback: fb,
		gen:      gen,
		regions:  knowledge.Default(),
		logger:   cfg.logger.With("pipeline", cfg.Name),
	}

	skipWhenAttached := map[string]string{"run": NodeWeatherAnalysis, "skip": NodeSoilGate}
	g, err := graph.NewBuilder[*State]().
		AddNode(NodeValidateInput, p.traced(NodeValidateInput, p.validateNode)).
		AddNode(NodeExtractKeywords, p.traced(NodeExtractKeywords, p.extractNode)).
		AddConditionNode(NodeWeatherGate, p.environmentGate, skipWhenAttached).
		AddNode(NodeWeatherAnalysis, p.traced(NodeWeatherAnalysis, p.weatherNode)).
		AddConditionNode(NodeSoilGate, p.environmentGate, map[string]string{"run": NodeSoilAnalysis, "skip": NodeGenerateAdvice}).
		AddNode(NodeSoilAnalysis, p.traced(NodeSoilAnalysis, p.soilNode)).
		AddNode(NodeGenerateAdvice, p.traced(NodeGenerateAdvice, p.adviceNode)).
		AddEnd(NodeEnd, p.endNode).
		AddEdge(NodeValidateInput, NodeExtractKeywords).
		AddEdge(NodeExtractKeywords, NodeWeatherGate).
		AddEdge(NodeWeatherAnalysis, NodeSoilGate).
		AddEdge(NodeSoilAnalysis, NodeGenerateAdvice).
		AddEdge(NodeGenerateAdvice, NodeEnd).
		SetMaxVisits(cfg.GraphMaxVisits).
		WithHook(p.observe).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build pipeline graph: %w", err)
	}
	p.graph = g
	return p, nil
}

// Nodes lists the graph nodes in declaration order.
func (p *Pipeline) Nodes() []string { return p.graph.Nodes() }

// Run executes the pipeline. A rejected query is not an error: it yields a
// failed Response with the reason in Errors. The error return is reserved for
// cancellation and internal faults.
func (p *Pipeline) Run(ctx context.Context, req Request) (Response, error) {
	started := p.cfg.clock()
	st := &State{
		RunID:    uuid.NewString(),
		Input:    req.Input,
		Query:    strings.TrimSpace(req.Query),
		Location: req.Location,
		Image:    req.Image,
		History:  message.Clone(req.History),
		Status:   StatusPending,
	}
	if st.Query == "" && st.Input != nil {
		st.Query = st.Input.Query()
	}
	if req.Environment != nil {
		st.Environment = *req.Environment
		st.envAttached = true
	}
	var gen gateway.Generator
	if p.gen != nil {
		gen = &runGenerator{gen: p.gen, logger: p.logger.With("run_id", st.RunID)}
	}
	st.stages = newStages(gen, p.cfg)

	ctx, span := telemetry.Start(ctx, "advisory.pipeline",
		attribute.String("run_id", st.RunID),
		attribute.Bool("has_location", st.Location != nil),
		attribute.Bool("has_image", len(st.Image) > 0),
	)
	p.logger.Info("pipeline run started", "run_id", st.RunID, "query", trimForLog(st.Query, 120))

	final, err := p.graph.Execute(ctx, st)
	switch {
	case errors.Is(err, errRejected):
		err = nil
	case err != nil:
		final.Status = StatusFailed
		if len(final.Errors) == 0 {
			final.Errors = append(final.Errors, "advice could not be produced")
		}
	}
	telemetry.End(span, err)

	resp := final.response()
	p.logger.Info("pipeline run finished",
		"run_id", resp.RunID,
		"status", resp.Status,
		"source", resp.Advice.Source,
		"conflict", resp.Conflict != nil && resp.Conflict.HasConflict,
		"duration", p.cfg.clock().Sub(started),
	)
	if p.cfg.recorder != nil {
		run := Run{Query: final.Query, Response: resp, StartedAt: started, FinishedAt: p.cfg.clock()}
		if rerr := p.cfg.recorder.Record(context.WithoutCancel(ctx), run); rerr != nil {
			p.logger.Warn("recording run failed", "run_id", resp.RunID, "error", rerr)
		}
	}
	return resp, err
}

func (st *State) response() Response {
	resp := Response{
		RunID:       st.RunID,
		Status:      st.Status,
		Advice:      st.Advice,
		Keywords:    st.Keywords,
		Validation:  st.Validation,
		Conflict:    st.Conflict,
		Vision:      st.Vision,
		Environment: st.Environment,
		Trace:       append([]TraceEntry(nil), st.Trace...),
		Errors:      append([]string(nil), st.Errors...),
	}
	if st.Status == StatusCompleted {
		resp.AdviceText = renderAdvice(st.Advice, st.Conflict)
	}
	return resp
}

func renderAdvice(a AgriAdvice, c *ConflictReport) string {
	text := a.Text()
	if c == nil || !c.HasConflict {
		return text
	}
	note := "Please verify: " + c.ConflictDescription
	if c.VerificationQuestion != "" {
		note += " " + c.VerificationQuestion
	}
	return strings.TrimSpace(note + "\n\n" + text)
}

func (p *Pipeline) trace(st *State, node, format string, args ...any) {
	st.Trace = append(st.Trace, TraceEntry{Node: node, Detail: fmt.Sprintf(format, args...), At: p.cfg.clock()})
}

// traced wraps a node in a span.
func (p *Pipeline) traced(name string, fn graph.NodeFunc[*State]) graph.NodeFunc[*State] {
	return func(ctx context.Context, st *State) (*State, error) {
		ctx, span := telemetry.Start(ctx, "advisory."+name, attribute.String("run_id", st.RunID))
		out, err := fn(ctx, st)
		if errors.Is(err, errRejected) {
			telemetry.End(span, nil)
		} else {
			telemetry.End(span, err)
		}
		return out, err
	}
}

func (p *Pipeline) observe(_ context.Context, ev graph.Event) {
	p.logger.Debug("node visited", "node", ev.Node, "type", ev.Type, "branch", ev.Branch, "duration", ev.Duration, "error", ev.Err)
}

func (p *Pipeline) validateNode(ctx context.Context, st *State) (*State, error) {
	st.Status = StatusProcessing
	res := st.stages.validator.Validate(ctx, st.Query, st.Environment)
	st.Validation = res
	if !res.IsValid() {
		st.Status = StatusFailed
		st.Errors = append(st.Errors, res.ErrorMessage())
		p.trace(st, NodeValidateInput, "rejected: %s", res.ErrorMessage())
		return st, errRejected
	}
	if w := res.Warnings(); len(w) > 0 {
		p.trace(st, NodeValidateInput, "accepted with warnings: %s", strings.Join(w, "; "))
	} else {
		p.trace(st, NodeValidateInput, "accepted")
	}
	return st, nil
}

func (p *Pipeline) extractNode(ctx context.Context, st *State) (*State, error) {
	kw, err := st.stages.extractor.Extract(ctx, st.Query)
	if st.Input != nil && kw.Crop == "" {
		kw.Crop = strings.ToLower(st.Input.Crop())
	}
	st.Keywords = kw
	if err != nil {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		p.logger.Warn("keyword extraction degraded", "run_id", st.RunID, "error", err)
		p.trace(st, NodeExtractKeywords, "backend unavailable, used keyword rules: %s", kw.summary())
		return st, nil
	}
	p.trace(st, NodeExtractKeywords, "%s", kw.summary())
	return st, nil
}

// environmentGate skips fetching when the caller attached a context and gave
// no coordinates to refresh it with.
func (p *Pipeline) environmentGate(_ context.Context, st *State) (string, error) {
	if st.Location == nil && st.envAttached {
		return "skip", nil
	}
	return "run", nil
}

func (p *Pipeline) ensureEnvironment(ctx context.Context, st *State) {
	if st.envFetched {
		return
	}
	st.Environment = p.env.Fetch(ctx, st.Location)
	st.envFetched = true
}

func (p *Pipeline) weatherNode(ctx context.Context, st *State) (*State, error) {
	p.ensureEnvironment(ctx, st)
	w := st.Environment.Weather
	detail := fmt.Sprintf("%s weather: %.1f°C, humidity %.0f%%, rain %.1f mm",
		originLabel(st.Environment.Sources.Weather, st.Environment.Sources.WeatherName), w.TemperatureC, w.Humidity, w.Rainfall())
	if st.Environment.HeavyRain(p.cfg.Policy.HeavyRainMM) {
		detail += ", heavy rain forecast"
	} else if w.WeatherAlert != "" {
		detail += ", alert: " + w.WeatherAlert
	}
	p.trace(st, NodeWeatherAnalysis, "%s", detail)
	return st, nil
}

func (p *Pipeline) soilNode(ctx context.Context, st *State) (*State, error) {
	p.ensureEnvironment(ctx, st)
	s := st.Environment.Soil
	detail := fmt.Sprintf("%s soil: type %s", originLabel(st.Environment.Sources.Soil, st.Environment.Sources.SoilName), orUnknown(s.SoilType))
	if s.SoilPH != nil {
		detail += fmt.Sprintf(", pH %.1f (%s)", *s.SoilPH, phBand(*s.SoilPH))
	}
	if s.SoilMoisture != nil {
		detail += fmt.Sprintf(", moisture %.0f%%", *s.SoilMoisture)
	}
	if place := st.Environment.Place; place != nil {
		region, known := p.regions.Lookup(place.State)
		if known {
			detail += fmt.Sprintf(", region %s typically %s", place.State, region.Soil)
		}
	}
	p.trace(st, NodeSoilAnalysis, "%s", detail)
	return st, nil
}

func (p *Pipeline) adviceNode(ctx context.Context, st *State) (*State, error) {
	report := st.stages.truth.CheckConflict(ctx, st.Query, st.Environment)
	st.Conflict = &report
	if report.HasConflict {
		p.trace(st, NodeGenerateAdvice, "conflict (confidence %.2f): %s", report.Confidence, report.ConflictDescription)
	}

	if NeedsTieBreak(st.Conflict, st.Image) {
		verdict, err := st.stages.vision.Resolve(ctx, st.Query, st.Image, st.Environment, st.Conflict)
		switch {
		case err != nil:
			p.logger.Warn("vision tie-break failed", "run_id", st.RunID, "error", err)
			p.trace(st, NodeGenerateAdvice, "photo review unavailable")
		case verdict != "":
			st.Vision = verdict
			p.trace(st, NodeGenerateAdvice, "photo review: %s", trimForLog(verdict, 160))
		}
	}

	if !report.ProceedWithAdvice {
		st.Advice = holdAdvice(report)
		st.Status = StatusCompleted
		p.trace(st, NodeGenerateAdvice, "advice held back by conflict policy")
		return st, nil
	}

	kw := st.Keywords
	advice, err := st.stages.advisor.generate(ctx, adviceRequest{
		query:    st.Query,
		env:      st.Environment,
		conflict: st.Conflict,
		keywords: &kw,
		vision:   st.Vision,
		history:  st.History,
	})
	if err != nil {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		if !errors.Is(err, agerrors.ErrNoBackendAvailable) && !errors.Is(err, agerrors.ErrBackendsExhausted) {
			st.Errors = append(st.Errors, "model backend error; simulated advice returned")
		}
		p.logger.Warn("advice falling back to simulator", "run_id", st.RunID, "error", err)
		advice = p.fallback.Advise(st.Query, st.Environment)
		p.trace(st, NodeGenerateAdvice, "simulated advice (%s)", fallbackReason(err))
	} else {
		p.trace(st, NodeGenerateAdvice, "advice from %s: %d immediate actions", advice.Source, len(advice.ImmediateActions))
	}

	if advice.IsEmpty() {
		st.Status = StatusFailed
		st.Errors = append(st.Errors, "no advice could be produced")
		return st, fmt.Errorf("empty advice from %s", advice.Source)
	}
	st.Advice = advice
	st.Status = StatusCompleted
	return st, nil
}

func (p *Pipeline) endNode(_ context.Context, st *State) (*State, error) {
	p.trace(st, NodeEnd, "status %s", st.Status)
	return st, nil
}

func holdAdvice(r ConflictReport) AgriAdvice {
	return AgriAdvice{
		RootCause:        r.ConflictDescription,
		ImmediateActions: []string{RainDelayAction, r.VerificationQuestion},
		SafetyWarnings:   []string{"Do not apply fertilizer or pesticide before heavy rain; runoff contaminates water sources."},
		Source:           "policy",
	}.Normalize()
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, agerrors.ErrNoBackendAvailable):
		return "no model backend configured"
	case errors.Is(err, agerrors.ErrBackendsExhausted):
		return "all model backends failed"
	default:
		return "model backend error"
	}
}

func originLabel(o environment.Origin, name string) string {
	if o == environment.OriginLive && name != "" {
		return "live (" + name + ")"
	}
	return string(o)
}

func phBand(ph float64) string {
	switch {
	case ph < 6.0:
		return "acidic"
	case ph > AlkalinePH:
		return "alkaline"
	default:
		return "neutral"
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func trimForLog(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
