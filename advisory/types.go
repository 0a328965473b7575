package advisory

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sweetpotato0/agri-advisor/config"
	"github.com/sweetpotato0/agri-advisor/environment"
	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/message"
)

// SoilTypes enumerates the accepted FarmerInput soil types.
var SoilTypes = []string{"loamy", "clay", "sandy", "silty", "peaty", "chalky", "unknown"}

// FarmerInput is a validated structured report from a farmer. The zero value
// is not valid; build it with NewFarmerInput.
type FarmerInput struct {
	soilType       string
	crop           string
	reportedAction string
	location       string
}

// NewFarmerInput trims and validates every field and reports all failures at
// once. The error wraps ErrInvalidInput.
func NewFarmerInput(soilType, crop, reportedAction, location string) (FarmerInput, error) {
	in := FarmerInput{
		soilType:       strings.ToLower(strings.TrimSpace(soilType)),
		crop:           strings.TrimSpace(crop),
		reportedAction: strings.TrimSpace(reportedAction),
		location:       strings.TrimSpace(location),
	}

	v := config.NewValidator()
	v.ValidateOneOf("soil_type", in.soilType, SoilTypes...)
	v.ValidateMinLength("crop", in.crop, 2)
	v.ValidateMinLength("reported_action", in.reportedAction, 5)
	v.ValidateMinLength("location", in.location, 2)
	if err := v.Error(); err != nil {
		return FarmerInput{}, fmt.Errorf("%w: %w", agerrors.ErrInvalidInput, err)
	}
	return in, nil
}

// SoilType returns the soil the farmer reported.
func (f FarmerInput) SoilType() string { return f.soilType }

// Crop returns the crop being grown.
func (f FarmerInput) Crop() string { return f.crop }

// ReportedAction returns what the farmer did or plans to do.
func (f FarmerInput) ReportedAction() string { return f.reportedAction }

// Location returns the farmer's free-text place name.
func (f FarmerInput) Location() string { return f.location }

// IsZero reports whether f was never constructed.
func (f FarmerInput) IsZero() bool { return f.crop == "" }

// Query renders the input as a free-text farmer query.
func (f FarmerInput) Query() string {
	return fmt.Sprintf("My %s crop in %s (%s soil): %s", f.crop, f.location, f.soilType, f.reportedAction)
}

func (f FarmerInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"soil_type":       f.soilType,
		"crop":            f.crop,
		"reported_action": f.reportedAction,
		"location":        f.location,
	})
}

// Urgency levels, lowest first.
const (
	UrgencyLow      = "low"
	UrgencyMedium   = "medium"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

// ExtractedKeywords is the structured reading of a free-text query.
type ExtractedKeywords struct {
	Crop        string   `json:"crop"`
	Pests       []string `json:"pests"`
	Symptoms    []string `json:"symptoms"`
	ActionTaken string   `json:"action_taken"`
	Category    string   `json:"category"`
	Urgency     string   `json:"urgency"`
}

// NeutralKeywords is the extraction fallback.
func NeutralKeywords() ExtractedKeywords {
	return ExtractedKeywords{Pests: []string{}, Symptoms: []string{}, Category: "general", Urgency: UrgencyMedium}
}

// Normalize lowercases and trims every entry, drops empty ones and clamps
// urgency to a known level.
func (k ExtractedKeywords) Normalize() ExtractedKeywords {
	k.Crop = strings.ToLower(strings.TrimSpace(k.Crop))
	k.ActionTaken = strings.TrimSpace(k.ActionTaken)
	k.Category = strings.ToLower(strings.TrimSpace(k.Category))
	if k.Category == "" {
		k.Category = "general"
	}
	k.Pests = normalizeTerms(k.Pests)
	k.Symptoms = normalizeTerms(k.Symptoms)
	switch u := strings.ToLower(strings.TrimSpace(k.Urgency)); u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		k.Urgency = u
	default:
		k.Urgency = UrgencyMedium
	}
	return k
}

func normalizeTerms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ValidationResult is the binary verdict of the input validator. A result is
// valid exactly when it carries no error message; the fields are unexported so
// that cannot drift after construction.
type ValidationResult struct {
	errorMessage string
	warnings     []string
}

// NewValidationResult builds a result from raw parts and rejects a validity
// flag that contradicts the message.
func NewValidationResult(valid bool, errorMessage string, warnings []string) (ValidationResult, error) {
	errorMessage = strings.TrimSpace(errorMessage)
	if valid == (errorMessage != "") {
		return ValidationResult{}, fmt.Errorf("%w: is_valid=%t error_message=%q",
			agerrors.ErrInvalidValidationResult, valid, errorMessage)
	}
	return ValidationResult{errorMessage: errorMessage, warnings: trimList(warnings)}, nil
}

// Valid returns an accepting result.
func Valid(warnings ...string) ValidationResult {
	return ValidationResult{warnings: trimList(warnings)}
}

// Invalid returns a rejecting result. An empty message is replaced with a
// generic reason.
func Invalid(errorMessage string, warnings ...string) ValidationResult {
	if errorMessage = strings.TrimSpace(errorMessage); errorMessage == "" {
		errorMessage = "input rejected"
	}
	return ValidationResult{errorMessage: errorMessage, warnings: trimList(warnings)}
}

// IsValid reports whether the input was accepted.
func (v ValidationResult) IsValid() bool { return v.errorMessage == "" }

// ErrorMessage is the user-facing rejection reason, empty when valid.
func (v ValidationResult) ErrorMessage() string { return v.errorMessage }

// Warnings returns a copy of the non-blocking notes.
func (v ValidationResult) Warnings() []string { return append([]string(nil), v.warnings...) }

// WithWarning returns a copy with w appended.
func (v ValidationResult) WithWarning(w string) ValidationResult {
	v.warnings = append(append([]string(nil), v.warnings...), w)
	return v
}

func (v ValidationResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IsValid      bool     `json:"is_valid"`
		ErrorMessage string   `json:"error_message"`
		Warnings     []string `json:"warnings"`
	}{v.IsValid(), v.errorMessage, v.Warnings()})
}

// AgriAdvice is the structured advice returned to the farmer.
type AgriAdvice struct {
	RootCause          string   `json:"root_cause"`
	ImmediateActions   []string `json:"immediate_actions"`
	LongTermPrevention []string `json:"long_term_prevention"`
	SafetyWarnings     []string `json:"safety_warnings"`
	Recommendations    []string `json:"recommendations"`
	PestManagement     []string `json:"pest_management"`
	SoilAmendments     []string `json:"soil_amendments"`
	IrrigationAdvice   string   `json:"irrigation_advice,omitempty"`
	EstimatedImpact    string   `json:"estimated_impact,omitempty"`
	Source             string   `json:"source"`
}

// Normalize trims every entry and drops empty ones.
func (a AgriAdvice) Normalize() AgriAdvice {
	a.RootCause = strings.TrimSpace(a.RootCause)
	a.ImmediateActions = trimList(a.ImmediateActions)
	a.LongTermPrevention = trimList(a.LongTermPrevention)
	a.SafetyWarnings = trimList(a.SafetyWarnings)
	a.Recommendations = trimList(a.Recommendations)
	a.PestManagement = trimList(a.PestManagement)
	a.SoilAmendments = trimList(a.SoilAmendments)
	a.IrrigationAdvice = strings.TrimSpace(a.IrrigationAdvice)
	a.EstimatedImpact = strings.TrimSpace(a.EstimatedImpact)
	return a
}

// IsEmpty reports whether the advice has no actionable content.
func (a AgriAdvice) IsEmpty() bool {
	return a.RootCause == "" && len(a.ImmediateActions) == 0 && len(a.Recommendations) == 0
}

// Text renders the advice as the sectioned plain text shown to farmers.
func (a AgriAdvice) Text() string {
	var b strings.Builder
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s\n", title)
		for _, it := range items {
			fmt.Fprintf(&b, "- %s\n", it)
		}
		b.WriteString("\n")
	}
	if a.RootCause != "" {
		fmt.Fprintf(&b, "ROOT CAUSE\n%s\n\n", a.RootCause)
	}
	section("IMMEDIATE ACTIONS (Next 48h)", a.ImmediateActions)
	section("LONG-TERM PREVENTION", a.LongTermPrevention)
	section("SAFETY WARNINGS", a.SafetyWarnings)
	section("RECOMMENDATIONS", a.Recommendations)
	section("PEST MANAGEMENT", a.PestManagement)
	section("SOIL AMENDMENTS", a.SoilAmendments)
	if a.IrrigationAdvice != "" {
		fmt.Fprintf(&b, "IRRIGATION\n%s\n\n", a.IrrigationAdvice)
	}
	if a.EstimatedImpact != "" {
		fmt.Fprintf(&b, "ESTIMATED IMPACT\n%s\n", a.EstimatedImpact)
	}
	return strings.TrimSpace(b.String())
}

// ConflictReport compares a farmer's claim against sensor readings.
type ConflictReport struct {
	HasConflict          bool    `json:"has_conflict"`
	ConflictDescription  string  `json:"conflict_description"`
	VerificationQuestion string  `json:"verification_question"`
	ProceedWithAdvice    bool    `json:"proceed_with_advice"`
	Confidence           float64 `json:"confidence"`
}

// NeutralConflict is the truth-check fallback: no conflict, proceed.
func NeutralConflict() ConflictReport {
	return ConflictReport{ProceedWithAdvice: true, Confidence: 0.5}
}

func (c ConflictReport) normalize() ConflictReport {
	c.ConflictDescription = strings.TrimSpace(c.ConflictDescription)
	c.VerificationQuestion = strings.TrimSpace(c.VerificationQuestion)
	if math.IsNaN(c.Confidence) {
		c.Confidence = 0.5
	}
	c.Confidence = math.Min(math.Max(c.Confidence, 0), 1)
	return c
}

// FieldAnalysis is the crop and action plan for a field.
type FieldAnalysis struct {
	SuggestedCrops []string `json:"suggested_crops"`
	SoilAnalysis   string   `json:"soil_analysis"`
	ActionPlan     []string `json:"action_plan"`
	Source         string   `json:"source"`
}

// ChatContext is what a chat reply may draw on besides the prompt.
type ChatContext struct {
	Crop        string
	Environment environment.Context
	History     []message.Message
}

// Status is the lifecycle of a pipeline run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// TraceEntry records what one node did.
type TraceEntry struct {
	Node   string    `json:"node"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}
