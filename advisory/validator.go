package advisory

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sweetpotato0/agri-advisor/environment"
	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/gateway"
	"github.com/sweetpotato0/agri-advisor/prompt"
)

const (
	minQueryRunes   = 3
	maxQueryRunes   = 4000
	minLetterRatio  = 0.5
	auditorDegraded = "input screening unavailable; message accepted without review"
)

// InputValidator is the binary gate in front of the pipeline. It rejects
// gibberish and off-topic input; it never judges conflicts with sensor data.
type InputValidator struct {
	gen gateway.Generator
	cfg *Config
}

// NewInputValidator creates a validator. A nil generator applies only the
// local checks.
func NewInputValidator(gen gateway.Generator, opts ...Option) *InputValidator {
	return &InputValidator{gen: gen, cfg: applyOptions(opts)}
}

type auditVerdict struct {
	IsValid      *bool    `json:"is_valid"`
	ErrorMessage string   `json:"error_message"`
	Warnings     []string `json:"warnings"`
}

// Validate screens query. Backend failures accept the input with a warning.
func (v *InputValidator) Validate(ctx context.Context, query string, env environment.Context) ValidationResult {
	if res := CheckQuery(query); !res.IsValid() || v.gen == nil {
		return res
	}

	vars := prompt.Vars{"Query": strings.TrimSpace(query)}
	if env.Place != nil {
		vars["Place"] = env.Place.Name()
	}
	req, err := v.cfg.request(prompt.Validation, vars)
	if err != nil {
		v.cfg.logger.Error("render validation prompt", "error", err)
		return Valid(auditorDegraded)
	}
	req.Temperature = gateway.Float(0)

	res := gateway.GenerateStructured(ctx, v.gen, req, auditVerdict{}, func(a *auditVerdict) error {
		if a.IsValid == nil {
			return errors.New("is_valid missing")
		}
		return nil
	})
	switch {
	case errors.Is(res.Err, agerrors.ErrNoBackendAvailable):
		return Valid()
	case !res.OK():
		v.cfg.logger.Warn("input auditor failed", "error", res.Err)
		return Valid(auditorDegraded)
	case res.Degraded:
		v.cfg.logger.Warn("input auditor output malformed", "error", res.DecodeErr)
		return Valid(auditorDegraded)
	}

	out, err := NewValidationResult(*res.Value.IsValid, res.Value.ErrorMessage, res.Value.Warnings)
	if err != nil {
		// A rejection without a reason still rejects; an acceptance carrying
		// a message keeps the message as a warning.
		if !*res.Value.IsValid {
			return Invalid("Your message could not be understood as a farming question.", res.Value.Warnings...)
		}
		return Valid(append(res.Value.Warnings, res.Value.ErrorMessage)...)
	}
	return out
}

// CheckQuery applies the local gibberish rules.
func CheckQuery(query string) ValidationResult {
	q := strings.TrimSpace(query)
	n := utf8.RuneCountInString(q)
	switch {
	case n == 0:
		return Invalid("Please describe your crop, what you see in the field, or what you want to know.")
	case n < minQueryRunes:
		return Invalid("Your message is too short. Please describe the problem in a few words.")
	case n > maxQueryRunes:
		return Invalid("Your message is too long. Please keep it under 4000 characters.")
	}

	var letters, visible int
	for _, r := range q {
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		if unicode.IsLetter(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) {
			letters++
		}
	}
	if letters == 0 || float64(letters)/float64(visible) < minLetterRatio {
		return Invalid("Your message looks like random characters. Please describe the problem in words.")
	}
	if looksLikeKeyboardMash(q) {
		return Invalid("Your message looks like random characters. Please describe the problem in words.")
	}
	return Valid()
}

// looksLikeKeyboardMash flags Latin text where no word of four or more
// letters contains a vowel, e.g. "sdfghjkl qwrtzp".
func looksLikeKeyboardMash(q string) bool {
	longWords, vowelless := 0, 0
	for _, w := range strings.Fields(strings.ToLower(q)) {
		if utf8.RuneCountInString(w) < 4 {
			continue
		}
		latin := true
		for _, r := range w {
			if r > unicode.MaxASCII {
				latin = false
				break
			}
		}
		if !latin {
			return false
		}
		longWords++
		if !strings.ContainsAny(w, "aeiouy") {
			vowelless++
		}
	}
	return longWords > 0 && vowelless == longWords
}
