package advisory

import (
	"fmt"
	"strings"

	"github.com/sweetpotato0/agri-advisor/environment"
)

// RainDelayAction is prepended to immediate actions when field work would be
// washed out by forecast heavy rain.
const RainDelayAction = "Delay irrigation and fertilizer application until after the forecast rain has passed (at least 24-48 hours)"

// AlkalinePH is the pH above which micronutrient lock-up is expected.
const AlkalinePH = 7.5

var fieldWorkTerms = []string{"irrigat", "water", "fertiliz", "fertilis", "urea", "npk", "n-p-k", "dap", "manure", "compost", "top dress", "spray"}

var chlorosisTerms = []string{"yellow", "chlorosis", "chlorotic", "pale"}

// RequestsFieldWork reports whether the text asks about irrigating or feeding.
func RequestsFieldWork(text string) bool {
	return containsAny(strings.ToLower(text), fieldWorkTerms)
}

func mentionsDelay(text string) bool {
	return containsAny(strings.ToLower(text), []string{"delay", "postpone", "after rain", "after the rain", "wait until", "hold off"})
}

// ApplyRainDelay makes sure advice for field work under a heavy rain forecast
// leads with a delay.
func ApplyRainDelay(a AgriAdvice, query string, env environment.Context, heavyRainMM float64) AgriAdvice {
	if !env.HeavyRain(heavyRainMM) || !RequestsFieldWork(query) {
		return a
	}
	for _, act := range a.ImmediateActions {
		if mentionsDelay(act) {
			return a
		}
	}
	a.ImmediateActions = append([]string{RainDelayAction}, a.ImmediateActions...)
	if a.IrrigationAdvice == "" || !mentionsDelay(a.IrrigationAdvice) {
		a.IrrigationAdvice = strings.TrimSpace("Hold irrigation: heavy rain is forecast. " + a.IrrigationAdvice)
	}
	return a
}

// LockupCause explains yellowing on alkaline soil.
func LockupCause(ph float64) string {
	return fmt.Sprintf("Soil pH %.1f is alkaline: iron, zinc and manganese are chemically locked up (alkalinity-driven nutrient lock-up), so leaves yellow even when nutrients are present. Adding more nitrogen will not fix this.", ph)
}

// ApplyAlkalinityLockup attributes yellowing on alkaline soil to nutrient
// lock-up when the advice does not already say so, and removes generic
// "more nitrogen" actions.
func ApplyAlkalinityLockup(a AgriAdvice, query string, env environment.Context) AgriAdvice {
	ph := env.Soil.PH(7)
	if ph <= AlkalinePH || !containsAny(strings.ToLower(query), chlorosisTerms) {
		return a
	}

	kept := a.ImmediateActions[:0:0]
	for _, act := range a.ImmediateActions {
		if l := strings.ToLower(act); strings.Contains(l, "more nitrogen") || strings.Contains(l, "extra nitrogen") {
			continue
		}
		kept = append(kept, act)
	}
	a.ImmediateActions = kept

	if strings.Contains(strings.ToLower(a.RootCause), "lock") {
		return a
	}
	if a.RootCause == "" {
		a.RootCause = LockupCause(ph)
	} else {
		a.RootCause += " " + LockupCause(ph)
	}
	if len(a.SoilAmendments) == 0 {
		a.SoilAmendments = []string{"Apply elemental sulfur or acidifying fertilizer to lower pH", "Use chelated iron (Fe-EDDHA) as a foliar or soil treatment"}
	}
	return a
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
