// Package simulator is the rule-based advisor used when no model backend can
// answer. Every method is deterministic and returns non-empty output.
package simulator

import (
	"fmt"
	"strings"

	"github.com/sweetpotato0/agri-advisor/advisory"
	"github.com/sweetpotato0/agri-advisor/environment"
	"github.com/sweetpotato0/agri-advisor/knowledge"
)

// Source labels simulated output.
const Source = "simulated"

type band struct {
	name    string
	crops   []string
	note    string
	actions []string
}

var (
	acidic = band{
		name:    "acidic",
		crops:   []string{"Blueberries", "Potatoes", "Sweet Potatoes"},
		note:    "Your soil is acidic. These crops tolerate a lower pH well.",
		actions: []string{"Apply agricultural lime to raise pH", "Monitor for nutrient deficiencies", "Add organic matter"},
	}
	alkaline = band{
		name:    "alkaline",
		crops:   []string{"Asparagus", "Beets", "Cabbage"},
		note:    "Your soil is alkaline. Salt-tolerant crops are the safer choice.",
		actions: []string{"Apply elemental sulfur", "Use acidifying fertilizers", "Ensure deep irrigation"},
	}
	neutral = band{
		name:    "neutral",
		crops:   []string{"Rice", "Wheat", "Maize", "Tomatoes"},
		note:    "Your soil pH is in the optimal neutral range. Most major crops will do well here.",
		actions: []string{"Maintain current fertilization", "Monitor moisture during bloom", "Check for pests weekly"},
	}
)

func bandFor(ph float64) band {
	switch {
	case ph < 6.0:
		return acidic
	case ph > advisory.AlkalinePH:
		return alkaline
	default:
		return neutral
	}
}

var (
	waterTerms      = []string{"water", "irrigat", "dry", "moisture"}
	pestTerms       = []string{"pest", "bug", "insect", "aphid", "worm", "borer", "mite", "whitefly", "locust"}
	fertilizerTerms = []string{"fertiliz", "fertilis", "nutrient", "nitrogen", "urea", "npk", "manure"}
	diseaseTerms    = []string{"spot", "blight", "mildew", "rot", "wilt", "rust", "fung"}
)

// Advisor produces simulated advice, chat replies and field analysis.
type Advisor struct {
	heavyRainMM float64
}

// New returns a simulator using heavyRainMM as the rain-delay threshold.
func New(heavyRainMM float64) *Advisor {
	if heavyRainMM <= 0 {
		heavyRainMM = environment.HeavyRainMM
	}
	return &Advisor{heavyRainMM: heavyRainMM}
}

// Advise builds structured advice from keyword rules and the pH band.
func (a *Advisor) Advise(query string, env environment.Context) advisory.AgriAdvice {
	q := strings.ToLower(query)
	ph := env.Soil.PH(7)
	b := bandFor(ph)
	moisture := env.Soil.Moisture(50)

	out := advisory.AgriAdvice{Source: Source}
	var immediate []string
	switch {
	case has(q, pestTerms):
		out.RootCause = "Symptoms point to insect pest pressure."
		immediate = append(immediate,
			"Inspect the underside of leaves on 10 plants across the field to gauge infestation",
			"Spray neem oil (5 ml per litre) in the evening if more than a few insects per leaf are found")
		out.PestManagement = []string{"Use yellow sticky traps to monitor flying pests", "Encourage natural predators such as ladybirds", "Rotate crops next season to break pest cycles"}
	case has(q, diseaseTerms):
		out.RootCause = "Symptoms are consistent with a fungal or bacterial leaf disease, favoured by humid conditions."
		immediate = append(immediate,
			"Remove and destroy badly affected leaves",
			"Avoid overhead watering so foliage stays dry")
		out.PestManagement = []string{"Apply a copper-based fungicide if spots keep spreading"}
	case has(q, waterTerms):
		out.RootCause = fmt.Sprintf("Water management: current soil moisture is about %.0f%%.", moisture)
		immediate = append(immediate, "Check soil moisture 5 cm (2 inches) deep before irrigating")
	case has(q, fertilizerTerms):
		out.RootCause = fmt.Sprintf("Nutrient management on %s soil (pH %.1f).", b.name, ph)
		immediate = append(immediate, "Apply a balanced N-P-K fertilizer at the recommended dose, split into two applications")
	default:
		out.RootCause = fmt.Sprintf("General crop care. %s", b.note)
		immediate = append(immediate, "Walk the field and note any change in leaf colour or pest activity")
	}
	out.ImmediateActions = immediate
	out.LongTermPrevention = append([]string(nil), b.actions...)
	out.SafetyWarnings = []string{"Read product labels and wear gloves and a mask when handling chemicals"}
	out.SoilAmendments = []string{b.actions[0]}
	out.Recommendations = []string{"Crops suited to this soil: " + strings.Join(b.crops, ", ")}

	switch {
	case moisture < 30:
		out.IrrigationAdvice = "Soil is dry. Irrigate early in the morning to reduce evaporation."
	case moisture > 70:
		out.IrrigationAdvice = "Soil is already wet. Skip irrigation and check drainage."
	default:
		out.IrrigationAdvice = "Soil moisture is adequate. Irrigate only when the top 5 cm feels dry."
	}
	out.EstimatedImpact = "Following these steps should stabilise the crop within one to two weeks."

	out = advisory.ApplyRainDelay(out, query, env, a.heavyRainMM)
	out = advisory.ApplyAlkalinityLockup(out, query, env)
	return out.Normalize()
}

// Chat answers a follow-up question with a short rule-based reply.
func (a *Advisor) Chat(prompt string, cc advisory.ChatContext) string {
	p := strings.ToLower(prompt)
	crop := strings.TrimSpace(cc.Crop)
	if crop == "" {
		crop = "crop"
	}
	ph := cc.Environment.Soil.PH(7)

	var reply string
	switch {
	case has(p, []string{"water", "irrigat"}):
		reply = fmt.Sprintf("For your %s, check soil moisture about 2 inches deep. If it feels dry, irrigate early in the morning to cut evaporation.", crop)
	case has(p, []string{"pest", "bug"}):
		reply = fmt.Sprintf("Most pests on %s can be kept in check with neem oil and integrated pest management. Look under the leaves for early signs of infestation.", crop)
	case has(p, []string{"fertiliz", "fertilis", "nutrient"}):
		reply = fmt.Sprintf("A balanced N-P-K fertilizer suits %s on your soil. At pH %.1f, %s", crop, ph, availability(ph))
	default:
		reply = fmt.Sprintf("Good question about %s. In general, keep soil moisture steady and watch for local weather alerts.", crop)
	}
	if cc.Environment.HeavyRain(a.heavyRainMM) && has(p, []string{"water", "irrigat", "fertiliz", "fertilis", "nutrient"}) {
		reply += " Heavy rain is forecast, so delay irrigation and fertilizer until it has passed."
	}
	return reply
}

func availability(ph float64) string {
	switch bandFor(ph).name {
	case "acidic":
		return "some nutrients such as phosphorus are less available, so consider liming."
	case "alkaline":
		return "iron and zinc can get locked up, so prefer acidifying fertilizers."
	default:
		return "nutrients should be readily available."
	}
}

// Analyze suggests crops and an action plan from the pH band and live
// readings.
func (a *Advisor) Analyze(w environment.Weather, s environment.Soil) advisory.FieldAnalysis {
	b := bandFor(s.PH(7))
	crops := append([]string(nil), b.crops...)
	if s.SoilType != "" {
		crops = merge(crops, knowledge.SuggestCrops(knowledge.Conditions{
			SoilType:     s.SoilType,
			TemperatureC: w.TemperatureC,
			Raining:      w.Rainfall() > 0 || environment.IsHeavyRainAlert(w.WeatherAlert),
		}))
	}
	return advisory.FieldAnalysis{
		SuggestedCrops: crops,
		SoilAnalysis:   "(Simulated) " + b.note,
		ActionPlan:     append([]string(nil), b.actions...),
		Source:         Source,
	}
}

func merge(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, c := range base {
		seen[c] = true
	}
	for _, c := range extra {
		if !seen[c] {
			seen[c] = true
			base = append(base, c)
		}
	}
	return base
}

func has(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
