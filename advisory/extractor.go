package advisory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/gateway"
	"github.com/sweetpotato0/agri-advisor/prompt"
)

// Extractor turns a free-text query into ExtractedKeywords.
type Extractor struct {
	gen gateway.Generator
	cfg *Config
}

// NewExtractor creates an extractor. A nil generator uses keyword rules only.
func NewExtractor(gen gateway.Generator, opts ...Option) *Extractor {
	return &Extractor{gen: gen, cfg: applyOptions(opts)}
}

// Extract returns normalized keywords. Malformed model output degrades to
// the keyword rules; the error reports only backend failures, and the
// returned keywords are usable even then.
func (e *Extractor) Extract(ctx context.Context, query string) (ExtractedKeywords, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return NeutralKeywords(), fmt.Errorf("%w: empty query", agerrors.ErrInvalidInput)
	}
	local := localKeywords(query)
	if e.gen == nil {
		return local, nil
	}

	req, err := e.cfg.request(prompt.Extraction, prompt.Vars{"Query": query})
	if err != nil {
		return local, err
	}
	req.Temperature = gateway.Float(0)

	res := gateway.GenerateStructured(ctx, e.gen, req, local, func(k *ExtractedKeywords) error {
		if strings.TrimSpace(k.Crop) == "" && len(k.Pests) == 0 && len(k.Symptoms) == 0 {
			return errors.New("no crop, pests or symptoms")
		}
		return nil
	})
	if res.Degraded {
		e.cfg.logger.Warn("extraction output malformed, using keyword rules", "error", res.DecodeErr)
	}
	if !res.OK() {
		if errors.Is(res.Err, agerrors.ErrNoBackendAvailable) {
			return local, nil
		}
		return local, res.Err
	}

	kw := res.Value.Normalize()
	if kw.Crop == "" {
		kw.Crop = local.Crop
	}
	return kw, nil
}

var knownCrops = []struct{ name, stem string }{
	{"tomato", "tomato"}, {"wheat", "wheat"}, {"rice", "rice"}, {"rice", "paddy"},
	{"potato", "potato"}, {"cotton", "cotton"}, {"maize", "maize"}, {"maize", "corn"},
	{"sugarcane", "sugarcane"}, {"soybean", "soybean"}, {"soybean", "soya"},
	{"onion", "onion"}, {"chilli", "chilli"}, {"chilli", "chili"}, {"groundnut", "groundnut"},
	{"groundnut", "peanut"}, {"mustard", "mustard"}, {"banana", "banana"}, {"bajra", "bajra"},
	{"jowar", "jowar"}, {"ragi", "ragi"}, {"jute", "jute"}, {"brinjal", "brinjal"},
}

var knownPests = []struct{ name, stem string }{
	{"aphids", "aphid"}, {"whitefly", "whitefl"}, {"bollworm", "bollworm"}, {"stem borer", "borer"},
	{"thrips", "thrip"}, {"mites", "mite"}, {"locusts", "locust"}, {"caterpillars", "caterpillar"},
	{"armyworm", "armyworm"}, {"jassids", "jassid"}, {"green insects", "green insect"},
}

var knownSymptoms = []struct{ name, stem string }{
	{"yellowing leaves", "yellow"}, {"brown spots", "brown spot"}, {"wilting", "wilt"},
	{"leaf curling", "curl"}, {"powdery coating", "powder"}, {"leaf drying", "drying"},
	{"rotting", "rotting"}, {"holes in leaves", "holes"}, {"stunted growth", "stunt"},
}

var urgencyRules = []struct {
	level string
	terms []string
}{
	{UrgencyCritical, []string{"whole field", "entire field", "spreading fast", "spreading rapidly", "dying", "all plants"}},
	{UrgencyHigh, []string{"spreading", "infest", "everywhere", "getting worse", "many plants"}},
	{UrgencyLow, []string{"how often", "when should", "which variety", "what is the best", "planning"}},
}

// localKeywords is a rule-based reading used without a backend or when its
// output is unusable. Paraphrases sharing the same crop and urgency terms
// land in the same tier.
func localKeywords(query string) ExtractedKeywords {
	q := strings.ToLower(query)
	kw := NeutralKeywords()
	for _, c := range knownCrops {
		if strings.Contains(q, c.stem) {
			kw.Crop = c.name
			break
		}
	}
	for _, p := range knownPests {
		if strings.Contains(q, p.stem) {
			kw.Pests = append(kw.Pests, p.name)
		}
	}
	for _, s := range knownSymptoms {
		if strings.Contains(q, s.stem) {
			kw.Symptoms = append(kw.Symptoms, s.name)
		}
	}

	switch {
	case len(kw.Pests) > 0:
		kw.Category = "pest"
	case containsAny(q, []string{"spot", "blight", "mildew", "rust", " rot", "fung"}):
		kw.Category = "disease"
	case containsAny(q, []string{"water", "irrigat"}):
		kw.Category = "irrigation"
	case containsAny(q, []string{"fertiliz", "fertilis", "nutrient", "urea", "npk"}):
		kw.Category = "nutrient"
	case containsAny(q, []string{"rain", "storm", "heat", "frost"}):
		kw.Category = "weather"
	}

	for _, r := range urgencyRules {
		if containsAny(q, r.terms) {
			kw.Urgency = r.level
			break
		}
	}
	if kw.Urgency == UrgencyMedium && kw.Category == "pest" {
		kw.Urgency = UrgencyHigh
	}
	return kw.Normalize()
}

func (k ExtractedKeywords) summary() string {
	parts := []string{"category: " + k.Category, "urgency: " + k.Urgency}
	if k.Crop != "" {
		parts = append([]string{"crop: " + k.Crop}, parts...)
	}
	if len(k.Pests) > 0 {
		parts = append(parts, "pests: "+strings.Join(k.Pests, ", "))
	}
	if len(k.Symptoms) > 0 {
		parts = append(parts, "symptoms: "+strings.Join(k.Symptoms, ", "))
	}
	if k.ActionTaken != "" {
		parts = append(parts, "action taken: "+k.ActionTaken)
	}
	return strings.Join(parts, "; ")
}
