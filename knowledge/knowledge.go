// Package knowledge holds static agronomic reference data: regional soil and
// crop profiles and the rule-based crop suggestion engine.
package knowledge

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed regions.yaml
var regionsYAML []byte

// Region is the dominant soil and staple crops of a state.
type Region struct {
	Soil  string   `yaml:"soil" json:"soil"`
	Crops []string `yaml:"crops" json:"crops"`
}

// Base is a lookup table of regional profiles.
type Base struct {
	def     Region
	regions map[string]Region
}

type document struct {
	Default Region            `yaml:"default"`
	Regions map[string]Region `yaml:"regions"`
}

// Parse decodes a regions document.
func Parse(data []byte) (*Base, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("knowledge: parse regions: %w", err)
	}
	if doc.Default.Soil == "" || len(doc.Default.Crops) == 0 {
		return nil, fmt.Errorf("knowledge: default region is incomplete")
	}
	b := &Base{def: doc.Default, regions: make(map[string]Region, len(doc.Regions))}
	for name, r := range doc.Regions {
		b.regions[strings.ToLower(strings.TrimSpace(name))] = r
	}
	return b, nil
}

var builtin *Base

func init() {
	b, err := Parse(regionsYAML)
	if err != nil {
		panic(err)
	}
	builtin = b
}

// Default returns the embedded knowledge base.
func Default() *Base { return builtin }

// Lookup returns the profile for state, case-insensitively. Unknown states get
// the default profile and ok=false.
func (b *Base) Lookup(state string) (Region, bool) {
	r, ok := b.regions[strings.ToLower(strings.TrimSpace(state))]
	if !ok {
		return b.def, false
	}
	return r, true
}

// States lists the known states in alphabetical order.
func (b *Base) States() []string {
	out := make([]string, 0, len(b.regions))
	for name := range b.regions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Conditions are the live readings that drive crop suggestions.
type Conditions struct {
	SoilType     string
	TemperatureC float64
	Raining      bool
}

var soilCrops = []struct {
	keyword string
	crops   []string
}{
	{"clay", []string{"Rice", "Sugarcane", "Cotton", "Soybean"}},
	{"black", []string{"Rice", "Sugarcane", "Cotton", "Soybean"}},
	{"sand", []string{"Bajra", "Groundnut", "Mustard", "Watermelon"}},
	{"loam", []string{"Wheat", "Maize", "Vegetables", "Pulses", "Cotton"}},
}

var fallbackCrops = []string{"Rice", "Wheat", "Jute"}

// SuggestCrops ranks crops for the soil and weather. Rain favours paddy and
// cane, heat above 30°C favours cotton, cool weather below 20°C favours wheat.
// The result has no duplicates and is never empty.
func SuggestCrops(c Conditions) []string {
	soil := strings.ToLower(c.SoilType)
	base := fallbackCrops
	for _, sc := range soilCrops {
		if strings.Contains(soil, sc.keyword) {
			base = sc.crops
			break
		}
	}

	var ranked []string
	if c.Raining {
		ranked = append(ranked, "Rice", "Sugarcane")
	}
	if c.TemperatureC > 30 {
		ranked = append(ranked, "Cotton")
	} else if c.TemperatureC < 20 {
		ranked = append(ranked, "Wheat")
	}
	ranked = append(ranked, base...)
	return dedupe(ranked)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
