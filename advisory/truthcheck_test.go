package advisory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLexicalConflictBoneDry(t *testing.T) {
	env := field(28, 45, "", 6.8, 88)
	r := NewTruthChecker(nil, quiet()).CheckConflict(context.Background(), "The soil is bone dry", env)

	assert.True(t, r.HasConflict)
	assert.NotEmpty(t, r.VerificationQuestion)
	assert.True(t, r.ProceedWithAdvice)
	assert.Contains(t, r.ConflictDescription, "88%")
	assert.InDelta(t, 0.8, r.Confidence, 1e-9)
}

func TestLexicalConflictCases(t *testing.T) {
	tests := []struct {
		name     string
		claim    string
		env      func() (float64, float64)
		conflict bool
	}{
		{"dry claim dry field", "soil is dry and cracked", func() (float64, float64) { return 18, 0 }, false},
		{"dry claim after rain", "it has not rained for weeks", func() (float64, float64) { return 40, 25 }, true},
		{"wet claim dry sensor", "my field is waterlogged", func() (float64, float64) { return 20, 0 }, true},
		{"wet claim wet sensor", "field is flooded", func() (float64, float64) { return 90, 60 }, false},
		{"no claim", "aphids on the leaves", func() (float64, float64) { return 90, 60 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			moisture, rain := tt.env()
			r := LexicalConflict(tt.claim, field(28, rain, "", 7, moisture))
			assert.Equal(t, tt.conflict, r.HasConflict)
			assert.Equal(t, tt.conflict, r.VerificationQuestion != "")
			assert.True(t, r.ProceedWithAdvice)
		})
	}
}

func TestModelConflictIsAdvisoryByDefault(t *testing.T) {
	gen := &ScriptedGenerator{Replies: map[string]string{
		KindTruthCheck: `{"has_conflict":true,"conflict_description":"Moisture is 88% but you say bone dry","verification_question":"","proceed_with_advice":false,"confidence":1.7}`,
	}}
	r := NewTruthChecker(gen, quiet()).CheckConflict(context.Background(), "soil is bone dry", field(28, 45, "", 6.8, 88))

	assert.True(t, r.HasConflict)
	assert.True(t, r.ProceedWithAdvice)
	assert.Equal(t, 1.0, r.Confidence)
	assert.NotEmpty(t, r.VerificationQuestion)

	req := gen.Requests(KindTruthCheck)[0]
	assert.Contains(t, req.Prompt, "Soil moisture: 88%")
	assert.Contains(t, req.Prompt, "Rainfall: 45.0 mm")
}

func TestModelFailureUsesLexicalRules(t *testing.T) {
	r := NewTruthChecker(&ScriptedGenerator{}, quiet()).CheckConflict(context.Background(), "bone dry", field(28, 45, "", 6.8, 88))
	assert.True(t, r.HasConflict)

	gen := &ScriptedGenerator{Replies: map[string]string{KindTruthCheck: "no json here"}}
	r = NewTruthChecker(gen, quiet()).CheckConflict(context.Background(), "bone dry", field(28, 45, "", 6.8, 88))
	assert.Equal(t, NeutralConflict(), r)
}

func TestBlockSeverePolicy(t *testing.T) {
	heavy := field(26, 80, "Heavy rain alert", 6.5, 40)
	claim := "The soil is dry, should I irrigate and add urea today?"

	blocking := NewTruthChecker(nil, quiet(), WithConflictPolicy(ConflictPolicy{BlockSevere: true, HeavyRainMM: 50}))
	r := blocking.CheckConflict(context.Background(), claim, heavy)
	assert.True(t, r.HasConflict)
	assert.False(t, r.ProceedWithAdvice)
	assert.NotEmpty(t, r.VerificationQuestion)

	// Same claim without heavy rain proceeds.
	r = blocking.CheckConflict(context.Background(), claim, field(26, 2, "", 6.5, 40))
	assert.True(t, r.ProceedWithAdvice)

	// Default policy never blocks.
	r = NewTruthChecker(nil, quiet()).CheckConflict(context.Background(), claim, heavy)
	assert.True(t, r.ProceedWithAdvice)
}
