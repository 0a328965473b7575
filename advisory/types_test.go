package advisory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
)

func TestValidationResultInvariant(t *testing.T) {
	tests := []struct {
		valid   bool
		msg     string
		wantErr bool
	}{
		{true, "", false},
		{false, "gibberish", false},
		{true, "but why", true},
		{false, "", true},
		{false, "   ", true},
	}
	for _, tt := range tests {
		res, err := NewValidationResult(tt.valid, tt.msg, []string{" note ", ""})
		if tt.wantErr {
			assert.ErrorIs(t, err, agerrors.ErrInvalidValidationResult, "valid=%t msg=%q", tt.valid, tt.msg)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.valid, res.IsValid())
		assert.Equal(t, []string{"note"}, res.Warnings())
	}

	all := []ValidationResult{{}, Valid(), Valid("w"), Invalid(""), Invalid("bad input"), Valid().WithWarning("x")}
	for _, r := range all {
		assert.Equal(t, r.IsValid(), r.ErrorMessage() == "")
	}
	assert.Equal(t, "input rejected", Invalid(" ").ErrorMessage())
}

func TestValidationResultJSON(t *testing.T) {
	raw, err := json.Marshal(Invalid("not farming", "check spelling"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"is_valid":false,"error_message":"not farming","warnings":["check spelling"]}`, string(raw))
}

func TestNewFarmerInput(t *testing.T) {
	in, err := NewFarmerInput(" Clay ", " tomato ", "leaves turning yellow", "Punjab")
	require.NoError(t, err)
	assert.Equal(t, "clay", in.SoilType())
	assert.Equal(t, "tomato", in.Crop())
	assert.Contains(t, in.Query(), "leaves turning yellow")

	_, err = NewFarmerInput("volcanic", "x", "hmm", "")
	require.ErrorIs(t, err, agerrors.ErrInvalidInput)
	for _, field := range []string{"soil_type", "crop", "reported_action", "location"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestKeywordsNormalize(t *testing.T) {
	kw := ExtractedKeywords{
		Crop:     " Tomato ",
		Pests:    []string{"  Aphids ", "", " ", "WHITEFLY"},
		Symptoms: []string{"Leaf Curl", ""},
		Urgency:  "URGENT",
	}.Normalize()

	assert.Equal(t, "tomato", kw.Crop)
	assert.Equal(t, []string{"aphids", "whitefly"}, kw.Pests)
	assert.Equal(t, []string{"leaf curl"}, kw.Symptoms)
	assert.Equal(t, UrgencyMedium, kw.Urgency)
	assert.Equal(t, "general", kw.Category)

	assert.Equal(t, UrgencyCritical, ExtractedKeywords{Urgency: " Critical"}.Normalize().Urgency)
}

func TestAdviceNormalizeAndText(t *testing.T) {
	a := AgriAdvice{
		RootCause:        "  Iron lock-up ",
		ImmediateActions: []string{" spray chelated iron ", ""},
		SafetyWarnings:   []string{"wear gloves"},
	}.Normalize()

	assert.Equal(t, []string{"spray chelated iron"}, a.ImmediateActions)
	assert.False(t, a.IsEmpty())
	text := a.Text()
	assert.Contains(t, text, "ROOT CAUSE\nIron lock-up")
	assert.Contains(t, text, "IMMEDIATE ACTIONS (Next 48h)\n- spray chelated iron")
	assert.NotContains(t, text, "LONG-TERM PREVENTION")
	assert.True(t, AgriAdvice{}.IsEmpty())
}

func TestConflictConfidenceClamped(t *testing.T) {
	assert.Equal(t, 1.0, ConflictReport{Confidence: 1.7}.normalize().Confidence)
	assert.Equal(t, 0.0, ConflictReport{Confidence: -2}.normalize().Confidence)
	assert.Equal(t, NeutralConflict(), ConflictReport{ProceedWithAdvice: true, Confidence: 0.5}.normalize())
}
