package advisory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/message"
	"github.com/sweetpotato0/agri-advisor/tokenizer"
)

func adviceReply(s string) *ScriptedGenerator {
	return &ScriptedGenerator{Replies: map[string]string{KindAdvice: s}, Backend: "gemini"}
}

func TestGenerateAdviceHeavyRainDelay(t *testing.T) {
	gen := adviceReply(`{"root_cause":"Nitrogen deficiency","immediate_actions":["Top dress 20 kg urea per acre"],"irrigation_advice":"Irrigate lightly"}`)
	env := field(27, 80, "Heavy rain alert", 6.8, 40)

	advice, err := NewAdvisor(gen, quiet()).GenerateAdvice(context.Background(), "Should I apply urea to my maize this week?", env, nil, nil)
	require.NoError(t, err)

	require.NotEmpty(t, advice.ImmediateActions)
	assert.Equal(t, RainDelayAction, advice.ImmediateActions[0])
	assert.Contains(t, advice.ImmediateActions, "Top dress 20 kg urea per acre")
	assert.Contains(t, advice.IrrigationAdvice, "Hold irrigation")
	assert.Equal(t, "gemini", advice.Source)
}

func TestGenerateAdviceAlkalineLockup(t *testing.T) {
	gen := adviceReply(`{"root_cause":"Nitrogen deficiency","immediate_actions":["Apply more nitrogen fertilizer","Remove badly affected leaves"]}`)
	env := field(29, 0, "", 8.2, 35)

	advice, err := NewAdvisor(gen, quiet()).GenerateAdvice(context.Background(), "My tomato leaves are turning yellow", env, nil, nil)
	require.NoError(t, err)

	assert.Contains(t, advice.RootCause, "alkalinity-driven nutrient lock-up")
	assert.Equal(t, []string{"Remove badly affected leaves"}, advice.ImmediateActions)
	assert.NotEmpty(t, advice.SoilAmendments)
}

func TestGenerateAdvicePromptCarriesContext(t *testing.T) {
	gen := adviceReply(`{"root_cause":"Waterlogging","immediate_actions":["Open drainage channels"]}`)
	env := field(24, 45, "", 6.4, 88)
	conflict := &ConflictReport{HasConflict: true, ConflictDescription: "Sensors show 88% moisture", VerificationQuestion: "Is the soil damp 5 cm down?"}

	_, err := NewAdvisor(gen, quiet()).GenerateAdvice(context.Background(), "soil is bone dry", env, conflict, nil)
	require.NoError(t, err)

	reqs := gen.Requests(KindAdvice)
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].JSON)
	assert.Contains(t, reqs[0].Prompt, "Soil moisture: 88%")
	assert.Contains(t, reqs[0].Prompt, "Soil pH: 6.4")
	assert.Contains(t, reqs[0].Prompt, "Sensors show 88% moisture")
	assert.Contains(t, reqs[0].Prompt, "Is the soil damp 5 cm down?")
	assert.NotContains(t, reqs[0].Prompt, "<no value>")
}

func TestGenerateAdviceTrimsHistory(t *testing.T) {
	gen := adviceReply(`{"root_cause":"Aphids","immediate_actions":["Spray neem oil"]}`)
	history := []message.Message{
		message.NewMessage(message.RoleUser, "oldest question"),
		message.NewMessage(message.RoleAssistant, "oldest answer"),
		message.NewMessage(message.RoleUser, "newest question"),
	}
	tenEach := tokenizer.CounterFunc(func(string) int { return 10 })

	_, err := NewAdvisor(gen, quiet(), WithHistoryBudget(20), WithTokenCounter(tenEach)).
		GenerateAdvice(context.Background(), "aphids on okra", field(30, 0, "", 7, 40), nil, history)
	require.NoError(t, err)

	p := gen.Requests(KindAdvice)[0].Prompt
	assert.Contains(t, p, "user: newest question")
	assert.NotContains(t, p, "oldest")
}

func TestGenerateAdviceProseBecomesRootCause(t *testing.T) {
	gen := adviceReply("Your wheat has leaf rust. Spray propiconazole.")
	advice, err := NewAdvisor(gen, quiet()).GenerateAdvice(context.Background(), "orange powder on wheat", field(22, 0, "", 7, 40), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Your wheat has leaf rust. Spray propiconazole.", advice.RootCause)
}

func TestGenerateAdviceWithoutBackend(t *testing.T) {
	_, err := NewAdvisor(nil, quiet()).GenerateAdvice(context.Background(), "aphids", field(30, 0, "", 7, 40), nil, nil)
	assert.ErrorIs(t, err, agerrors.ErrNoBackendAvailable)

	_, err = NewAdvisor(&ScriptedGenerator{Err: errExhausted}, quiet()).GenerateAdvice(context.Background(), "aphids", field(30, 0, "", 7, 40), nil, nil)
	assert.ErrorIs(t, err, agerrors.ErrBackendsExhausted)
}

func TestVisionTieBreak(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	conflict := &ConflictReport{HasConflict: true, ConflictDescription: "sensor says wet"}
	gen := &ScriptedGenerator{Replies: map[string]string{KindVision: "The photo shows cracked, dry soil."}}
	v := NewVisionTieBreaker(gen, quiet())

	out, err := v.Resolve(context.Background(), "bone dry", png, field(25, 0, "", 7, 80), conflict)
	require.NoError(t, err)
	assert.Equal(t, "The photo shows cracked, dry soil.", out)
	req := gen.Requests(KindVision)[0]
	assert.Equal(t, "image/png", req.ImageMIME)
	assert.Equal(t, png, req.Image)

	out, err = v.Resolve(context.Background(), "bone dry", nil, field(25, 0, "", 7, 80), conflict)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.False(t, NeedsTieBreak(&ConflictReport{}, png))
	assert.Len(t, gen.Requests(KindVision), 1)
}
