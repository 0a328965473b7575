package advisory

import (
	"context"
	"net/http"
	"strings"

	"github.com/sweetpotato0/agri-advisor/environment"
	"github.com/sweetpotato0/agri-advisor/gateway"
	"github.com/sweetpotato0/agri-advisor/prompt"
)

// VisionTieBreaker settles a claim/sensor conflict from a field photo.
type VisionTieBreaker struct {
	gen gateway.Generator
	cfg *Config
}

// NewVisionTieBreaker creates a tie-breaker.
func NewVisionTieBreaker(gen gateway.Generator, opts ...Option) *VisionTieBreaker {
	return &VisionTieBreaker{gen: gen, cfg: applyOptions(opts)}
}

// NeedsTieBreak reports whether a tie-break applies: a conflict was found and a
// photo was supplied.
func NeedsTieBreak(conflict *ConflictReport, image []byte) bool {
	return conflict != nil && conflict.HasConflict && len(image) > 0
}

// Resolve returns the photo verdict, or "" when no tie-break applies.
func (v *VisionTieBreaker) Resolve(ctx context.Context, claim string, image []byte, env environment.Context, conflict *ConflictReport) (string, error) {
	if !NeedsTieBreak(conflict, image) || v.gen == nil {
		return "", nil
	}
	req, err := v.cfg.request(prompt.Vision, prompt.Vars{
		"Claim":       strings.TrimSpace(claim),
		"Conflict":    conflict.ConflictDescription,
		"Environment": prompt.Environment(env),
	})
	if err != nil {
		return "", err
	}
	req.Image = image
	req.ImageMIME = http.DetectContentType(image)

	res := v.gen.Generate(ctx, req)
	if !res.OK() {
		return "", res.Err
	}
	return strings.TrimSpace(res.Text), nil
}
