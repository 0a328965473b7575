package gateway

import (
	"context"
	"fmt"
	"sort"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
)

// Tier orders backends; lower tiers are tried first.
type Tier int

const (
	TierPrimary Tier = iota + 1
	TierSecondary
	TierTertiary
)

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Capability is a feature a backend supports beyond plain text.
type Capability string

const (
	CapJSON   Capability = "json"
	CapVision Capability = "vision"
)

// Request is a single prompt call.
type Request struct {
	System string
	Prompt string
	// Image is optional JPEG/PNG bytes for vision calls.
	Image     []byte
	ImageMIME string
	// JSON asks the backend for a JSON object response when it supports it.
	JSON bool
	// Temperature overrides the backend default when set. An explicit 0
	// is sent as 0.
	Temperature *float64
	MaxTokens   int
}

// NeedsVision reports whether the request carries an image.
func (r Request) NeedsVision() bool { return len(r.Image) > 0 }

// TemperatureOr returns the requested temperature, or fallback when the
// request leaves it unset.
func (r Request) TemperatureOr(fallback float64) float64 {
	if r.Temperature == nil {
		return fallback
	}
	return *r.Temperature
}

// Float returns a pointer to v, for optional request fields.
func Float(v float64) *float64 { return &v }

// Backend is a single LLM provider behind the uniform generate contract.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Descriptor declares a backend without constructing it. Credential gates
// selection; Factory builds the backend on first use.
type Descriptor struct {
	Tier         Tier
	Name         string
	Credential   string
	Capabilities []Capability
	Factory      func() (Backend, error)
}

// Supports reports whether the descriptor declares the capability.
func (d Descriptor) Supports(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Select returns the usable descriptors in priority order. It depends only on
// its input: a descriptor is usable when its credential is non-empty.
func Select(descs []Descriptor) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(descs))
	for _, d := range descs {
		if d.Credential == "" || d.Factory == nil {
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, agerrors.ErrNoBackendAvailable
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out, nil
}

// StaticBackend wraps an already constructed backend in a descriptor.
func StaticBackend(tier Tier, b Backend, caps ...Capability) Descriptor {
	return Descriptor{
		Tier:         tier,
		Name:         b.Name(),
		Credential:   "static",
		Capabilities: caps,
		Factory:      func() (Backend, error) { return b, nil },
	}
}
