package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sweetpotato0/agri-advisor/advisory"
	"github.com/sweetpotato0/agri-advisor/environment"
	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/middleware"
)

func TestRequestValidator(t *testing.T) {
	input, err := advisory.NewFarmerInput("sandy", "Groundnut", "sprayed neem oil yesterday", "Anantapur")
	assert.NoError(t, err)
	png := []byte("\x89PNG\r\n\x1a\n0000")

	tests := []struct {
		name  string
		req   advisory.Request
		valid bool
	}{
		{"query", advisory.Request{Query: "leaf spots on groundnut"}, true},
		{"structured input", advisory.Request{Input: &input}, true},
		{"empty", advisory.Request{Query: "  "}, false},
		{"zero input", advisory.Request{Input: &advisory.FarmerInput{}}, false},
		{"bad latitude", advisory.Request{Query: "rust", Location: &environment.Coordinates{Latitude: 91}}, false},
		{"png photo", advisory.Request{Query: "rust", Image: png}, true},
		{"text as photo", advisory.Request{Query: "rust", Image: []byte("not an image at all")}, false},
	}
	v := NewRequestValidator(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			err := v.Execute(middleware.NewContext(context.Background(), tt.req), func(*middleware.Context) error {
				called = true
				return nil
			})
			assert.Equal(t, tt.valid, called)
			if !tt.valid {
				assert.ErrorIs(t, err, agerrors.ErrInvalidInput)
			}
		})
	}
}

func TestRequestValidatorImageLimit(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	err := NewRequestValidator(16).Validate(middleware.NewContext(context.Background(), advisory.Request{Query: "rust", Image: png}))
	assert.ErrorContains(t, err, "limit is 16")
}
