package validator

import (
	"fmt"
	"net/http"
	"strings"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/middleware"
)

// DefaultMaxImageBytes bounds uploaded field photos.
const DefaultMaxImageBytes = 5 << 20

// RequestValidator rejects malformed requests before they reach the
// pipeline. Whether a query makes sense is left to the pipeline.
type RequestValidator struct {
	maxImageBytes int
}

// NewRequestValidator creates a validation middleware. maxImageBytes <= 0
// uses DefaultMaxImageBytes.
func NewRequestValidator(maxImageBytes int) *RequestValidator {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &RequestValidator{maxImageBytes: maxImageBytes}
}

// Name returns the middleware name
func (m *RequestValidator) Name() string {
	return "RequestValidator"
}

// Execute validates the request.
func (m *RequestValidator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if err := m.Validate(ctx); err != nil {
		return fmt.Errorf("%w: %w", agerrors.ErrInvalidInput, err)
	}
	return next(ctx)
}

// Validate checks the request shape.
func (m *RequestValidator) Validate(ctx *middleware.Context) error {
	req := ctx.Request
	if strings.TrimSpace(req.Query) == "" && (req.Input == nil || req.Input.IsZero()) {
		return fmt.Errorf("either a query or a structured farmer input is required")
	}
	if req.Location != nil {
		if err := req.Location.Validate(); err != nil {
			return err
		}
	}
	if n := len(req.Image); n > 0 {
		if n > m.maxImageBytes {
			return fmt.Errorf("image is %d bytes, limit is %d", n, m.maxImageBytes)
		}
		switch mime := http.DetectContentType(req.Image); mime {
		case "image/jpeg", "image/png", "image/webp":
		default:
			return fmt.Errorf("unsupported image type %s", mime)
		}
	}
	return nil
}
