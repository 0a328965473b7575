package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
)

// StructuredResult is a Result decoded into T. When the backend answered but
// the payload was unusable, Value holds the fallback and Degraded is set.
type StructuredResult[T any] struct {
	Result
	Value     T
	Degraded  bool
	DecodeErr error
}

// GenerateStructured asks gen for JSON and decodes it into T. check may reject
// a decoded value; both decode and check failures yield fallback instead of an
// error so a malformed stage output never aborts a request.
func GenerateStructured[T any](ctx context.Context, gen Generator, req Request, fallback T, check func(*T) error) StructuredResult[T] {
	req.JSON = true
	res := gen.Generate(ctx, req)
	out := StructuredResult[T]{Result: res, Value: fallback}
	if !res.OK() {
		return out
	}

	decoded, err := DecodeJSON[T](res.Text)
	if err == nil && check != nil {
		err = check(decoded)
	}
	if err != nil {
		out.Degraded = true
		out.DecodeErr = fmt.Errorf("%w: %w", agerrors.ErrMalformedOutput, err)
		return out
	}
	out.Value = *decoded
	return out
}

// DecodeJSON unmarshals model output into T after stripping code fences and
// any prose around the outermost JSON object.
func DecodeJSON[T any](raw string) (*T, error) {
	clean := sanitizeJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("decode JSON: empty output")
	}
	var out T
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return &out, nil
}

func sanitizeJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = trimmed[3:]
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimPrefix(trimmed, "JSON")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}
