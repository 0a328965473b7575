package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusError carries the HTTP status a backend reported. Providers wrap SDK
// errors in it so classification does not depend on any one SDK.
type StatusError struct {
	Backend    string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Backend, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err is a "too many requests" or "resource
// exhausted" condition.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		return true
	}

	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// rateLimitMarkers match SDK error text that lost its status code. A bare
// "429" is not enough: it also appears in ports and addresses.
var rateLimitMarkers = []string{
	"error 429",
	"status 429",
	"status code 429",
	"429 too many requests",
	"too many requests",
	"resource_exhausted",
}
