package errors

import "errors"

// Sentinel errors shared across the advisory packages.
var (
	// ErrInvalidInput indicates that farmer input failed validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidValidationResult is returned when a validation result would
	// carry a validity flag that contradicts its error message
	ErrInvalidValidationResult = errors.New("validation result is inconsistent")

	// ErrNoBackendAvailable indicates that no model backend has a credential configured
	ErrNoBackendAvailable = errors.New("no model backend available")

	// ErrBackendsExhausted indicates that every configured backend failed
	ErrBackendsExhausted = errors.New("all model backends failed")

	// ErrMalformedOutput indicates a backend returned output that could not be decoded
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrSessionNotFound indicates the requested session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrNodeNotFound indicates a graph edge points at an unknown node
	ErrNodeNotFound = errors.New("graph node not found")

	// ErrMaxVisits indicates a graph node was visited more often than allowed
	ErrMaxVisits = errors.New("graph node exceeded max visits")

	// ErrRateLimited indicates a local rate limiter rejected the call
	ErrRateLimited = errors.New("rate limit exceeded")
)
