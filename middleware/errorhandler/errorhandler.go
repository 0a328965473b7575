package errorhandler

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/sweetpotato0/agri-advisor/middleware"
	"github.com/sweetpotato0/agri-advisor/pkg/logging"
)

// ErrorHandlerFunc maps an error returned further down the chain.
type ErrorHandlerFunc func(error) error

// ErrorHandler recovers panics below it and passes errors through handler.
type ErrorHandler struct {
	handler ErrorHandlerFunc
	logger  *slog.Logger
}

// NewErrorHandler creates an error handling middleware. handler may be nil.
func NewErrorHandler(handler ErrorHandlerFunc) *ErrorHandler {
	return &ErrorHandler{handler: handler, logger: logging.WithComponent("errorhandler")}
}

// Name returns the middleware name
func (m *ErrorHandler) Name() string {
	return "ErrorHandler"
}

// Execute runs next, converting a panic into an error.
func (m *ErrorHandler) Execute(ctx *middleware.Context, next middleware.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic in advisory call", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", r)
		}
		if err != nil && m.handler != nil {
			err = m.handler(err)
		}
	}()
	return next(ctx)
}
