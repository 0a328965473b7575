package enricher

import (
	"errors"
	"fmt"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/message"
	"github.com/sweetpotato0/agri-advisor/middleware"
	"github.com/sweetpotato0/agri-advisor/session"
)

// SessionEnricher attaches the session's cached environment and history to
// the request, and appends the exchange to the session afterwards.
type SessionEnricher struct {
	sessions *session.Manager
}

// NewSessionEnricher creates an enricher backed by sessions.
func NewSessionEnricher(sessions *session.Manager) *SessionEnricher {
	return &SessionEnricher{sessions: sessions}
}

// Name returns the middleware name
func (m *SessionEnricher) Name() string {
	return "SessionEnricher"
}

// Execute enriches calls that carry a session ID; others pass through.
func (m *SessionEnricher) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if ctx.SessionID == "" || m.sessions == nil {
		return next(ctx)
	}
	c := ctx.Context()

	if _, err := m.sessions.GetOrCreate(c, ctx.SessionID); err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	env, ok, err := m.sessions.Environment(c, ctx.SessionID, ctx.Request.Location)
	if err != nil {
		return fmt.Errorf("session environment: %w", err)
	}
	if ok {
		ctx.Request.Environment = &env
		// The cached context already reflects the location.
		ctx.Request.Location = nil
	}
	history, err := m.sessions.History(c, ctx.SessionID)
	if err != nil {
		return fmt.Errorf("session history: %w", err)
	}
	ctx.Request.History = history

	if err := next(ctx); err != nil {
		return err
	}

	resp := ctx.Response
	if resp == nil || resp.AdviceText == "" {
		return nil
	}
	query := ctx.Request.Query
	if query == "" && ctx.Request.Input != nil {
		query = ctx.Request.Input.Query()
	}
	err = m.sessions.Append(c, ctx.SessionID,
		message.NewMessage(message.RoleUser, query),
		message.NewMessage(message.RoleAssistant, resp.AdviceText),
	)
	if resp.Keywords.Crop != "" && err == nil {
		err = m.sessions.SetCrop(c, ctx.SessionID, resp.Keywords.Crop)
	}
	if err != nil && !errors.Is(err, agerrors.ErrSessionNotFound) {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}
