package advisory

import (
	"context"
	"fmt"
	"strings"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/gateway"
	"github.com/sweetpotato0/agri-advisor/message"
	"github.com/sweetpotato0/agri-advisor/prompt"
)

// ChatReply is one assistant turn.
type ChatReply struct {
	Text     string `json:"text"`
	Source   string `json:"source"`
	Degraded bool   `json:"degraded"`
}

// ChatService answers follow-up questions in a session.
type ChatService struct {
	advisor  *Advisor
	fallback Fallback
	cfg      *Config
}

// NewChatService creates a chat service that falls back to fb.
func NewChatService(gen gateway.Generator, fb Fallback, opts ...Option) *ChatService {
	return &ChatService{advisor: NewAdvisor(gen, opts...), fallback: fb, cfg: applyOptions(opts)}
}

// Reply answers the last user message in cc.History using the earlier
// messages as context.
func (c *ChatService) Reply(ctx context.Context, cc ChatContext) (ChatReply, error) {
	idx := message.LastIndex(cc.History, message.RoleUser)
	if idx < 0 || strings.TrimSpace(cc.History[idx].Content) == "" {
		return ChatReply{}, fmt.Errorf("%w: no user message to answer", agerrors.ErrInvalidInput)
	}
	last, earlier := cc.History[idx], cc.History[:idx]

	simulated := func() ChatReply {
		text := c.fallback.Chat(last.Content, cc)
		return ChatReply{Text: text, Source: "simulated", Degraded: true}
	}
	if c.advisor.gen == nil {
		return simulated(), nil
	}

	req, err := c.cfg.request(prompt.Advice, c.advisor.vars(adviceRequest{
		query:   last.Content,
		env:     cc.Environment,
		history: earlier,
	}, false))
	if err != nil {
		return ChatReply{}, err
	}
	res := c.advisor.gen.Generate(ctx, req)
	if !res.OK() || strings.TrimSpace(res.Text) == "" {
		if ctx.Err() != nil {
			return ChatReply{}, ctx.Err()
		}
		c.cfg.logger.Warn("chat falling back to simulator", "error", res.Err)
		return simulated(), nil
	}
	return ChatReply{Text: strings.TrimSpace(res.Text), Source: res.Backend}, nil
}
