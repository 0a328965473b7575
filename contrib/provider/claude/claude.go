package claude

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sweetpotato0/agri-advisor/gateway"
)

const name = "claude"

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       string(anthropic.ModelClaude3_5HaikuLatest),
		MaxTokens:   1024,
		Temperature: 0.2,
	}
}

// Provider is the tertiary advisory backend.
type Provider struct {
	config *Config
	client anthropic.Client
}

// New creates a new Claude provider using the official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = string(anthropic.ModelClaude3_5HaikuLatest)
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: anthropic.NewClient(options...),
	}
}

// Descriptor declares this provider for gateway selection.
func Descriptor(config *Config) gateway.Descriptor {
	return gateway.Descriptor{
		Tier:         gateway.TierTertiary,
		Name:         name,
		Credential:   config.APIKey,
		Capabilities: []gateway.Capability{gateway.CapVision},
		Factory:      func() (gateway.Backend, error) { return New(config), nil },
	}
}

// Name implements gateway.Backend
func (p *Provider) Name() string { return name }

// Generate implements gateway.Backend. Claude has no JSON response mode, so
// JSON requests get an explicit instruction appended to the system prompt.
func (p *Provider) Generate(ctx context.Context, req gateway.Request) (string, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, 2)
	if req.NeedsVision() {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(req.Image)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))

	maxTokens := p.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		MaxTokens: maxTokens,
	}

	system := req.System
	if req.JSON {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	params.Temperature = anthropic.Float(req.TemperatureOr(p.config.Temperature))

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &gateway.StatusError{Backend: name, StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("claude returned no text content")
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}
