package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/sweetpotato0/agri-advisor/gateway"
)

const name = "openai"

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       string(openai.ChatModelGPT4oMini),
		MaxTokens:   1024,
		Temperature: 0.2,
	}
}

// Provider is the secondary advisory backend.
type Provider struct {
	config *Config
	client openai.Client
}

// New creates a new OpenAI provider. SDK retries are disabled; the gateway
// owns the retry policy.
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = string(openai.ChatModelGPT4oMini)
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
		client: openai.NewClient(options...),
	}
}

// Descriptor declares this provider for gateway selection.
func Descriptor(config *Config) gateway.Descriptor {
	return gateway.Descriptor{
		Tier:         gateway.TierSecondary,
		Name:         name,
		Credential:   config.APIKey,
		Capabilities: []gateway.Capability{gateway.CapJSON, gateway.CapVision},
		Factory:      func() (gateway.Backend, error) { return New(config), nil },
	}
}

// Name implements gateway.Backend
func (p *Provider) Name() string { return name }

// Generate implements gateway.Backend
func (p *Provider) Generate(ctx context.Context, req gateway.Request) (string, error) {
	if p.config.APIKey == "" {
		return "", fmt.Errorf("openai API key not configured")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	if req.NeedsVision() {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
		messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(req.Prompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
		}))
	} else {
		messages = append(messages, openai.UserMessage(req.Prompt))
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.config.Model),
		Messages: messages,
	}

	params.Temperature = openai.Float(req.TemperatureOr(p.config.Temperature))

	maxTokens := p.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(maxTokens)
	}

	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai returned empty content")
	}
	return text, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &gateway.StatusError{Backend: name, StatusCode: apiErr.StatusCode, Err: err}
	}
	return fmt.Errorf("openai API error: %w", err)
}
