package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sweetpotato0/agri-advisor/gateway"
)

const name = "gemini"

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	Endpoint    string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		MaxTokens:   1024,
		Temperature: 0.2,
	}
}

// Provider is the primary advisory backend. The SDK client is created on the
// first call and reused.
type Provider struct {
	config *Config

	once    sync.Once
	client  *genai.Client
	initErr error
}

// New creates a new Gemini provider
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}
	return &Provider{config: config}
}

// Descriptor declares this provider for gateway selection.
func Descriptor(config *Config) gateway.Descriptor {
	return gateway.Descriptor{
		Tier:         gateway.TierPrimary,
		Name:         name,
		Credential:   config.APIKey,
		Capabilities: []gateway.Capability{gateway.CapJSON, gateway.CapVision},
		Factory:      func() (gateway.Backend, error) { return New(config), nil },
	}
}

// Name implements gateway.Backend
func (p *Provider) Name() string { return name }

func (p *Provider) getClient(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		if p.config.APIKey == "" {
			p.initErr = fmt.Errorf("gemini API key not configured")
			return
		}
		opts := []option.ClientOption{option.WithAPIKey(p.config.APIKey)}
		if p.config.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(p.config.Endpoint))
		}
		p.client, p.initErr = genai.NewClient(context.WithoutCancel(ctx), opts...)
	})
	return p.client, p.initErr
}

// Close releases the SDK client.
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Generate implements gateway.Backend
func (p *Provider) Generate(ctx context.Context, req gateway.Request) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	model := client.GenerativeModel(p.config.Model)
	model.SetTemperature(float32(req.TemperatureOr(float64(p.config.Temperature))))
	maxTokens := p.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(maxTokens)
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	if req.NeedsVision() {
		parts = append(parts, genai.ImageData(imageFormat(req.ImageMIME), req.Image))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classify(err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned empty content")
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	return strings.TrimSpace(b.String())
}

func imageFormat(mime string) string {
	switch strings.ToLower(mime) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	default:
		return "jpeg"
	}
}

// classify maps REST and gRPC quota errors onto a 429 status error.
func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &gateway.StatusError{Backend: name, StatusCode: gErr.Code, Err: err}
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return &gateway.StatusError{Backend: name, StatusCode: http.StatusTooManyRequests, Err: err}
	}
	return fmt.Errorf("gemini API error: %w", err)
}
