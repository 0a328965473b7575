// Package mcpserver exposes the advisory pipeline as MCP tools so assistants
// can ask for farm advice and field conditions.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/agri-advisor/advisory"
	"github.com/sweetpotato0/agri-advisor/environment"
	"github.com/sweetpotato0/agri-advisor/knowledge"
	"github.com/sweetpotato0/agri-advisor/middleware"
	"github.com/sweetpotato0/agri-advisor/pkg/logging"
)

// Client is the rate-limit key used for calls arriving over MCP.
const Client = "mcp"

// Deps are the services the tools call into.
type Deps struct {
	Pipeline    *advisory.Pipeline
	Chain       *middleware.Chain
	Environment advisory.EnvironmentSource
	Version     string
	Logger      *slog.Logger
}

type coordinates struct {
	Latitude  *float64 `json:"latitude,omitempty" jsonschema:"Field latitude in decimal degrees"`
	Longitude *float64 `json:"longitude,omitempty" jsonschema:"Field longitude in decimal degrees"`
}

func (c coordinates) resolve() (*environment.Coordinates, error) {
	if c.Latitude == nil && c.Longitude == nil {
		return nil, nil
	}
	if c.Latitude == nil || c.Longitude == nil {
		return nil, fmt.Errorf("latitude and longitude must be given together")
	}
	at := &environment.Coordinates{Latitude: *c.Latitude, Longitude: *c.Longitude}
	if err := at.Validate(); err != nil {
		return nil, err
	}
	return at, nil
}

// NewServer builds the MCP server with the advisory tools registered.
func NewServer(deps Deps) *mcp.Server {
	if deps.Chain == nil {
		deps.Chain = middleware.NewChain()
	}
	if deps.Logger == nil {
		deps.Logger = logging.WithComponent("mcp")
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "agri-advisor",
		Version: deps.Version,
		Title:   "Farm advisory tools",
	}, nil)

	addAdviceTool(server, deps)
	addEnvironmentTool(server, deps)
	addCropTool(server, deps)
	return server
}

func text(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

func addAdviceTool(server *mcp.Server, deps Deps) {
	type args struct {
		Query     string   `json:"query" jsonschema:"The farmer's question or description of the problem"`
		SessionID string   `json:"session_id,omitempty" jsonschema:"Optional session to reuse cached conditions and history"`
		Latitude  *float64 `json:"latitude,omitempty" jsonschema:"Field latitude in decimal degrees"`
		Longitude *float64 `json:"longitude,omitempty" jsonschema:"Field longitude in decimal degrees"`
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "farm_advice",
		Description: "Diagnose a crop problem and return grounded, structured advice",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, a args) (*mcp.CallToolResult, any, error) {
		query := strings.TrimSpace(a.Query)
		if query == "" {
			return nil, nil, fmt.Errorf("query is required")
		}
		at, err := coordinates{Latitude: a.Latitude, Longitude: a.Longitude}.resolve()
		if err != nil {
			return nil, nil, err
		}

		mc := middleware.NewContext(ctx, advisory.Request{Query: query, Location: at})
		mc.Client = Client
		mc.SessionID = a.SessionID
		if err := deps.Chain.Execute(mc, middleware.RunPipeline(deps.Pipeline)); err != nil {
			deps.Logger.Warn("farm_advice failed", "error", err)
			return nil, nil, err
		}

		resp := mc.Response
		if !resp.Validation.IsValid() {
			res := text(resp.Validation.ErrorMessage())
			res.IsError = true
			return res, nil, nil
		}
		return text(resp.AdviceText), resp, nil
	})
}

func addEnvironmentTool(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "environment_context",
		Description: "Return current weather and soil readings for a field, simulated when no live source answers",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, a coordinates) (*mcp.CallToolResult, any, error) {
		at, err := a.resolve()
		if err != nil {
			return nil, nil, err
		}
		env := deps.Environment.Fetch(ctx, at)
		body, err := json.Marshal(env)
		if err != nil {
			return nil, nil, fmt.Errorf("encode environment: %w", err)
		}
		return text(string(body)), nil, nil
	})
}

func addCropTool(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest_crops",
		Description: "Rank crops that suit the soil and weather at a field",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, a coordinates) (*mcp.CallToolResult, any, error) {
		at, err := a.resolve()
		if err != nil {
			return nil, nil, err
		}
		env := deps.Environment.Fetch(ctx, at)
		crops := knowledge.SuggestCrops(knowledge.Conditions{
			SoilType:     env.Soil.SoilType,
			TemperatureC: env.Weather.TemperatureC,
			Raining:      env.Weather.Rainfall() > 0 || environment.IsHeavyRainAlert(env.Weather.WeatherAlert),
		})
		return text(strings.Join(crops, ", ")), nil, nil
	})
}
