package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/sweetpotato0/agri-advisor/bootstrap"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the advisory tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// stdout carries the protocol, so logs must not go there.
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Log.File == "" {
				cfg.Log.File = "stderr"
			}
			if cfg.Telemetry.OTLPEndpoint == "" {
				cfg.Telemetry.Disable = true
			}
			app, err := bootstrap.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("start: %w", err)
			}
			defer app.Close(context.WithoutCancel(ctx))

			return app.MCPServer().Run(ctx, &mcp.StdioTransport{})
		},
	}
}
