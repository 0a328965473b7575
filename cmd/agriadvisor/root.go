package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/agri-advisor/bootstrap"
	"github.com/sweetpotato0/agri-advisor/config"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "agriadvisor",
		Short:         "Grounded crop advice from weather, soil and model backends",
		Version:       bootstrap.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default is ./agri-advisor.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")
	cmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	cmd.AddCommand(newServeCmd(opts), newMCPCmd(opts), newAdviseCmd(opts))
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func (o *rootOptions) app(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	return app, nil
}
