package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/agri-advisor/advisory"
	"github.com/sweetpotato0/agri-advisor/bootstrap"
	"github.com/sweetpotato0/agri-advisor/environment"
	"github.com/sweetpotato0/agri-advisor/middleware"
)

type adviseOptions struct {
	lat, lon       float64
	image          string
	soilType, crop string
	action, place  string
	asJSON         bool
}

func newAdviseCmd(root *rootOptions) *cobra.Command {
	opts := &adviseOptions{}
	cmd := &cobra.Command{
		Use:   "advise [question]",
		Short: "Run one query through the advisory pipeline and print the advice",
		Example: `  agriadvisor advise "My tomato leaves are turning yellow" --lat 18.52 --lon 73.85
  agriadvisor advise --soil clay --crop Rice --action "flooded the field" --place Cuttack`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(cmd, strings.TrimSpace(strings.Join(args, " ")))
			if err != nil {
				return err
			}

			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Log.File == "" {
				cfg.Log.File = "stderr"
			}
			ctx := cmd.Context()
			app, err := bootstrap.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("start: %w", err)
			}
			defer app.Close(context.WithoutCancel(ctx))

			mc := middleware.NewContext(ctx, req)
			mc.Client = "cli"
			if err := app.Chain.Execute(mc, middleware.RunPipeline(app.Pipeline)); err != nil {
				return err
			}
			return printResponse(cmd, *mc.Response, opts.asJSON)
		},
	}
	f := cmd.Flags()
	f.Float64Var(&opts.lat, "lat", 0, "field latitude")
	f.Float64Var(&opts.lon, "lon", 0, "field longitude")
	f.StringVar(&opts.image, "image", "", "path to a photo of the field")
	f.StringVar(&opts.soilType, "soil", "", "soil type for a structured report")
	f.StringVar(&opts.crop, "crop", "", "crop for a structured report")
	f.StringVar(&opts.action, "action", "", "what the farmer did or observed")
	f.StringVar(&opts.place, "place", "", "village or district name")
	f.BoolVar(&opts.asJSON, "json", false, "print the full response as JSON")
	cmd.MarkFlagsRequiredTogether("lat", "lon")
	return cmd
}

func (o *adviseOptions) request(cmd *cobra.Command, query string) (advisory.Request, error) {
	req := advisory.Request{Query: query}
	if o.soilType != "" || o.crop != "" || o.action != "" || o.place != "" {
		in, err := advisory.NewFarmerInput(o.soilType, o.crop, o.action, o.place)
		if err != nil {
			return req, err
		}
		req.Input = &in
	}
	if req.Query == "" && req.Input == nil {
		return req, fmt.Errorf("a question or a structured report (--soil --crop --action --place) is required")
	}
	if cmd.Flags().Changed("lat") {
		req.Location = &environment.Coordinates{Latitude: o.lat, Longitude: o.lon}
	}
	if o.image != "" {
		img, err := os.ReadFile(o.image)
		if err != nil {
			return req, fmt.Errorf("read image: %w", err)
		}
		req.Image = img
	}
	return req, nil
}

func printResponse(cmd *cobra.Command, resp advisory.Response, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	if !resp.Validation.IsValid() {
		return fmt.Errorf("query rejected: %s", resp.Validation.ErrorMessage())
	}
	fmt.Fprintln(out, resp.AdviceText)
	for _, w := range resp.Validation.Warnings() {
		fmt.Fprintf(out, "\nnote: %s\n", w)
	}
	fmt.Fprintf(out, "\n(source: %s, weather: %s, soil: %s)\n",
		resp.Advice.Source, resp.Environment.Sources.Weather, resp.Environment.Sources.Soil)
	return nil
}
