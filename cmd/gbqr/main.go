// Command gbqr produces a quantile forecast table for one reference date
// from local surveillance snapshots.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/epiforecast/gbqr"
	"github.com/epiforecast/gbqr/panel"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type config struct {
	Team      string `default:"epiforecast"`
	Model     string `default:"gbqr"`
	OutputDir string `split_words:"true" default:"output"`

	PrimarySource string `split_words:"true" default:"mchub"`
	NumBags       int    `split_words:"true" default:"100"`
	Workers       int    `default:"0"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		refDateStr    string
		primaryPath   string
		crosswalkPath string
		supplPaths    []string
		locations     []string
		perLocation   bool
		plotPath      string
		profileCPU    bool
	)

	cmd := &cobra.Command{
		Use:           "gbqr",
		Short:         "bagged quantile-regression influenza forecasts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config
			if err := envconfig.Process("gbqr", &cfg); err != nil {
				return fmt.Errorf("unable to read environment configuration, %w", err)
			}

			if profileCPU {
				defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
			}

			log, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("unable to initialize logger, %w", err)
			}
			defer log.Sync()

			var refDate time.Time
			if refDateStr != "" {
				refDate, err = time.Parse("2006-01-02", refDateStr)
				if err != nil {
					return fmt.Errorf("invalid reference date %q, %w", refDateStr, err)
				}
			}

			var crosswalk *panel.Crosswalk
			if crosswalkPath != "" {
				crosswalk, err = panel.LoadCrosswalk(crosswalkPath)
				if err != nil {
					return err
				}
			}

			primary := &panel.PrimaryCSV{
				SourceName: cfg.PrimarySource,
				Path:       primaryPath,
				Crosswalk:  crosswalk,
			}
			var supplementary []panel.SourceProvider
			for _, arg := range supplPaths {
				name, path, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("invalid supplementary source %q, want name=path", arg)
				}
				supplementary = append(supplementary, newSupplementary(name, path))
			}

			opt := gbqr.NewDefaultOptions()
			opt.Team = cfg.Team
			opt.Model = cfg.Model
			opt.OutputDir = cfg.OutputDir
			opt.Locations = locations
			opt.PerLocation = perLocation
			opt.Bagging.NumBags = cfg.NumBags
			opt.Bagging.Workers = cfg.Workers

			p, err := gbqr.New(opt, primary, supplementary, log)
			if err != nil {
				return err
			}
			res, err := p.Run(cmd.Context(), refDate)
			if err != nil {
				return err
			}
			if plotPath != "" {
				if err := res.PlotForecast(plotPath); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&refDateStr, "ref-date", "", "reference date YYYY-MM-DD, defaults to today")
	cmd.Flags().StringVar(&primaryPath, "primary", "", "path to the primary source snapshot CSV")
	cmd.Flags().StringVar(&crosswalkPath, "crosswalk", "", "path to the location crosswalk CSV")
	cmd.Flags().StringArrayVar(&supplPaths, "supplementary", nil, "supplementary source as name=path, repeatable")
	cmd.Flags().StringSliceVar(&locations, "locations", nil, "location slugs to forecast")
	cmd.Flags().BoolVar(&perLocation, "per-location", false, "fit a separate ensemble per location")
	cmd.Flags().StringVar(&plotPath, "plot", "", "write an html fan chart to this path")
	cmd.Flags().BoolVar(&profileCPU, "profile", false, "write a cpu profile to the working directory")
	cmd.MarkFlagRequired("primary")
	cmd.MarkFlagRequired("locations")

	return cmd
}

func newSupplementary(name, path string) panel.SourceProvider {
	switch name {
	case "ilinet":
		return panel.NewILINet(path)
	case "flusurv":
		return panel.NewFluSurv(path)
	case "nhsn":
		return panel.NewNHSN(path)
	case "nssp":
		return panel.NewNSSP(path)
	}
	return &panel.SupplementaryCSV{SourceName: name, Path: path}
}
