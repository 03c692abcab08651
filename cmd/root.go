// Package cmd defines the CLI commands for the gradcafe-pipeline executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jhu-ep/gradcafe-pipeline/internal/archive"
	"github.com/jhu-ep/gradcafe-pipeline/internal/config"
	"github.com/jhu-ep/gradcafe-pipeline/internal/extract"
	collyfetcher "github.com/jhu-ep/gradcafe-pipeline/internal/fetcher/colly"
	"github.com/jhu-ep/gradcafe-pipeline/internal/loader"
	"github.com/jhu-ep/gradcafe-pipeline/internal/logging"
	"github.com/jhu-ep/gradcafe-pipeline/internal/normalize"
	"github.com/jhu-ep/gradcafe-pipeline/internal/pipeline"
	"github.com/jhu-ep/gradcafe-pipeline/internal/robots"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gradcafe-pipeline",
		Short: "Admissions data pipeline: scrape, clean, load, and serve.",
		Long: `gradcafe-pipeline pulls applicant entries from an admissions forum,
normalizes them into structured records, and loads them into Postgres with
first-write-wins semantics. The serve command exposes the pipeline as a
single background job behind a small dashboard API.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logger != nil {
				// Best effort; stderr sync failures are expected on some platforms.
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newPullCmd())
	cmd.AddCommand(newLoadCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildStore opens the Postgres-backed applicant store.
func buildStore(ctx context.Context) (*loader.Store, error) {
	store, err := loader.New(ctx, loader.Config{
		DSN:      cfg.Database.DSN,
		Table:    cfg.Database.Table,
		MaxConns: int32(cfg.Database.MaxOpenConns),
	})
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return store, nil
}

// buildOrchestrator wires the full scrape/clean/serialize/load pipeline.
func buildOrchestrator(store *loader.Store) (*pipeline.Orchestrator, error) {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   cfg.Timeout(),
	})

	var archiver pipeline.PageArchiver
	if cfg.Archive.Enabled {
		pages, err := archive.New(cfg.Archive.Dir)
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
		archiver = pages
	}

	orch, err := pipeline.New(pipeline.Deps{
		Fetcher:   fetcher,
		Policy:    robots.NewChecker(cfg.Scraper.RespectRobots, cfg.Scraper.UserAgent, cfg.Timeout(), logger),
		Extractor: extract.Segmenter{},
		Parser:    normalize.Parser{},
		Enricher:  normalize.NewEnricher(fetcher, cfg.Scraper.EnrichFields, logger),
		Loader:    store,
		Archive:   archiver,
		Logger:    logger,
	}, pipeline.Config{
		BaseURL:                cfg.Scraper.BaseURL,
		SurveyPath:             cfg.Scraper.SurveyPath,
		TargetRecords:          cfg.Scraper.TargetRecords,
		PageRetries:            cfg.Scraper.PageRetries,
		MaxConsecutiveFailures: cfg.Scraper.MaxConsecutiveFailures,
		Delay:                  cfg.Delay(),
		JSONLPath:              cfg.Output.JSONLPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	return orch, nil
}
