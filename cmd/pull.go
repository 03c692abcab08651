package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Run one scrape, clean, serialize, load pass",
		Long: `Runs the full pipeline once in the foreground: checks the site policy,
paginates the listing, normalizes and enriches entries, writes the JSONL
intermediate file, and loads the records into Postgres.`,
		RunE: runPull,
	}
}

func runPull(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	orch, err := buildOrchestrator(store)
	if err != nil {
		return err
	}

	report, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("pull run: %w", err)
	}

	logger.Info("pull finished",
		zap.Int("pages_fetched", report.PagesFetched),
		zap.Int("pages_abandoned", report.PagesAbandoned),
		zap.Int("entries_extracted", report.EntriesExtracted),
		zap.Int("records_parsed", report.RecordsParsed),
		zap.Int64("rows_inserted", report.RecordsInserted),
		zap.Int64("rows_total", report.TotalRows),
	)
	return nil
}
