package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jhu-ep/gradcafe-pipeline/internal/pipeline"
)

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <records.jsonl>",
		Short: "Load a JSONL records file into the store",
		Long: `Reads line-delimited JSON records produced by a prior run and loads
them into Postgres. Records whose URL is already present are silent no-ops,
so reloading the same file is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: runLoad,
	}
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records, err := pipeline.ReadRecords(args[0])
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}

	store, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	inserted, err := store.Load(ctx, records)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	total, err := store.CountRows(ctx)
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}

	logger.Info("load finished",
		zap.Int("records_read", len(records)),
		zap.Int64("rows_inserted", inserted),
		zap.Int64("rows_total", total),
	)
	return nil
}
