package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
	"github.com/Aman-CERP/hotelrag/internal/hydrate"
	"github.com/Aman-CERP/hotelrag/internal/ingest"
	"github.com/Aman-CERP/hotelrag/internal/output"
	"github.com/Aman-CERP/hotelrag/internal/preflight"
	"github.com/Aman-CERP/hotelrag/internal/structured"
)

func newIngestCmd() *cobra.Command {
	var (
		kind string
		file string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load hotels, reviews or visa rules into the local stores",
		Long: `Read JSON Lines records, embed them, and write them to the vector index,
the record store and the structured catalog under the data directory.

Only one ingest may run per data directory at a time.`,
		Example: `  hotelrag ingest --type hotel --file hotels.jsonl
  hotelrag ingest --type review --file reviews.jsonl
  hotelrag ingest --type visa --file visa.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, kind, file)
		},
	}

	cmd.Flags().StringVarP(&kind, "type", "t", "", "Record type: "+strings.Join(ingest.Kinds(), ", "))
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON Lines input file")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runIngest(cmd *cobra.Command, kind, file string) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	docs, err := ingest.ReadFile(file)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		return herrors.New(herrors.ErrCodeIngestFailed, "create data directory", err)
	}

	logger := slog.Default()
	embedder, err := newEmbedder(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	checks := preflight.New(preflight.WithEmbedder(embedder)).RunAll(ctx, cfg.Store.DataDir)
	for _, r := range checks {
		if r.Status != preflight.StatusPass {
			out.Warningf("%s: %s", r.Name, r.Message)
		}
	}
	if err := preflight.Err(checks); err != nil {
		return err
	}

	records, err := hydrate.OpenSQLite(cfg.SQLitePath())
	if err != nil {
		return err
	}
	defer func() { _ = records.Close() }()

	catalog, err := structured.OpenBleve(cfg.BlevePath(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = catalog.Close() }()

	in, err := ingest.New(embedder, records, catalog, cfg.Store.DataDir, ingest.Options{
		BatchSize: cfg.Embeddings.BatchSize,
		Workers:   cfg.Embeddings.Workers,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer in.Release()

	out.Statusf("📥", "Ingesting %d %s records from %s", len(docs), kind, file)
	stats, err := in.Ingest(ctx, kind, docs)
	if err != nil {
		return err
	}

	out.Successf("Ingested %d records into index %q", stats.Records, stats.Index)
	out.KeyValue("Vectors", stats.Vectors)
	if stats.Skipped > 0 {
		out.Warningf("Skipped %d records missing an id or reference", stats.Skipped)
	}
	out.KeyValue("Duration", stats.Duration.Round(time.Millisecond))
	out.Dim(fmt.Sprintf("data: %s", cfg.Store.DataDir))
	return nil
}
