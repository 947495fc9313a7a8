package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hotelrag/internal/config"
	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/hydrate"
	"github.com/Aman-CERP/hotelrag/internal/output"
	"github.com/Aman-CERP/hotelrag/internal/vector"
)

func newStatsCmd() *cobra.Command {
	var (
		jsonOutput bool
		days       int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store contents and diagnostic counts",
		Long: `Display the loaded vector indexes, record counts per entity type, and how
often each diagnostic kind was reported over recent days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stats, err := collectStats(cmd.Context(), cfg, days, time.Now())
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(stats)
			}
			printStats(out, stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days of diagnostics to include")

	return cmd
}

// StatsOutput is the JSON output of the stats command.
type StatsOutput struct {
	DataDir     string              `json:"data_dir"`
	Indexes     []vector.Descriptor `json:"indexes"`
	Records     map[string]int      `json:"records"`
	Days        int                 `json:"days"`
	Diagnostics map[string]int64    `json:"diagnostics"`
}

func collectStats(ctx context.Context, cfg *config.Config, days int, now time.Time) (StatsOutput, error) {
	if days < 1 {
		days = 1
	}
	out := StatsOutput{
		DataDir:     cfg.Store.DataDir,
		Days:        days,
		Records:     map[string]int{},
		Diagnostics: map[string]int64{},
	}

	indexes, err := vector.LoadDir(cfg.IndexDir())
	if err != nil {
		return out, err
	}
	out.Indexes = indexes.Descriptors()

	records, err := hydrate.OpenSQLite(cfg.SQLitePath())
	if err != nil {
		return out, err
	}
	defer func() { _ = records.Close() }()
	if out.Records, err = records.Counts(ctx); err != nil {
		return out, err
	}

	store, err := diag.OpenSQLite(diagPath(cfg))
	if err != nil {
		return out, err
	}
	defer func() { _ = store.Close() }()
	counts, err := store.Counts(ctx, now.AddDate(0, 0, -(days-1)), now)
	if err != nil {
		return out, err
	}
	for k, n := range counts {
		out.Diagnostics[string(k)] = n
	}
	return out, nil
}

func printStats(out *output.Writer, s StatsOutput) {
	out.Header("Indexes")
	if len(s.Indexes) == 0 {
		out.Dim("no indexes; run 'hotelrag ingest' first")
	}
	for _, d := range s.Indexes {
		out.KeyValue(d.Name, fmt.Sprintf("%d vectors, %d dims, %s refs", d.Count, d.Dimensions, d.EntityType))
	}
	out.Newline()

	out.Header("Records")
	for _, k := range sortedKeys(s.Records) {
		out.KeyValue(k, s.Records[k])
	}
	out.Newline()

	out.Header(fmt.Sprintf("Diagnostics (last %d days)", s.Days))
	if len(s.Diagnostics) == 0 {
		out.Dim("none reported")
	}
	for _, k := range sortedKeys(s.Diagnostics) {
		out.KeyValue(k, s.Diagnostics[k])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
