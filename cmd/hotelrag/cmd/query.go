package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hotelrag/internal/output"
	"github.com/Aman-CERP/hotelrag/internal/pipeline"
)

func newQueryCmd() *cobra.Command {
	var (
		format  string
		limit   int
		explain bool
	)

	cmd := &cobra.Command{
		Use:   "query <text...>",
		Short: "Answer a travel question with ranked context",
		Long: `Route the question, search the vector indexes and the structured
catalog, and print the merged context block an answer generator would see.`,
		Example: `  hotelrag query "clean hotels in Paris for couples"
  hotelrag query --explain "do Indians need a visa for Japan"
  hotelrag query --format json "hotels in Sydney"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, joinArgs(args), format, limit, explain)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Vector results per query (default from config)")
	cmd.Flags().BoolVar(&explain, "explain", false, "Show routing decisions and ranked items")

	return cmd
}

func runQuery(cmd *cobra.Command, query, format string, limit int, explain bool) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q: must be text or json", format)
	}
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if limit > 0 {
		cfg.Search.Limit = limit
	}

	a, err := newApp(ctx, cfg, appOptions{retrieval: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	res, err := a.pipeline.Run(ctx, query)
	if err != nil {
		return err
	}
	a.recordDiagnostics(ctx, res.Diagnostics)

	out := output.New(cmd.OutOrStdout())
	if format == "json" {
		return out.JSON(res)
	}
	printResult(out, res, explain)
	return nil
}

func printResult(out *output.Writer, res pipeline.Result, explain bool) {
	if explain {
		out.Header("Routing")
		out.KeyValue("Request", res.RequestID)
		out.KeyValue("Intent", fmt.Sprintf("%s (%s, %s)", res.Intent, res.IntentSource, res.IntentTier))
		out.KeyValue("Entities", fmt.Sprintf("%s (%s)", entitySummary(res.Entities.Params()), res.EntitySource))
		for _, m := range res.Matches {
			out.KeyValue("Resolved", fmt.Sprintf("%q -> %q (%s, %.2f)", m.Raw, m.Candidate, m.Method, m.Ratio))
		}
		out.KeyValue("Indexes", fmt.Sprintf("%v", res.Indexes))
		out.KeyValue("Candidates", len(res.Candidates))
		out.KeyValue("Rows", len(res.Rows))
		out.Newline()

		out.Header("Ranked items")
		for i, it := range res.Context.Items {
			line := fmt.Sprintf("%2d. %-24s %.3f  %s", i+1, it.Key, it.Score, it.Source)
			if i >= res.Context.Included {
				out.Dim(line + "  (over budget)")
				continue
			}
			out.Text(line)
		}
		out.Newline()
	}

	out.Header("Context")
	out.Code(res.Context.Text)

	for _, e := range res.Diagnostics {
		if e.Kind.Informational() {
			continue
		}
		if msg := e.Error(); msg != "" {
			out.Warningf("%s: %s: %s", e.Kind, e.Message, msg)
		} else {
			out.Warningf("%s: %s", e.Kind, e.Message)
		}
	}
	if explain {
		out.Dim(fmt.Sprintf("%d included, %d omitted, %s", res.Context.Included, res.Context.Omitted, res.Duration.Round(time.Millisecond)))
	}
}
