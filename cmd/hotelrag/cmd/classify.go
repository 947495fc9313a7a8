package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/output"
)

func newClassifyCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "classify <text...>",
		Short: "Show the intent and entities routed for a question",
		Long: `Classify a question without touching any store. Each decision is shown
with its provenance: baseline (rules), llm (oracle) or hybrid (both agreed).`,
		Example: `  hotelrag classify "hotels in pariss for families"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rec := diag.NewRecorder()
			c := a.pipeline.Classify(ctx, joinArgs(args), diag.Multi(rec, diag.NewLogSink(a.logger)))

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(c)
			}

			i := c.Intent
			out.KeyValue("Intent", i.Intent)
			out.KeyValue("Source", i.Source)
			out.KeyValue("Confidence", fmt.Sprintf("%.2f (%s)", i.Confidence, i.Tier))
			out.KeyValue("Entities", entitySummary(c.Entities.Entities.Params()))
			out.KeyValue("Entity source", c.Entities.Source)
			for _, m := range c.Matches {
				out.KeyValue("Resolved", fmt.Sprintf("%q -> %q (%s, %.2f)", m.Raw, m.Candidate, m.Method, m.Ratio))
			}
			for _, e := range rec.Events() {
				out.Dim(fmt.Sprintf("%s: %s", e.Kind, e.Message))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// entitySummary renders params as sorted key=value pairs.
func entitySummary(params map[string]any) string {
	if len(params) == 0 {
		return "(none)"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, " ")
}
