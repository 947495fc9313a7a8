package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/domain"
	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
	"github.com/Aman-CERP/hotelrag/internal/output"
)

func newResolveCmd() *cobra.Command {
	var (
		domainName string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <value...>",
		Short: "Resolve a misspelled value against reference data",
		Example: `  hotelrag resolve --domain city pariss
  hotelrag resolve --domain country "united states"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ok := domain.ParseDomain(domainName)
			if !ok {
				return herrors.ValidationError(fmt.Sprintf("unknown domain %q", domainName), nil).
					WithSuggestion("use --domain city, country or traveller_type")
			}

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

			value, match := a.resolver.Normalize(ctx, joinArgs(args), d, diag.NewLogSink(a.logger))

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(struct {
					Value string `json:"value"`
					Match any    `json:"match"`
				}{value, match})
			}
			out.KeyValue("Value", value)
			out.KeyValue("Method", match.Method)
			out.KeyValue("Ratio", fmt.Sprintf("%.2f", match.Ratio))
			if match.Validated {
				out.Dim("confirmed by oracle")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&domainName, "domain", "d", string(domain.DomainCity), "Value domain: city, country or traveller_type")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
