package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hotelrag/internal/domain"
	"github.com/Aman-CERP/hotelrag/internal/mcp"
	"github.com/Aman-CERP/hotelrag/internal/pipeline"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over the Model Context Protocol",
		Long: `Start an MCP server exposing the hotel_context, classify_query and
index_status tools and the diagnostics resource.

Stdout carries JSON-RPC only. Use --debug to log to a file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, appOptions{retrieval: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			srv, err := mcp.NewServer(recordingEngine{a.pipeline, a}, a.indexes, a.logger)
			if err != nil {
				return err
			}

			if cfg.Reference.Watch && cfg.Reference.Path != "" {
				go func() {
					if err := domain.Watch(ctx, cfg.Reference.Path, a.reference, domain.DefaultReloadDebounce, a.logger); err != nil {
						a.logger.Warn("reference_watch_stopped", "error", err.Error())
					}
				}()
			}

			return srv.Serve(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio")

	return cmd
}

// recordingEngine persists diagnostic counts for every served query.
type recordingEngine struct {
	*pipeline.Pipeline
	app *app
}

func (e recordingEngine) Run(ctx context.Context, query string) (pipeline.Result, error) {
	res, err := e.Pipeline.Run(ctx, query)
	if err == nil {
		e.app.recordDiagnostics(ctx, res.Diagnostics)
	}
	return res, err
}
