// Package cmd provides the CLI commands for hotelrag.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
	"github.com/Aman-CERP/hotelrag/internal/logging"
	"github.com/Aman-CERP/hotelrag/pkg/version"
)

// Persistent flags.
var (
	debugMode      bool
	configDir      string
	loggingCleanup func()
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hotelrag",
		Short: "Hybrid retrieval engine for hotel travel questions",
		Long: `hotelrag turns a traveller's question into a ranked, bounded context
block of hotels, reviews and visa facts.

Pattern rules route most questions; a language model is consulted only
when the rules are unsure. Results from vector indexes and structured
queries are fused, de-duplicated and trimmed to a token budget.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			teardown()
			return nil
		},
	}
	cmd.SetVersionTemplate("hotelrag version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.hotelrag/logs/")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory holding .hotelrag.yaml/.toml and .env")

	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads .env and configures logging.
func setup(_ *cobra.Command, _ []string) error {
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	if debugMode {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}
	return nil
}

func teardown() {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command and prints errors in CLI form.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), herrors.FormatForCLI(err))
	}
	teardown()
	return err
}
