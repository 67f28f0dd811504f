// Command fraudlens explains fraud model output for analysts.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/opensource-finance/fraudlens/internal/config"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	configPath string
	verbose    bool

	cfg *domain.Config
)

var rootCmd = &cobra.Command{
	Use:   "fraudlens",
	Short: "Explain fraud model output with rules, narratives and feature attribution",
	Long: `fraudlens turns scored transactions into analyst-readable explanations.

Each record is checked against a fixed rule vocabulary, described in plain
language by a text-generation model when it is suspicious, and merged with
the top contributing features from an external attribution run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		setupLogger(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, explainCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fraudlens %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}

// setupLogger installs the default slog logger. Logs go to stderr so the
// explain command can write results to stdout.
func setupLogger(cfg *domain.Config) {
	opts := &slog.HandlerOptions{Level: config.LogLevel(cfg)}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
