package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/browser"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/config"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/outputs"
)

var version = "1.0.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:     "page-performance-analyzer",
	Short:   "Measure web page load performance with headless Chrome",
	Version: version,
	Long: `Page Performance Analyzer loads a URL in a fresh headless Chrome instance,
waits for the network to go idle and reports paint, timing and resource metrics
read over the Chrome DevTools Protocol.

Without a subcommand it serves POST /analyze over HTTP.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Analyze a single URL and print the report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := outputs.NewLogger(&cfg.Logging, os.Stderr)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		collector := browser.NewCollector(browser.NewChromeLauncher(&cfg.Browser), cfg.Browser.NavigationTimeout)
		report, err := collector.Analyze(ctx, args[0])
		if err != nil {
			logger.Slog().Error("analysis failed", "url", args[0], "error_type", browser.CategorizeError(err), "error", err)
			writeOutput(cmd, models.ErrorResponse{Error: err.Error()})
			return fmt.Errorf("analysis failed")
		}

		writeOutput(cmd, report)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML configuration file (default: $CONFIG_FILE)")
	rootCmd.AddCommand(analyzeCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the --config file, falling back to CONFIG_FILE, then the
// environment. Defaults apply when neither names a file.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func writeOutput(cmd *cobra.Command, v any) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
