package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/api"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/browser"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/config"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/health"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/metrics"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/outputs"
)

// serve runs the analysis endpoint and the optional operational surfaces
// until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	printBanner()

	logger := outputs.NewLogger(&cfg.Logging, os.Stdout)
	slog.SetDefault(logger.Slog())

	slog.Info("loaded configuration",
		"listen", fmt.Sprintf("%s:%d", cfg.Server.ListenAddress, cfg.Server.Port),
		"navigation_timeout", cfg.Browser.NavigationTimeout,
		"idle_event", cfg.Browser.IdleEvent,
		"headless", cfg.Browser.Headless)

	dispatcher := metrics.NewDispatcher()
	defer dispatcher.Close()

	dispatcher.RegisterOutput(logger)

	esOutput, err := outputs.NewElasticsearchOutput(ctx, &cfg.Elasticsearch)
	if err != nil {
		return fmt.Errorf("failed to create Elasticsearch output: %w", err)
	}
	if esOutput != nil {
		dispatcher.RegisterOutput(esOutput)
	}

	promOutput, err := outputs.NewPrometheusOutput(&cfg.Prometheus)
	if err != nil {
		return fmt.Errorf("failed to create Prometheus output: %w", err)
	}
	if promOutput != nil {
		dispatcher.RegisterOutput(promOutput)
	}

	snmpOutput, err := outputs.NewSNMPOutput(&cfg.SNMP)
	if err != nil {
		return fmt.Errorf("failed to create SNMP output: %w", err)
	}
	if snmpOutput != nil {
		dispatcher.RegisterOutput(snmpOutput)
	}

	healthServer, err := health.NewHealthServer(&health.Config{
		Enabled:                       cfg.Advanced.HealthCheckEnabled,
		Port:                          cfg.Advanced.HealthCheckPort,
		Path:                          cfg.Advanced.HealthCheckPath,
		ListenAddress:                 cfg.Advanced.HealthCheckListenAddress,
		MaxConsecutiveStartupFailures: cfg.Advanced.MaxConsecutiveStartupFailures,
	})
	if err != nil {
		return fmt.Errorf("failed to create health check server: %w", err)
	}
	if healthServer != nil {
		dispatcher.RegisterOutput(healthServer)
	}

	slog.Info("outputs enabled", "outputs", dispatcher.Outputs())

	hostname, _ := os.Hostname()
	metadata := models.RecordMetadata{
		Hostname:  hostname,
		Version:   version,
		UserAgent: cfg.Browser.UserAgent,
	}

	collector := browser.NewCollector(browser.NewChromeLauncher(&cfg.Browser), cfg.Browser.NavigationTimeout)
	handler := api.NewHandler(collector, dispatcher, metadata)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.ListenAddress, cfg.Server.Port),
		Handler:           api.NewRouter(handler, slog.Default(), cfg.Server.CORSAllowedOrigins),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("page performance analyzer listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down, waiting for in-flight analyses")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Outputs close (deferred) only after in-flight analyses have reported
	if err := g.Wait(); err != nil {
		slog.Error("server stopped with error", "error", err)
		return err
	}

	slog.Info("shutdown complete")
	return nil
}

func printBanner() {
	fmt.Println("╔════════════════════════════════════════════════════════════════╗")
	fmt.Println("║  Page Performance Analyzer                                     ║")
	fmt.Printf("║  Version: %-52s ║\n", version)
	fmt.Println("║  Browser load metrics over the Chrome DevTools Protocol        ║")
	fmt.Println("╚════════════════════════════════════════════════════════════════╝")
	fmt.Println()
}
