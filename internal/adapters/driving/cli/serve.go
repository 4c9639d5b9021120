package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driving/mcp"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driving"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
)

// defaultServeAddr is used when neither --addr nor the config sets one.
const defaultServeAddr = ":9464"

var (
	serveAddr string
	serveMCP  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine as a service",
	Long: `Runs the engine until interrupted:

  - consumes the ingestion, update and deletion topics and applies them
  - serves /metrics (Prometheus) and /health over HTTP
  - with --mcp, serves the MCP endpoint at /mcp on the same address

Events published by this process are skipped when they come back.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check backend connectivity",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default from metrics.addr)")
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", false, "serve MCP over HTTP at /mcp")
	rootCmd.AddCommand(serveCmd, healthCmd)
}

// newServeMux builds the HTTP routes for serve.
func newServeMux(health driving.HealthService, metrics http.Handler, mcpHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	if health != nil {
		mux.HandleFunc("/health", healthHandler(health))
	}
	if mcpHandler != nil {
		mux.Handle("/mcp", mcpHandler)
	}
	return mux
}

// healthHandler reports backend health; unhealthy is a 503.
func healthHandler(h driving.HealthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := h.Check(r.Context())

		status := http.StatusOK
		if report.Status == domain.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := requireRAG(); err != nil {
		return err
	}
	ctx := cmd.Context()

	if startConsumers != nil {
		if err := startConsumers(ctx); err != nil {
			return fmt.Errorf("start consumers: %w", err)
		}
		logger.Info("event consumers started")
	} else {
		logger.Info("events disabled, not consuming topics")
	}

	var mcpHandler http.Handler
	if serveMCP {
		server, err := mcp.NewServer(ragService, version)
		if err != nil {
			return err
		}
		mcpHandler = server.Handler()
	}

	addr := serveAddr
	if addr == "" {
		addr = listenAddr
	}
	if addr == "" {
		addr = defaultServeAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newServeMux(healthService, metricsHandler, mcpHandler),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	cmd.Printf("Serving on %s (Ctrl+C to stop)\n", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	if healthService == nil {
		return errors.New("health service not configured")
	}

	report := healthService.Check(cmd.Context())
	cmd.Printf("Status: %s\n", report.Status)
	for _, name := range slices.Sorted(maps.Keys(report.Services)) {
		c := report.Services[name]
		if c.Error != "" {
			cmd.Printf("  %-15s %s (%s)\n", name, c.Status, c.Error)
			continue
		}
		cmd.Printf("  %-15s %s\n", name, c.Status)
	}

	if report.Status == domain.StatusUnhealthy {
		return errors.New("engine is unhealthy")
	}
	return nil
}
