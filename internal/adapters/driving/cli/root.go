// Package cli provides the ragengine command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driving"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Command annotations controlling what setup a command needs.
const (
	// annotationNoEngine marks commands that only need the config store.
	annotationNoEngine = "ragengine/no-engine"
	// annotationStandalone marks commands that need nothing.
	annotationStandalone = "ragengine/standalone"
)

// Services holds what the commands run against.
type Services struct {
	RAG    driving.RAGService
	Health driving.HealthService

	// Normalisers extracts text from ingested files. Optional; without it
	// files are read as plain text.
	Normalisers driven.NormaliserRegistry

	// StartConsumers starts inbound event consumers. Optional.
	StartConsumers func(ctx context.Context) error
	// Metrics serves the metrics endpoint. Optional.
	Metrics http.Handler
	// ListenAddr is the default HTTP address for serve.
	ListenAddr string
	// Reload re-reads the config store and applies changed tunables. Optional.
	Reload func() error
	// Close releases the engine.
	Close func(ctx context.Context) error
}

// Wiring builds the services on demand. Set by main before Execute.
type Wiring struct {
	// OpenConfig opens the config store at path; empty means the default location.
	OpenConfig func(path string) (driven.ConfigStore, error)
	// Start builds the engine from the config store.
	Start func(ctx context.Context, store driven.ConfigStore) (*Services, error)
}

var (
	ragService         driving.RAGService
	healthService      driving.HealthService
	configStore        driven.ConfigStore
	normaliserRegistry driven.NormaliserRegistry
	startConsumers     func(ctx context.Context) error
	metricsHandler     http.Handler
	listenAddr         string
	reloadConfig       func() error
	closeServices      func(ctx context.Context) error

	wiring *Wiring
)

// Persistent flags.
var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "ragengine",
	Short: "Retrieval-augmented document engine",
	Long: `ragengine ingests documents, splits them into chunks, embeds them and
serves semantic search over the result.

Documents are stored in a document store, their chunks in a vector index.
Search results and documents are cached, and every change is published as an
event that other ragengine processes can consume.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.ragengine/config.toml)")
}

// SetWiring sets how the commands build their services.
func SetWiring(w *Wiring) {
	wiring = w
}

// SetServices installs ready-made services, bypassing Wiring.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	ragService = s.RAG
	healthService = s.Health
	normaliserRegistry = s.Normalisers
	startConsumers = s.StartConsumers
	metricsHandler = s.Metrics
	listenAddr = s.ListenAddr
	reloadConfig = s.Reload
	closeServices = s.Close
}

// SetConfigStore installs the config store used by the config commands.
func SetConfigStore(store driven.ConfigStore) {
	configStore = store
}

// Execute runs the root command and releases the services afterwards.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if closeServices != nil {
		if cerr := closeServices(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("shutdown: %v", cerr)
		}
		closeServices = nil
	}
	return err
}

// setup opens the config store and starts the engine as the command requires.
func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if wiring == nil || standalone(cmd) {
		return nil
	}

	if configStore == nil {
		store, err := wiring.OpenConfig(configPath)
		if err != nil {
			return fmt.Errorf("open config: %w", err)
		}
		configStore = store
	}

	if cmd.Annotations[annotationNoEngine] != "" || ragService != nil {
		return nil
	}

	s, err := wiring.Start(cmd.Context(), configStore)
	if err != nil {
		return err
	}
	SetServices(s)
	return nil
}

// standalone reports whether cmd runs without config or engine.
func standalone(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationStandalone] != "" {
			return true
		}
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}

// requireRAG returns an error when no RAG service is configured.
func requireRAG() error {
	if ragService == nil {
		return errors.New("rag service not configured")
	}
	return nil
}
