package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/azad25/erp-ai-copilot-sub000/internal/config"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Show or change configuration",
	Long:        `View the effective configuration and change values in the config file.`,
	Annotations: map[string]string{annotationNoEngine: "true"},
	RunE:        runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show the effective configuration",
	Long:        `Shows the configuration after defaults, the config file and environment overrides.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoEngine: "true"},
	RunE:        runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Writes a value to the config file. The resulting configuration must be valid.

Chunking, search and async threshold settings are picked up by a running
'ragengine watch'; other settings take effect on the next start.`,
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{annotationNoEngine: "true"},
	RunE:        runConfigSet,
}

var configUnsetCmd = &cobra.Command{
	Use:         "unset [key]",
	Short:       "Remove a value, restoring its default",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationNoEngine: "true"},
	RunE:        runConfigUnset,
}

var configKeysCmd = &cobra.Command{
	Use:         "keys",
	Short:       "List configuration keys",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationStandalone: "true"},
	Run: func(cmd *cobra.Command, _ []string) {
		for _, k := range config.Keys() {
			cmd.Println(k)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configKeysCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	cfg, err := config.Load(configStore)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cmd.Println("Current Configuration")
	cmd.Println("=====================")
	cmd.Printf("  File: %s\n", configStore.Path())
	cmd.Printf("  Data: %s\n", cfg.DataDir)
	cmd.Println()

	cmd.Println("[Chunking]")
	cmd.Printf("  Size: %d\n", cfg.Chunking.Size)
	cmd.Printf("  Overlap: %d\n", cfg.Chunking.Overlap)
	cmd.Println()

	cmd.Println("[Search]")
	cmd.Printf("  Max results: %d\n", cfg.Search.MaxResults)
	cmd.Printf("  Similarity threshold: %.2f\n", cfg.Search.SimilarityThreshold)
	cmd.Println()

	cmd.Println("[Ingest]")
	cmd.Printf("  Async threshold: %d chars\n", cfg.Ingest.AsyncThreshold)
	cmd.Printf("  Workers: %d\n", cfg.Ingest.Workers)
	cmd.Printf("  Backend timeout: %s\n", cfg.Ingest.Timeout)
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", cfg.Embedding.Provider)
	if cfg.Embedding.Model != "" {
		cmd.Printf("  Model: %s\n", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions > 0 {
		cmd.Printf("  Dimensions: %d\n", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", cfg.Embedding.BaseURL)
	}
	if cfg.Embedding.Provider.RequiresAPIKey() {
		cmd.Printf("  API Key: %s\n", maskAPIKey(cfg.Embedding.APIKey))
	}
	cmd.Println()

	cmd.Println("[Backends]")
	cmd.Printf("  Document store: %s\n", cfg.Store.Backend)
	cmd.Printf("  Vector index: %s (prefix %q)\n", cfg.Vector.Backend, cfg.Vector.CollectionPrefix)
	cmd.Printf("  Cache: %s\n", enabledBackend(cfg.Cache.Enabled, string(cfg.Cache.Backend)))
	cmd.Printf("  Events: %s\n", enabledBackend(cfg.Events.Enabled, string(cfg.Events.Backend)))
	cmd.Printf("  Qdrant: %s:%d\n", cfg.Qdrant.Host, cfg.Qdrant.Port)
	cmd.Printf("  Redis: %s (db %d)\n", cfg.Redis.Addr(), cfg.Redis.DB)
	cmd.Println()

	cmd.Println("[Cache]")
	cmd.Printf("  Document TTL: %s\n", cfg.Cache.DocumentTTL)
	cmd.Printf("  Search TTL: %s\n", cfg.Cache.SearchTTL)
	cmd.Println()

	cmd.Println("[Events]")
	cmd.Printf("  Claim idle: %s\n", cfg.Events.ClaimIdle)
	cmd.Println()

	cmd.Println("[Topics]")
	cmd.Printf("  Ingested: %s\n", cfg.Events.Topics.Ingested)
	cmd.Printf("  Searched: %s\n", cfg.Events.Topics.Searched)
	cmd.Printf("  Updated: %s\n", cfg.Events.Topics.Updated)
	cmd.Printf("  Deleted: %s\n", cfg.Events.Topics.Deleted)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}
	key := args[0]

	value, err := config.ParseValue(key, args[1])
	if err != nil {
		return err
	}

	prev, existed := configStore.Get(key)
	if err := configStore.Set(key, value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}

	// Validate the file on its own; the environment may hide a bad value.
	if _, err := config.LoadWith(configStore, nil); err != nil {
		if existed {
			_ = configStore.Set(key, prev)
		} else {
			_ = configStore.Delete(key)
		}
		return fmt.Errorf("rejected %s: %w", key, err)
	}

	shown := args[1]
	if config.IsSecret(key) {
		shown = maskAPIKey(args[1])
	}
	cmd.Printf("Set %s = %s\n", key, shown)
	if !slices.Contains(config.Tunables, key) {
		cmd.Println("Restart ragengine for this change to take effect.")
	}
	return nil
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	if err := configStore.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to remove %s: %w", args[0], err)
	}
	cmd.Printf("Removed %s\n", args[0])
	return nil
}

func enabledBackend(enabled bool, backend string) string {
	if !enabled {
		return "disabled"
	}
	return backend
}

func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
