// Command ragengine runs the retrieval-augmented document engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/config/file"
	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driving/cli"
	"github.com/azad25/erp-ai-copilot-sub000/internal/app"
	"github.com/azad25/erp-ai-copilot-sub000/internal/config"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
	"github.com/azad25/erp-ai-copilot-sub000/internal/normalisers"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logger.Warn("%v", err)
	}

	cli.SetWiring(&cli.Wiring{
		OpenConfig: openConfig,
		Start:      start,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func openConfig(path string) (driven.ConfigStore, error) {
	if path == "" {
		return file.NewConfigStore("")
	}
	return file.OpenConfigStore(path)
}

func start(ctx context.Context, store driven.ConfigStore) (*cli.Services, error) {
	cfg, err := config.Load(store)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.SetFormat(cfg.LogFormat)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &cli.Services{
		RAG:         a.Service,
		Health:      a.Health,
		Normalisers: normalisers.Default(),
		Metrics:     a.Metrics.Handler(),
		ListenAddr:  cfg.Metrics.Addr,
		Close:       a.Close,
		Reload: func() error {
			if fs, ok := store.(*file.ConfigStore); ok {
				if err := fs.Load(); err != nil {
					return err
				}
			}
			next, err := config.Load(store)
			if err != nil {
				return err
			}
			return a.Reload(next)
		},
	}
	if a.Events != nil {
		s.StartConsumers = a.Service.StartConsumers
	}
	return s, nil
}
