package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driving"
)

// healthProbeKey is read from the cache to check connectivity.
const healthProbeKey = "rag:health:probe"

var _ driving.HealthService = (*HealthChecker)(nil)

type healthCheck struct {
	name     string
	optional bool
	check    func(ctx context.Context) error
}

// HealthChecker probes the engine's backends. Required components make the
// report unhealthy when they fail; optional ones only degrade it.
type HealthChecker struct {
	checks  []healthCheck
	timeout time.Duration
}

// NewHealthChecker creates a checker for the store and embedding service.
// The cache is optional and may be nil.
func NewHealthChecker(store driven.DocumentStore, embedder driven.EmbeddingService, cache driven.KeyValueCache) *HealthChecker {
	h := &HealthChecker{timeout: 5 * time.Second}
	h.checks = append(h.checks,
		healthCheck{name: "document_store", check: func(ctx context.Context) error {
			_, err := store.Stats(ctx)
			return err
		}},
		healthCheck{name: "embedding", check: embedder.Ping},
	)
	if cache != nil {
		h.checks = append(h.checks, healthCheck{name: "cache", optional: true, check: func(ctx context.Context) error {
			_, _, err := cache.Get(ctx, healthProbeKey)
			return err
		}})
	}
	return h
}

// Check runs every probe concurrently.
func (h *HealthChecker) Check(ctx context.Context) domain.HealthReport {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report := domain.HealthReport{Status: domain.StatusHealthy, Services: make(map[string]domain.ComponentHealth, len(h.checks))}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state := domain.ComponentHealth{Status: domain.StatusHealthy}
			if err := c.check(ctx); err != nil {
				state = domain.ComponentHealth{Status: domain.StatusUnhealthy, Error: err.Error()}
			}

			mu.Lock()
			defer mu.Unlock()
			report.Services[c.name] = state
			if state.Status == domain.StatusHealthy {
				return
			}
			if !c.optional {
				report.Status = domain.StatusUnhealthy
			} else if report.Status == domain.StatusHealthy {
				report.Status = domain.StatusDegraded
			}
		}()
	}
	wg.Wait()
	return report
}

// Components returns the probed component names in order.
func (h *HealthChecker) Components() []string {
	names := make([]string, len(h.checks))
	for i, c := range h.checks {
		names[i] = c.name
	}
	sort.Strings(names)
	return names
}
