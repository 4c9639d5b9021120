package postprocessors

import (
	"fmt"
	"maps"
	"slices"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
)

// Builder creates a stage from its settings section. A nil section means
// all defaults.
type Builder func(settings map[string]any) (driven.PostProcessor, error)

// Registry maps stage names to their builders.
type Registry map[string]Builder

// Pipeline builds the named stages, each from its own settings section, and
// chains them in order.
func (r Registry) Pipeline(order []string, settings map[string]map[string]any) (*Pipeline, error) {
	stages := make([]driven.PostProcessor, 0, len(order))
	for _, name := range order {
		build, ok := r[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown processor %q", domain.ErrInvalidInput, name)
		}
		stage, err := build(settings[name])
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
		stages = append(stages, stage)
	}
	return NewPipeline(stages...), nil
}

// Names returns the registered stage names, sorted.
func (r Registry) Names() []string {
	return slices.Sorted(maps.Keys(r))
}
