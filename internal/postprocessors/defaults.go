package postprocessors

import (
	"fmt"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/postprocessors/chunker"
	"github.com/azad25/erp-ai-copilot-sub000/internal/postprocessors/metadata"
)

// DefaultOrder is the processing order used at ingestion. Metadata runs
// first so chunks inherit the enriched document metadata.
var DefaultOrder = []string{"metadata", "chunker"}

// Builtin returns a registry of the built-in stages.
func Builtin() Registry {
	return Registry{
		"metadata": buildMetadata,
		"chunker":  buildChunker,
	}
}

// DefaultPipeline builds the metadata and chunker stages with the given
// chunk settings.
func DefaultPipeline(chunkSize, chunkOverlap int) (*Pipeline, error) {
	return Builtin().Pipeline(DefaultOrder, map[string]map[string]any{
		"chunker": {"chunk_size": chunkSize, "chunk_overlap": chunkOverlap},
	})
}

// buildChunker reads chunk_size and chunk_overlap, both in characters.
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if size, ok := intSetting(cfg, "chunk_size"); ok {
		if size <= 0 {
			return nil, fmt.Errorf("chunk_size must be positive, got %d", size)
		}
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap, ok := intSetting(cfg, "chunk_overlap"); ok {
		if overlap < 0 {
			return nil, fmt.Errorf("chunk_overlap must not be negative, got %d", overlap)
		}
		opts = append(opts, chunker.WithOverlap(overlap))
	}

	return chunker.New(opts...), nil
}

// buildMetadata reads max_keywords, words_per_minute and stopwords.
func buildMetadata(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []metadata.Option

	if n, ok := intSetting(cfg, "max_keywords"); ok && n > 0 {
		opts = append(opts, metadata.WithMaxKeywords(n))
	}
	if n, ok := intSetting(cfg, "words_per_minute"); ok && n > 0 {
		opts = append(opts, metadata.WithWordsPerMinute(n))
	}
	switch words := cfg["stopwords"].(type) {
	case []string:
		opts = append(opts, metadata.WithStopwords(words...))
	case []any:
		list := make([]string, 0, len(words))
		for _, w := range words {
			s, ok := w.(string)
			if !ok {
				return nil, fmt.Errorf("stopwords must be strings, got %T", w)
			}
			list = append(list, s)
		}
		opts = append(opts, metadata.WithStopwords(list...))
	}

	return metadata.New(opts...), nil
}

// intSetting reads a number decoded from TOML, YAML or JSON.
func intSetting(cfg map[string]any, key string) (int, bool) {
	switch v := cfg[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
