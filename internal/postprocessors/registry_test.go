package postprocessors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/postprocessors/chunker"
)

func TestBuiltin_Names(t *testing.T) {
	assert.Equal(t, []string{"chunker", "metadata"}, Builtin().Names())
}

func TestRegistry_Pipeline(t *testing.T) {
	var got map[string]any
	r := Registry{
		"tag": func(settings map[string]any) (driven.PostProcessor, error) {
			got = settings
			return &stubStage{name: "tag"}, nil
		},
	}

	p, err := r.Pipeline([]string{"tag"}, map[string]map[string]any{"tag": {"label": "x"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"tag"}, p.Stages())
	assert.Equal(t, "x", got["label"])
}

func TestRegistry_Pipeline_UnknownStage(t *testing.T) {
	_, err := Builtin().Pipeline([]string{"metadata", "translate"}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "translate")
}

func TestRegistry_Pipeline_BuildError(t *testing.T) {
	boom := errors.New("bad settings")
	r := Registry{"x": func(map[string]any) (driven.PostProcessor, error) { return nil, boom }}

	_, err := r.Pipeline([]string{"x"}, nil)

	assert.ErrorIs(t, err, boom)
}

func TestBuildChunker(t *testing.T) {
	t.Run("decoded numbers", func(t *testing.T) {
		proc, err := buildChunker(map[string]any{"chunk_size": int64(800), "chunk_overlap": float64(100)})
		require.NoError(t, err)
		c := proc.(*chunker.Processor)
		assert.Equal(t, 800, c.ChunkSize())
		assert.Equal(t, 100, c.Overlap())
	})

	t.Run("defaults", func(t *testing.T) {
		proc, err := buildChunker(nil)
		require.NoError(t, err)
		c := proc.(*chunker.Processor)
		assert.Equal(t, chunker.DefaultChunkSize, c.ChunkSize())
		assert.Equal(t, chunker.DefaultChunkOverlap, c.Overlap())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := buildChunker(map[string]any{"chunk_size": 0})
		assert.Error(t, err)
		_, err = buildChunker(map[string]any{"chunk_overlap": -1})
		assert.Error(t, err)
	})
}

func TestBuildMetadata_Stopwords(t *testing.T) {
	proc, err := buildMetadata(map[string]any{
		"max_keywords": 3,
		"stopwords":    []any{"inventory"},
	})
	require.NoError(t, err)

	doc := &domain.Document{ID: "d", Content: "Inventory inventory warehouse warehouse stock"}
	_, err = proc.Process(context.Background(), doc, nil)
	require.NoError(t, err)

	keywords, _ := doc.Metadata["keywords"].([]string)
	require.NotEmpty(t, keywords)
	assert.Equal(t, "warehouse", keywords[0])
	assert.NotContains(t, keywords, "inventory")

	_, err = buildMetadata(map[string]any{"stopwords": []any{1}})
	assert.Error(t, err)
}

func TestIntSetting(t *testing.T) {
	tests := []struct {
		name  string
		cfg   map[string]any
		want  int
		found bool
	}{
		{"int", map[string]any{"size": 100}, 100, true},
		{"int64", map[string]any{"size": int64(200)}, 200, true},
		{"float64", map[string]any{"size": float64(300)}, 300, true},
		{"string", map[string]any{"size": "400"}, 0, false},
		{"missing", map[string]any{"other": 100}, 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := intSetting(tt.cfg, "size")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.found, ok)
		})
	}
}
