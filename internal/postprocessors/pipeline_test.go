package postprocessors

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// stubStage records what it saw and returns fixed chunks.
type stubStage struct {
	name   string
	chunks []domain.Chunk
	err    error
	seen   []domain.Chunk
	calls  int
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	s.calls++
	s.seen = chunks
	if s.err != nil {
		return nil, s.err
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	doc.Metadata["visited_"+s.name] = true
	if s.chunks != nil {
		return s.chunks, nil
	}
	return chunks, nil
}

func TestPipeline_NilDocument(t *testing.T) {
	_, err := NewPipeline().Process(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPipeline_NoStages(t *testing.T) {
	chunks, err := NewPipeline().Process(context.Background(), &domain.Document{ID: "d"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestPipeline_StagesSeePreviousChunks(t *testing.T) {
	split := &stubStage{name: "split", chunks: []domain.Chunk{{ID: "c1"}, {ID: "c2"}}}
	tag := &stubStage{name: "tag"}
	doc := &domain.Document{ID: "d"}

	chunks, err := NewPipeline(split, tag).Process(context.Background(), doc)

	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Nil(t, split.seen)
	assert.Len(t, tag.seen, 2)
	assert.Equal(t, true, doc.Metadata["visited_split"])
	assert.Equal(t, true, doc.Metadata["visited_tag"])
}

func TestPipeline_StageErrorStops(t *testing.T) {
	boom := errors.New("boom")
	failing := &stubStage{name: "failing", err: boom}
	after := &stubStage{name: "after"}

	_, err := NewPipeline(failing, after).Process(context.Background(), &domain.Document{ID: "d"})

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.Zero(t, after.calls)
}

func TestPipeline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stage := &stubStage{name: "never"}

	_, err := NewPipeline(stage).Process(ctx, &domain.Document{ID: "d"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stage.calls)
}

func TestPipeline_Stages(t *testing.T) {
	stages := []*stubStage{{name: "a"}, {name: "b"}}
	p := NewPipeline(stages[0], stages[1])
	assert.Equal(t, []string{"a", "b"}, p.Stages())
}

func TestDefaultPipeline_EnrichesAndChunks(t *testing.T) {
	p, err := DefaultPipeline(500, 50)
	require.NoError(t, err)
	assert.Equal(t, DefaultOrder, p.Stages())

	content := strings.Repeat("Inventory reconciliation happens monthly. ", 30)
	doc := &domain.Document{
		ID:           "doc-1",
		Title:        "Inventory Policy",
		Content:      content,
		DocumentType: domain.DocumentTypePolicy,
		AccessLevel:  domain.AccessLevelInternal,
		Version:      domain.DefaultDocumentVersion,
		CreatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	chunks, err := p.Process(context.Background(), doc)

	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "Inventory Policy", doc.Metadata["title"])
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "policy", c.Metadata["document_type"], "chunk %d", i)
		assert.Contains(t, c.Metadata, "keywords", "chunk %d", i)
	}
}
