package mcp

import (
	"context"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driving"
)

var _ driving.RAGService = (*mockRAGService)(nil)

// mockRAGService is a mock implementation of driving.RAGService.
// It records the last arguments it received.
type mockRAGService struct {
	response  *domain.SearchResponse
	document  *domain.Document
	documents []domain.Document
	ingest    domain.IngestResult
	mutation  domain.MutationResult
	merged    string
	stats     domain.Stats
	err       error

	lastQuery     domain.SearchQuery
	lastDoc       domain.Document
	lastID        string
	lastOpts      domain.IngestOptions
	lastMaxTokens int
}

func (m *mockRAGService) Ingest(_ context.Context, doc domain.Document, opts domain.IngestOptions) (domain.IngestResult, error) {
	m.lastDoc, m.lastOpts = doc, opts
	return m.ingest, m.err
}

func (m *mockRAGService) Get(_ context.Context, id string) (*domain.Document, error) {
	m.lastID = id
	return m.document, m.err
}

func (m *mockRAGService) Update(_ context.Context, id string, doc domain.Document) (domain.MutationResult, error) {
	m.lastID, m.lastDoc = id, doc
	return m.mutation, m.err
}

func (m *mockRAGService) Delete(_ context.Context, id string) (domain.MutationResult, error) {
	m.lastID = id
	return m.mutation, m.err
}

func (m *mockRAGService) Search(_ context.Context, q domain.SearchQuery) (*domain.SearchResponse, error) {
	m.lastQuery = q
	if m.err != nil {
		return nil, m.err
	}
	if m.response == nil {
		return &domain.SearchResponse{Query: q.Query, Results: []domain.SearchResult{}}, nil
	}
	return m.response, nil
}

func (m *mockRAGService) Context(_ context.Context, q domain.SearchQuery, maxTokens int) (string, error) {
	m.lastQuery, m.lastMaxTokens = q, maxTokens
	return m.merged, m.err
}

func (m *mockRAGService) List(_ context.Context, _ int) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockRAGService) Stats(_ context.Context) (domain.Stats, error) {
	return m.stats, m.err
}
