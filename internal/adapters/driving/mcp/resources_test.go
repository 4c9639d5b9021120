package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

func TestExtractDocumentID(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{
			name:     "valid document URI",
			uri:      "rag://documents/doc-456",
			expected: "doc-456",
		},
		{
			name:     "invalid prefix",
			uri:      "file://documents/doc-456",
			expected: "",
		},
		{
			name:     "nested path",
			uri:      "rag://documents/doc-456/chunks",
			expected: "",
		},
		{
			name:     "empty URI",
			uri:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractDocumentID(tt.uri)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// Helper to create a ReadResourceRequest with the given URI.
func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestServer_handleDocumentsResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns documents successfully", func(t *testing.T) {
		rag := &mockRAGService{
			documents: []domain.Document{
				{ID: "doc-1", Title: "Leave Policy", DocumentType: domain.DocumentTypePolicy, UpdatedAt: time.Now()},
				{ID: "doc-2", Title: "Setup Guide", DocumentType: domain.DocumentTypeManual, UpdatedAt: time.Now()},
			},
		}
		server := newTestServer(t, rag)

		result, err := server.handleDocumentsResource(ctx, makeReadResourceRequest("rag://documents"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Contains(t, result.Contents[0].Text, "rag://documents/doc-1")
		assert.Contains(t, result.Contents[0].Text, "Leave Policy")
		assert.Contains(t, result.Contents[0].Text, "doc-2")
		assert.Equal(t, "application/json", result.Contents[0].MIMEType)
	})

	t.Run("handles empty document list", func(t *testing.T) {
		server := newTestServer(t, &mockRAGService{documents: []domain.Document{}})

		result, err := server.handleDocumentsResource(ctx, makeReadResourceRequest("rag://documents"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "[]", result.Contents[0].Text)
	})

	t.Run("returns error on list failure", func(t *testing.T) {
		server := newTestServer(t, &mockRAGService{err: errors.New("storage error")})

		_, err := server.handleDocumentsResource(ctx, makeReadResourceRequest("rag://documents"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "listing documents")
	})
}

func TestServer_handleStatsResource(t *testing.T) {
	server := newTestServer(t, &mockRAGService{stats: domain.Stats{Documents: 3, Chunks: 11}})

	result, err := server.handleStatsResource(context.Background(), makeReadResourceRequest("rag://stats"))

	require.NoError(t, err)
	assert.JSONEq(t, `{"documents": 3, "chunks": 11}`, result.Contents[0].Text)
}

func TestServer_handleDocumentResource(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid URI returns not found", func(t *testing.T) {
		server := newTestServer(t, &mockRAGService{})

		_, err := server.handleDocumentResource(ctx, makeReadResourceRequest("rag://invalid/uri"))

		require.Error(t, err)
	})

	t.Run("missing document returns not found", func(t *testing.T) {
		server := newTestServer(t, &mockRAGService{})

		_, err := server.handleDocumentResource(ctx, makeReadResourceRequest("rag://documents/doc-123"))

		require.Error(t, err)
	})

	t.Run("returns document successfully", func(t *testing.T) {
		rag := &mockRAGService{document: &domain.Document{ID: "doc-123", Title: "Hello", Content: "This is the document content."}}
		server := newTestServer(t, rag)

		result, err := server.handleDocumentResource(ctx, makeReadResourceRequest("rag://documents/doc-123"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Contains(t, result.Contents[0].Text, "This is the document content.")
		assert.Equal(t, "doc-123", rag.lastID)
	})

	t.Run("returns error on get failure", func(t *testing.T) {
		server := newTestServer(t, &mockRAGService{err: errors.New("disk gone")})

		_, err := server.handleDocumentResource(ctx, makeReadResourceRequest("rag://documents/doc-123"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "getting document")
	})
}
