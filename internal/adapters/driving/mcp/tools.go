package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// FilterInput restricts search hits by a payload field.
type FilterInput struct {
	Field    string `json:"field" jsonschema:"payload field, dotted for nested values (e.g. metadata.access_level)"`
	Operator string `json:"operator,omitempty" jsonschema:"one of ==, !=, in, not_in (default ==)"`
	Value    any    `json:"value" jsonschema:"value to compare; a list for in and not_in"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query        string        `json:"query" jsonschema:"the search query to find documents"`
	Collection   string        `json:"collection,omitempty" jsonschema:"collection to search (default: chosen by document type)"`
	DocumentType string        `json:"document_type,omitempty" jsonschema:"restrict to one document type"`
	Filters      []FilterInput `json:"filters,omitempty" jsonschema:"additional payload filters, combined with AND"`
	Limit        int           `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Threshold    *float64      `json:"threshold,omitempty" jsonschema:"minimum similarity score between 0 and 1"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results      []SearchResultOutput `json:"results"`
	Count        int                  `json:"count"`
	SearchTimeMs float64              `json:"search_time_ms"`
	Cached       bool                 `json:"cached"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	DocumentID string         `json:"document_id"`
	ChunkID    string         `json:"chunk_id"`
	Title      string         `json:"title,omitempty"`
	Score      float64        `json:"score"`
	Collection string         `json:"collection,omitempty"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IngestInput is the input schema for the ingest_document tool.
type IngestInput struct {
	ID           string         `json:"id,omitempty" jsonschema:"document id (generated when empty)"`
	Title        string         `json:"title,omitempty" jsonschema:"document title"`
	Content      string         `json:"content" jsonschema:"full document text"`
	DocumentType string         `json:"document_type,omitempty" jsonschema:"document, policy, manual, faq or knowledge_base"`
	AccessLevel  string         `json:"access_level,omitempty" jsonschema:"public, internal, confidential or restricted"`
	Version      string         `json:"version,omitempty" jsonschema:"document version label"`
	Metadata     map[string]any `json:"metadata,omitempty" jsonschema:"free-form metadata stored with the document"`
	Async        *bool          `json:"async,omitempty" jsonschema:"process in the background (default: only for large documents)"`
}

// UpdateInput is the input schema for the update_document tool.
// Empty fields keep the stored values, except content which is required.
type UpdateInput struct {
	ID           string         `json:"id" jsonschema:"id of the document to update"`
	Title        string         `json:"title,omitempty" jsonschema:"new title"`
	Content      string         `json:"content" jsonschema:"new document text"`
	DocumentType string         `json:"document_type,omitempty" jsonschema:"document, policy, manual, faq or knowledge_base"`
	AccessLevel  string         `json:"access_level,omitempty" jsonschema:"public, internal, confidential or restricted"`
	Version      string         `json:"version,omitempty" jsonschema:"document version label"`
	Metadata     map[string]any `json:"metadata,omitempty" jsonschema:"free-form metadata stored with the document"`
	Revision     int64          `json:"revision,omitempty" jsonschema:"expected stored revision; the update fails if it has changed"`
}

// DocumentIDInput identifies a single document.
type DocumentIDInput struct {
	ID string `json:"id" jsonschema:"document id"`
}

// DocumentOutput is the output schema for get_document.
type DocumentOutput struct {
	Found    bool             `json:"found"`
	Document *domain.Document `json:"document,omitempty"`
}

// ContextInput is the input schema for the build_context tool.
type ContextInput struct {
	Query        string   `json:"query" jsonschema:"question the context should answer"`
	MaxTokens    int      `json:"max_tokens,omitempty" jsonschema:"approximate token budget (default 1500)"`
	DocumentType string   `json:"document_type,omitempty" jsonschema:"restrict to one document type"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of hits to merge"`
	Threshold    *float64 `json:"threshold,omitempty" jsonschema:"minimum similarity score between 0 and 1"`
}

// ContextOutput is the output schema for the build_context tool.
type ContextOutput struct {
	Context string `json:"context"`
	Tokens  int    `json:"tokens"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search across indexed documents",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Chunk, embed and index a document",
	}, s.handleIngest)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_document",
		Description: "Fetch a stored document by id",
	}, s.handleGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "update_document",
		Description: "Replace a document's content and re-index it",
	}, s.handleUpdate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a document and its vectors",
	}, s.handleDelete)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "build_context",
		Description: "Search and merge the best matches into a prompt context",
	}, s.handleContext)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	query, err := buildQuery(input.Query, input.Collection, input.DocumentType, input.Filters, input.Limit, input.Threshold)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	resp, err := s.rag.Search(ctx, query)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results:      make([]SearchResultOutput, len(resp.Results)),
		Count:        len(resp.Results),
		SearchTimeMs: resp.SearchTimeMs,
		Cached:       resp.Cached,
	}

	for i, r := range resp.Results {
		title, _ := r.Metadata["title"].(string)
		output.Results[i] = SearchResultOutput{
			DocumentID: r.DocumentID,
			ChunkID:    r.ChunkID,
			Title:      title,
			Score:      r.Score,
			Collection: r.Collection,
			Content:    r.Content,
			Metadata:   r.Metadata,
		}
	}

	return nil, output, nil
}

func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, domain.IngestResult, error) {
	doc, err := newDocument(input.ID, input.Title, input.Content, input.DocumentType, input.AccessLevel)
	if err != nil {
		return nil, domain.IngestResult{}, err
	}
	doc.Version = input.Version
	doc.Metadata = input.Metadata

	res, err := s.rag.Ingest(ctx, doc, domain.IngestOptions{Async: input.Async})
	if err != nil {
		return nil, domain.IngestResult{}, err
	}
	return nil, res, nil
}

func (s *Server) handleGet(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentIDInput,
) (*mcp.CallToolResult, DocumentOutput, error) {
	if input.ID == "" {
		return nil, DocumentOutput{}, domain.NewValidationError("id", "document id is required")
	}

	doc, err := s.rag.Get(ctx, input.ID)
	if err != nil {
		return nil, DocumentOutput{}, err
	}
	return nil, DocumentOutput{Found: doc != nil, Document: doc}, nil
}

func (s *Server) handleUpdate(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input UpdateInput,
) (*mcp.CallToolResult, domain.MutationResult, error) {
	if input.ID == "" {
		return nil, domain.MutationResult{}, domain.NewValidationError("id", "document id is required")
	}

	doc, err := newDocument(input.ID, input.Title, input.Content, input.DocumentType, input.AccessLevel)
	if err != nil {
		return nil, domain.MutationResult{}, err
	}
	doc.Version = input.Version
	doc.Metadata = input.Metadata
	doc.Revision = input.Revision

	res, err := s.rag.Update(ctx, input.ID, doc)
	if err != nil {
		return nil, domain.MutationResult{}, err
	}
	return nil, res, nil
}

func (s *Server) handleDelete(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentIDInput,
) (*mcp.CallToolResult, domain.MutationResult, error) {
	if input.ID == "" {
		return nil, domain.MutationResult{}, domain.NewValidationError("id", "document id is required")
	}

	res, err := s.rag.Delete(ctx, input.ID)
	if err != nil {
		return nil, domain.MutationResult{}, err
	}
	return nil, res, nil
}

func (s *Server) handleContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ContextInput,
) (*mcp.CallToolResult, ContextOutput, error) {
	query, err := buildQuery(input.Query, "", input.DocumentType, nil, input.Limit, input.Threshold)
	if err != nil {
		return nil, ContextOutput{}, err
	}

	text, err := s.rag.Context(ctx, query, input.MaxTokens)
	if err != nil {
		return nil, ContextOutput{}, err
	}
	return nil, ContextOutput{Context: text, Tokens: len(text) / 4}, nil
}

// buildQuery assembles a search query from tool arguments.
func buildQuery(
	text, collection, docType string,
	filters []FilterInput,
	limit int,
	threshold *float64,
) (domain.SearchQuery, error) {
	query := domain.SearchQuery{
		Query:               text,
		CollectionName:      collection,
		MaxResults:          limit,
		SimilarityThreshold: threshold,
	}

	if docType != "" {
		t, err := domain.ParseDocumentType(docType)
		if err != nil {
			return domain.SearchQuery{}, err
		}
		query.Filters = append(query.Filters, domain.SearchFilter{
			Field:    "document_type",
			Operator: domain.OpEqual,
			Value:    string(t),
		})
	}

	for i, f := range filters {
		op, err := domain.ParseFilterOperator(f.Operator)
		if err != nil {
			return domain.SearchQuery{}, fmt.Errorf("filter %d: %w", i, err)
		}
		filter, err := domain.NewFilter(f.Field, op, f.Value)
		if err != nil {
			return domain.SearchQuery{}, fmt.Errorf("filter %d: %w", i, err)
		}
		query.Filters = append(query.Filters, filter)
	}

	return query, nil
}

func newDocument(id, title, content, docType, access string) (domain.Document, error) {
	doc := domain.Document{ID: id, Title: title, Content: content}
	if docType != "" {
		t, err := domain.ParseDocumentType(docType)
		if err != nil {
			return domain.Document{}, err
		}
		doc.DocumentType = t
	}
	if access != "" {
		a, err := domain.ParseAccessLevel(access)
		if err != nil {
			return domain.Document{}, err
		}
		doc.AccessLevel = a
	}
	return doc, nil
}
