package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/storage/memory"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driving"
)

var (
	_ driving.RAGService    = (*mockRAGService)(nil)
	_ driving.HealthService = (*mockHealth)(nil)
)

// mockRAGService records calls and returns canned results.
type mockRAGService struct {
	response  *domain.SearchResponse
	document  *domain.Document
	documents []domain.Document
	ingest    domain.IngestResult
	mutation  domain.MutationResult
	merged    string
	err       error

	ingested      []domain.Document
	deleted       []string
	lastQuery     domain.SearchQuery
	lastDoc       domain.Document
	lastID        string
	lastOpts      domain.IngestOptions
	lastMaxTokens int
	lastLimit     int
}

func (m *mockRAGService) Ingest(_ context.Context, doc domain.Document, opts domain.IngestOptions) (domain.IngestResult, error) {
	m.lastDoc, m.lastOpts = doc, opts
	m.ingested = append(m.ingested, doc)
	res := m.ingest
	if res.DocumentID == "" {
		res.DocumentID = doc.ID
	}
	return res, m.err
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
	m.deleted = append(m.deleted, id)
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

func (m *mockRAGService) List(_ context.Context, limit int) ([]domain.Document, error) {
	m.lastLimit = limit
	return m.documents, m.err
}

func (m *mockRAGService) Stats(_ context.Context) (domain.Stats, error) {
	return domain.Stats{Documents: len(m.documents)}, m.err
}

// pathStore is an in-memory config store that reports a file path.
type pathStore struct {
	*memory.ConfigStore
	path string
}

func newPathStore(path string, values ...map[string]any) *pathStore {
	return &pathStore{ConfigStore: memory.NewConfigStore(values...), path: path}
}

func (s *pathStore) Path() string { return s.path }

type mockHealth struct {
	report domain.HealthReport
}

func (h *mockHealth) Check(_ context.Context) domain.HealthReport {
	return h.report
}

// setupTestServices installs rag as the engine and restores the package
// state when the test ends.
func setupTestServices(t *testing.T, rag driving.RAGService) *bytes.Buffer {
	t.Helper()

	oldTerminal := stdinIsTerminal
	stdinIsTerminal = func() bool { return false }

	SetServices(&Services{RAG: rag})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)

	t.Cleanup(func() {
		stdinIsTerminal = oldTerminal
		SetServices(nil)
		SetConfigStore(nil)
		SetWiring(nil)
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetFlags()
	})
	return buf
}

// execute runs the root command with args.
func execute(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// resetFlags restores flag variables to their defaults. Cobra keeps parsed
// values between Execute calls.
func resetFlags() {
	docID, docTitle, docType, docAccess, docVersion = "", "", "", "", ""
	docMetadata = nil
	docAsync, docSync, docJSON = false, false, false
	docRevision = 0
	listLimit = 20

	searchLimit, searchThreshold = 0, -1
	searchCollection, searchType = "", ""
	searchFilters = nil
	searchJSON = false
	contextTokens = 0

	watchExts = append([]string(nil), defaultWatchExts...)
	watchInitial = true
	serveAddr, serveMCP = "", false
	mcpPort = 0
	verbose, configPath = false, ""

	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		unset := func(f *pflag.Flag) { f.Changed = false }
		c.Flags().VisitAll(unset)
		c.PersistentFlags().VisitAll(unset)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}
