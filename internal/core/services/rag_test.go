package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/cache/memory"
	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/embedding/hashing"
	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/storage/memory"
	vecmem "github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/vectorindex/memory"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/postprocessors"
	"github.com/azad25/erp-ai-copilot-sub000/internal/postprocessors/metadata"
)

// --- Test doubles ---

// flakyIndex fails selected operations of an in-memory index.
type flakyIndex struct {
	*vecmem.Index
	mu        sync.Mutex
	upsertErr error
	deleteErr error

	// hold, when set, blocks Search after it has computed its hits.
	hold chan struct{}
	held chan struct{}
}

func (f *flakyIndex) Search(ctx context.Context, name string, query []float32, limit int,
	threshold float64, filters []domain.SearchFilter) ([]driven.VectorHit, error) {
	hits, err := f.Index.Search(ctx, name, query, limit, threshold, filters)

	f.mu.Lock()
	hold, held := f.hold, f.held
	f.mu.Unlock()
	if hold != nil {
		select {
		case held <- struct{}{}:
		default:
		}
		<-hold
	}
	return hits, err
}

// holdSearches makes Search block until releaseSearches. The returned
// channel receives once a search is held.
func (f *flakyIndex) holdSearches() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = make(chan struct{})
	f.held = make(chan struct{}, 1)
	return f.held
}

func (f *flakyIndex) releaseSearches() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.hold)
	f.hold, f.held = nil, nil
}

func (f *flakyIndex) UpsertBatch(ctx context.Context, name string, points []driven.VectorPoint) ([]string, error) {
	f.mu.Lock()
	err := f.upsertErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Index.UpsertBatch(ctx, name, points)
}

func (f *flakyIndex) DeleteByIDs(ctx context.Context, name string, ids []string) (int, error) {
	f.mu.Lock()
	err := f.deleteErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.Index.DeleteByIDs(ctx, name, ids)
}

func (f *flakyIndex) failUpserts(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertErr = err
}

func (f *flakyIndex) failDeletes(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErr = err
}

// flakyStore fails SaveDocument when saveErr is set.
type flakyStore struct {
	*memory.DocumentStore
	saveErr error
}

func (f *flakyStore) SaveDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, expected int64) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.DocumentStore.SaveDocument(ctx, doc, chunks, expected)
}

// recordingBus captures published events.
type recordingBus struct {
	mu     sync.Mutex
	events map[string][]domain.Event
	err    error
}

func newRecordingBus() *recordingBus {
	return &recordingBus{events: make(map[string][]domain.Event)}
}

func (b *recordingBus) Publish(_ context.Context, topic string, e domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events[topic] = append(b.events[topic], e)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, _, _ string, _ driven.EventHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) published(topic string) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Event(nil), b.events[topic]...)
}

type testEnv struct {
	svc   *RAGService
	store *flakyStore
	index *flakyIndex
	bus   *recordingBus
}

func TestNewRAGService_FillsDefaults(t *testing.T) {
	svc := NewRAGService(memory.NewDocumentStore(), vecmem.NewIndex(), hashing.NewEmbeddingService(8), nil, Options{})
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	opts := svc.Options()
	defaults := DefaultOptions()

	assert.Equal(t, defaults.CollectionPrefix, opts.CollectionPrefix)
	assert.Equal(t, defaults.MaxResults, opts.MaxResults)
	assert.Equal(t, defaults.Workers, opts.Workers)
	assert.Equal(t, defaults.Timeout, opts.Timeout)
	assert.Equal(t, time.Hour, opts.DocumentCacheTTL)
	assert.Equal(t, 30*time.Minute, opts.SearchCacheTTL)
	assert.Equal(t, defaults.Topics, opts.Topics)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	pipeline, err := postprocessors.DefaultPipeline(500, 50)
	require.NoError(t, err)

	env := &testEnv{
		store: &flakyStore{DocumentStore: memory.NewDocumentStore()},
		index: &flakyIndex{Index: vecmem.NewIndex()},
		bus:   newRecordingBus(),
	}
	opts := DefaultOptions()
	opts.Timeout = 5 * time.Second
	env.svc = NewRAGService(env.store, env.index, hashing.NewEmbeddingService(128),
		NewDocumentProcessor(pipeline, metadata.DerivedKeys...), opts)
	env.svc.SetCache(cachemem.New(0))
	env.svc.SetEventBus(env.bus)

	require.NoError(t, env.svc.Start(context.Background()))
	t.Cleanup(func() { _ = env.svc.Close(context.Background()) })
	return env
}

func (e *testEnv) ingest(t *testing.T, doc domain.Document) domain.IngestResult {
	t.Helper()
	res, err := e.svc.Ingest(context.Background(), doc, domain.IngestOptions{})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	return res
}

// prose builds readable text of roughly n bytes.
func prose(n int, words ...string) string {
	if len(words) == 0 {
		words = []string{"retrieval", "engine", "stores", "documents", "and", "vectors"}
	}
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(words[i%len(words)])
	}
	return b.String()[:n]
}

// --- Ingest ---

func TestRAGService_Ingest_ChunksAndIndexes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.ingest(t, domain.Document{Title: "Handbook", Content: strings.Repeat("a", 1200)})

	require.NotNil(t, res.ChunksCreated)
	assert.Equal(t, 3, *res.ChunksCreated)
	assert.Len(t, res.VectorIDs, 3)
	assert.False(t, res.Async)
	assert.Equal(t, 3, env.index.Count("rag_documents"))

	chunks, err := env.store.GetChunks(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, res.VectorIDs[i], c.ID)
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "rag_documents", c.Collection)
	}

	doc, err := env.svc.Get(ctx, res.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, domain.DocumentTypeGeneric, doc.DocumentType)
	assert.Equal(t, domain.AccessLevelInternal, doc.AccessLevel)
	assert.Equal(t, int64(1), doc.Revision)
	assert.Contains(t, doc.Metadata, metadata.KeyWordCount)

	stats, err := env.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{Documents: 1, Chunks: 3}, stats)

	assert.Len(t, env.bus.published("rag-document-ingestion"), 1)
}

func TestRAGService_Ingest_UsesTypeCollection(t *testing.T) {
	env := newTestEnv(t)

	env.ingest(t, domain.Document{Title: "Leave", Content: prose(300), DocumentType: domain.DocumentTypePolicy})

	assert.Equal(t, 1, env.index.Count("rag_policies"))
	assert.Equal(t, 0, env.index.Count("rag_documents"))
}

func TestRAGService_Ingest_EmptyContent(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Ingest(context.Background(), domain.Document{Title: "Empty", Content: "   "}, domain.IngestOptions{})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.DocumentID)
	require.NotNil(t, res.ChunksCreated)
	assert.Equal(t, 0, *res.ChunksCreated)
	assert.NotEmpty(t, res.Error)

	stats, err := env.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
}

func TestRAGService_Ingest_Invalid(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Ingest(context.Background(), domain.Document{Content: "no title"}, domain.IngestOptions{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "title")

	res, err = env.svc.Ingest(context.Background(),
		domain.Document{Title: "x", Content: "y", DocumentType: "memo"}, domain.IngestOptions{})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestRAGService_Ingest_Async(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	async := true
	res, err := env.svc.Ingest(ctx, domain.Document{Title: "Later", Content: prose(900)}, domain.IngestOptions{Async: &async})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Async)
	assert.NotEmpty(t, res.DocumentID)
	assert.Nil(t, res.ChunksCreated)

	require.NoError(t, env.svc.Close(ctx))

	doc, err := env.svc.Get(ctx, res.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Later", doc.Title)
}

func TestRAGService_Ingest_AsyncThreshold(t *testing.T) {
	env := newTestEnv(t)
	env.svc.Tune(Tuning{AsyncThreshold: 100, SimilarityThreshold: 0.7})

	res, err := env.svc.Ingest(context.Background(), domain.Document{Title: "Big", Content: prose(150)}, domain.IngestOptions{})
	require.NoError(t, err)
	assert.True(t, res.Async)

	inline := false
	res, err = env.svc.Ingest(context.Background(), domain.Document{Title: "Big", Content: prose(150)}, domain.IngestOptions{Async: &inline})
	require.NoError(t, err)
	assert.False(t, res.Async)
	assert.True(t, res.Success)

	// The threshold counts characters: 90 characters in 108 bytes stay inline.
	accented := strings.Repeat("café ", 18)
	require.Greater(t, len(accented), 100)
	res, err = env.svc.Ingest(context.Background(), domain.Document{Title: "Menu", Content: accented}, domain.IngestOptions{})
	require.NoError(t, err)
	assert.False(t, res.Async)
	assert.True(t, res.Success, res.Error)
}

func TestRAGService_Ingest_ReplacesExisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.ingest(t, domain.Document{ID: "doc-1", Title: "v1", Content: strings.Repeat("a", 1200)})
	before, err := env.store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)

	second := env.ingest(t, domain.Document{ID: "doc-1", Title: "v2", Content: prose(200)})
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, 1, *second.ChunksCreated)
	assert.Equal(t, 1, env.index.Count("rag_documents"))

	after, err := env.store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
	assert.Equal(t, int64(2), after.Revision)
}

// --- Get ---

func TestRAGService_Get_NotFound(t *testing.T) {
	env := newTestEnv(t)

	doc, err := env.svc.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRAGService_Get_ServedFromCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.ingest(t, domain.Document{Title: "Cached", Content: prose(100)})

	// Bypass the service so only the cache still holds the document.
	require.NoError(t, env.store.DeleteDocument(ctx, res.DocumentID))

	doc, err := env.svc.Get(ctx, res.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Cached", doc.Title)
}

// --- Update ---

func TestRAGService_Update_Missing(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Update(context.Background(), "missing", domain.Document{Title: "x", Content: "y"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "missing", res.DocumentID)
	assert.Contains(t, res.Error, "not found")
}

func TestRAGService_Update_RegeneratesChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ingest(t, domain.Document{ID: "doc-1", Title: "Original", Content: strings.Repeat("a", 1200),
		DocumentType: domain.DocumentTypeManual, Version: "2.1"})
	oldChunks, err := env.store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	original, err := env.svc.Get(ctx, "doc-1")
	require.NoError(t, err)

	res, err := env.svc.Update(ctx, "doc-1", domain.Document{Title: "Rewritten", Content: prose(300, "kubernetes", "deployment")})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	doc, err := env.svc.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Rewritten", doc.Title)
	assert.Equal(t, domain.DocumentTypeManual, doc.DocumentType)
	assert.Equal(t, "2.1", doc.Version)
	assert.Equal(t, original.CreatedAt, doc.CreatedAt)
	assert.True(t, doc.UpdatedAt.After(original.UpdatedAt))
	assert.Equal(t, int64(2), doc.Revision)
	assert.Equal(t, "Rewritten", doc.Metadata[metadata.KeyTitle])
	assert.Contains(t, doc.Metadata[metadata.KeyKeywords], "kubernetes")

	newChunks, err := env.store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, newChunks, 1)
	assert.Equal(t, 1, env.index.Count("rag_manuals"))
	for _, old := range oldChunks {
		n, err := env.index.Index.DeleteByIDs(ctx, "rag_manuals", []string{old.ID})
		require.NoError(t, err)
		assert.Zero(t, n, "stale vector %s survived the update", old.ID)
	}

	assert.Len(t, env.bus.published("rag-document-update"), 1)
}

func TestRAGService_Update_KeepsCallerMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.ingest(t, domain.Document{ID: "doc-1", Title: "Handbook", Content: prose(300, "warehouse", "restock", "guidance")})

	res, err := env.svc.Update(ctx, "doc-1", domain.Document{
		Title:   "Handbook",
		Content: prose(300, "warehouse", "restock", "guidance"),
		Metadata: map[string]any{
			metadata.KeyKeywords: []string{"curated"},
			metadata.KeyTitle:    "Display Title",
		},
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	doc, err := env.svc.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Display Title", doc.Metadata[metadata.KeyTitle])
	assert.Contains(t, doc.Metadata[metadata.KeyKeywords], "curated")
	assert.NotContains(t, doc.Metadata[metadata.KeyKeywords], "warehouse")

	// Sending the stored metadata back recomputes what was derived.
	res, err = env.svc.Update(ctx, "doc-1", domain.Document{
		Title:    "Cluster guide",
		Content:  prose(300, "kubernetes", "deployment"),
		Metadata: doc.Metadata,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	doc, err = env.svc.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Cluster guide", doc.Metadata[metadata.KeyTitle])
	assert.Contains(t, doc.Metadata[metadata.KeyKeywords], "kubernetes")
}

func TestRAGService_Search_RacingDeleteLeavesNoStaleCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.ingest(t, domain.Document{ID: "doc-1", Title: "Stock", Content: prose(300, "inventory", "shortage", "warehouse")})

	query := domain.SearchQuery{Query: "inventory shortage", SimilarityThreshold: domain.Float64(0.1)}
	held := env.index.holdSearches()
	done := make(chan *domain.SearchResponse, 1)
	go func() {
		resp, err := env.svc.Search(ctx, query)
		assert.NoError(t, err)
		done <- resp
	}()

	select {
	case <-held:
	case <-time.After(5 * time.Second):
		t.Fatal("search never reached the index")
	}
	res, err := env.svc.Delete(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	env.index.releaseSearches()

	inflight := <-done
	require.NotNil(t, inflight)
	assert.NotEmpty(t, inflight.Results)

	resp, err := env.svc.Search(ctx, query)
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Empty(t, resp.Results)
}

func TestRAGService_Update_RevisionConflict(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, domain.Document{ID: "doc-1", Title: "v1", Content: prose(100)})

	res, err := env.svc.Update(context.Background(), "doc-1", domain.Document{Title: "v2", Content: prose(100), Revision: 7})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, domain.ErrVersionConflict.Error())

	res, err = env.svc.Update(context.Background(), "doc-1", domain.Document{Title: "v2", Content: prose(100), Revision: 1})
	require.NoError(t, err)
	assert.True(t, res.Success, res.Error)
}

func TestRAGService_Update_ConcurrentWritersSerialize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.ingest(t, domain.Document{ID: "doc-1", Title: "v0", Content: prose(700)})

	const writers = 8
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.svc.Update(ctx, "doc-1", domain.Document{Title: fmt.Sprintf("v%d", i+1), Content: prose(700)})
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()

	doc, err := env.store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1+writers), doc.Revision)

	chunks, err := env.store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, len(chunks), env.index.Count("rag_documents"))
}

// --- Delete ---

func TestRAGService_Delete_RemovesEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.ingest(t, domain.Document{Title: "Gone", Content: strings.Repeat("a", 1200)})
	_, err := env.svc.Get(ctx, res.DocumentID) // warm the cache
	require.NoError(t, err)

	del, err := env.svc.Delete(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.True(t, del.Success)

	doc, err := env.svc.Get(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.Zero(t, env.index.Count("rag_documents"))

	events := env.bus.published("rag-document-delete")
	require.Len(t, events, 1)
	var p domain.DeletionPayload
	require.NoError(t, events[0].Decode(&p))
	assert.Equal(t, res.DocumentID, p.DocumentID)

	again, err := env.svc.Delete(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.False(t, again.Success)
}

// --- Search ---

func TestRAGService_Search(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	policy := env.ingest(t, domain.Document{Title: "Leave policy", DocumentType: domain.DocumentTypePolicy,
		Content: prose(300, "annual", "leave", "vacation", "days", "policy")})
	env.ingest(t, domain.Document{Title: "Printer FAQ", DocumentType: domain.DocumentTypeFAQ,
		Content: prose(300, "printer", "toner", "paper", "jam")})

	resp, err := env.svc.Search(ctx, domain.SearchQuery{Query: "annual leave vacation days", SimilarityThreshold: domain.Float64(0.1)})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, policy.DocumentID, resp.Results[0].DocumentID)
	assert.Equal(t, "rag_policies", resp.Results[0].Collection)
	assert.Equal(t, len(resp.Results), resp.TotalResults)
	assert.False(t, resp.Cached)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Score, 0.1)
	}

	assert.Len(t, env.bus.published("rag-document-search"), 1)
}

func TestRAGService_Search_DefaultThresholdKeepsOnlyMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	match := env.ingest(t, domain.Document{Title: "Stock alerts",
		Content: "Inventory shortage: report every inventory shortage to the warehouse lead."})
	env.ingest(t, domain.Document{Title: "Holidays",
		Content: "Quarterly holiday schedule for the sales office in Berlin."})

	resp, err := env.svc.Search(ctx, domain.SearchQuery{
		Query:               "inventory shortage",
		MaxResults:          5,
		SimilarityThreshold: domain.Float64(0.7),
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, match.DocumentID, resp.Results[0].DocumentID)
	assert.GreaterOrEqual(t, resp.Results[0].Score, 0.7)
}

func TestRAGService_Search_FilterByType(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, domain.Document{Title: "A", DocumentType: domain.DocumentTypePolicy, Content: prose(200, "shared", "words")})
	faq := env.ingest(t, domain.Document{Title: "B", DocumentType: domain.DocumentTypeFAQ, Content: prose(200, "shared", "words")})

	filter, err := domain.NewFilter("document_type", domain.OpEqual, "faq")
	require.NoError(t, err)
	resp, err := env.svc.Search(context.Background(), domain.SearchQuery{
		Query:               "shared words",
		Filters:             []domain.SearchFilter{filter},
		SimilarityThreshold: domain.Float64(0),
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Equal(t, faq.DocumentID, r.DocumentID)
	}
}

func TestRAGService_Search_ThresholdAndLimit(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, domain.Document{Title: "Long", Content: strings.Repeat("alpha beta gamma ", 200)})

	resp, err := env.svc.Search(context.Background(), domain.SearchQuery{
		Query:               "zeta omega",
		SimilarityThreshold: domain.Float64(0.95),
	})
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.TotalResults)

	resp, err = env.svc.Search(context.Background(), domain.SearchQuery{
		Query:               "alpha beta",
		MaxResults:          2,
		SimilarityThreshold: domain.Float64(0),
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestRAGService_Search_CachesUntilWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.ingest(t, domain.Document{Title: "One", Content: prose(200, "cache", "me")})
	q := domain.SearchQuery{Query: "cache me", SimilarityThreshold: domain.Float64(0)}

	first, err := env.svc.Search(ctx, q)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := env.svc.Search(ctx, q)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	require.Len(t, second.Results, len(first.Results))
	for i := range first.Results {
		assert.Equal(t, first.Results[i].ChunkID, second.Results[i].ChunkID)
		assert.Equal(t, first.Results[i].Score, second.Results[i].Score)
	}

	env.ingest(t, domain.Document{Title: "Two", Content: prose(200, "cache", "me", "too")})
	third, err := env.svc.Search(ctx, q)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Greater(t, third.TotalResults, first.TotalResults)
}

func TestRAGService_Search_Invalid(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Search(context.Background(), domain.SearchQuery{Query: "  "})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRAGService_Search_MissingCollectionIsEmpty(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.svc.Search(context.Background(), domain.SearchQuery{Query: "anything", CollectionName: "nope"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestRAGService_Context(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, domain.Document{Title: "Guide", Content: prose(1200, "install", "the", "agent")})

	text, err := env.svc.Context(context.Background(), domain.SearchQuery{Query: "install agent", SimilarityThreshold: domain.Float64(0)}, 300)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
	assert.LessOrEqual(t, EstimateTokens(text), 300)
	assert.Contains(t, text, "install")
}

func TestRAGService_List(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, domain.Document{ID: "a", Title: "A", Content: prose(50)})
	env.ingest(t, domain.Document{ID: "b", Title: "B", Content: prose(50)})

	docs, err := env.svc.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = env.svc.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

// --- Partial writes ---

func TestRAGService_Ingest_StoreFailureRemovesVectors(t *testing.T) {
	env := newTestEnv(t)
	env.store.saveErr = domain.NewBackendError(domain.ErrDocumentStoreUnavailable, "save", errors.New("disk full"))

	res, err := env.svc.Ingest(context.Background(), domain.Document{Title: "T", Content: prose(600)}, domain.IngestOptions{})
	require.Error(t, err)
	assert.False(t, res.Success)

	var pw *domain.PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, "document_store", pw.Stage)
	assert.True(t, pw.RolledBack)
	assert.ErrorIs(t, err, domain.ErrPartialWrite)
	assert.True(t, domain.IsRetryable(err))
	assert.Zero(t, env.index.Count("rag_documents"))
}

func TestRAGService_Ingest_IndexFailureLeavesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.index.failUpserts(domain.NewBackendError(domain.ErrVectorIndexUnavailable, "upsert", errors.New("refused")))

	_, err := env.svc.Ingest(context.Background(), domain.Document{Title: "T", Content: prose(600)}, domain.IngestOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVectorIndexUnavailable)
	assert.NotErrorIs(t, err, domain.ErrPartialWrite)

	stats, err := env.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
}

func TestRAGService_Update_IndexFailureRestoresOldVectors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.ingest(t, domain.Document{ID: "doc-1", Title: "v1", Content: strings.Repeat("a", 1200)})

	env.index.failUpserts(errors.New("upsert refused"))
	res, err := env.svc.Update(ctx, "doc-1", domain.Document{Title: "v2", Content: prose(100)})
	require.Error(t, err)
	assert.False(t, res.Success)

	var pw *domain.PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, "vector_upsert", pw.Stage)
	// The restore goes through the same failing upsert.
	assert.False(t, pw.RolledBack)

	env.index.failUpserts(nil)
	res, err = env.svc.Update(ctx, "doc-1", domain.Document{Title: "v2", Content: prose(100)})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, env.index.Count("rag_documents"))
}

func TestRAGService_Update_StoreFailureRestoresOldVectors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.ingest(t, domain.Document{ID: "doc-1", Title: "v1", Content: strings.Repeat("a", 1200)})

	env.store.saveErr = errors.New("write failed")
	_, err := env.svc.Update(ctx, "doc-1", domain.Document{Title: "v2", Content: prose(100)})
	require.Error(t, err)

	var pw *domain.PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, "document_store", pw.Stage)
	assert.True(t, pw.RolledBack)
	assert.Equal(t, 3, env.index.Count("rag_documents"))

	doc, err := env.store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "v1", doc.Title)
}

func TestRAGService_Delete_IndexFailureRestoresDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.ingest(t, domain.Document{Title: "Keep", Content: prose(300)})

	env.index.failDeletes(errors.New("delete refused"))
	del, err := env.svc.Delete(ctx, res.DocumentID)
	require.Error(t, err)
	assert.False(t, del.Success)

	var pw *domain.PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, "vector_delete", pw.Stage)
	assert.True(t, pw.RolledBack)

	doc, err := env.store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "Keep", doc.Title)
}

func TestRAGService_PublishFailureDoesNotFailWrite(t *testing.T) {
	env := newTestEnv(t)
	env.bus.err = domain.ErrEventBusUnavailable

	res, err := env.svc.Ingest(context.Background(), domain.Document{Title: "T", Content: prose(100)}, domain.IngestOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRAGService_NextUpdatedAtIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time { return fixed }

	assert.Equal(t, fixed.Add(time.Microsecond), env.svc.nextUpdatedAt(fixed))
	assert.Equal(t, fixed, env.svc.nextUpdatedAt(fixed.Add(-time.Hour)))
}
