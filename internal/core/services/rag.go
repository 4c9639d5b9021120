package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driving"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
)

// Ensure RAGService implements the interface.
var _ driving.RAGService = (*RAGService)(nil)

var tracer = otel.Tracer("github.com/azad25/erp-ai-copilot-sub000/internal/core/services")

// errNoContent is reported when a document yields no chunks.
const errNoContent = "document has no indexable content"

// Options tunes the RAG service.
type Options struct {
	CollectionPrefix    string
	MaxResults          int
	SimilarityThreshold float64
	// AsyncThreshold is the content length above which Ingest runs in the background.
	AsyncThreshold int
	Workers        int
	// Timeout bounds each document store and vector index call.
	Timeout          time.Duration
	DocumentCacheTTL time.Duration
	SearchCacheTTL   time.Duration
	Topics           domain.Topics
}

// DefaultOptions returns the standard service options.
func DefaultOptions() Options {
	return Options{
		CollectionPrefix:    "rag",
		MaxResults:          10,
		SimilarityThreshold: 0.7,
		AsyncThreshold:      10000,
		Workers:             4,
		Timeout:             10 * time.Second,
		DocumentCacheTTL:    time.Hour,
		SearchCacheTTL:      30 * time.Minute,
		Topics:              domain.DefaultTopics(),
	}
}

// RAGService owns the consistency contract between the document store,
// the vector index and the caches.
type RAGService struct {
	store    driven.DocumentStore
	index    driven.VectorIndex
	embedder driven.EmbeddingService
	opts     Options
	tuning   atomic.Pointer[Tuning]

	kv          driven.KeyValueCache
	docCache    *DocumentCache
	searchCache *SearchCache
	events      driven.EventBus
	metrics     driven.MetricsRecorder

	locks      *keyedMutex
	pool       *workerPool
	supervisor *Supervisor
	ensured    sync.Map // collection name -> struct{}
	now        func() time.Time
}

// NewRAGService creates the orchestrator. Caches, events and metrics are
// optional and attached with the Set methods before first use.
func NewRAGService(
	store driven.DocumentStore,
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	processor *DocumentProcessor,
	opts Options,
) *RAGService {
	defaults := DefaultOptions()
	if opts.CollectionPrefix == "" {
		opts.CollectionPrefix = defaults.CollectionPrefix
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaults.MaxResults
	}
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.DocumentCacheTTL <= 0 {
		opts.DocumentCacheTTL = defaults.DocumentCacheTTL
	}
	if opts.SearchCacheTTL <= 0 {
		opts.SearchCacheTTL = defaults.SearchCacheTTL
	}
	if opts.Topics == (domain.Topics{}) {
		opts.Topics = defaults.Topics
	}

	s := &RAGService{
		store:    store,
		index:    index,
		embedder: embedder,
		opts:     opts,
		metrics:  nopMetrics{},
		locks:    newKeyedMutex(),
		pool:     newWorkerPool(opts.Workers, 0),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.tuning.Store(&Tuning{
		MaxResults:          opts.MaxResults,
		SimilarityThreshold: opts.SimilarityThreshold,
		AsyncThreshold:      opts.AsyncThreshold,
		Processor:           processor,
	})
	s.docCache = NewDocumentCache(nil, opts.DocumentCacheTTL, s.metrics)
	s.searchCache = NewSearchCache(nil, opts.SearchCacheTTL, s.metrics)
	return s
}

// Tuning holds the settings that can change while the service runs.
type Tuning struct {
	MaxResults          int
	SimilarityThreshold float64
	AsyncThreshold      int
	Processor           *DocumentProcessor
}

// Tune replaces the runtime settings. Zero values keep the current setting;
// in-flight operations finish with the settings they started with.
func (s *RAGService) Tune(t Tuning) {
	cur := s.tuned()
	if t.MaxResults <= 0 {
		t.MaxResults = cur.MaxResults
	}
	if t.Processor == nil {
		t.Processor = cur.Processor
	}
	s.tuning.Store(&t)
	logger.Info("settings reloaded: max results %d, threshold %.2f, async threshold %d",
		t.MaxResults, t.SimilarityThreshold, t.AsyncThreshold)
}

func (s *RAGService) tuned() *Tuning {
	return s.tuning.Load()
}

// SetCache enables the document and search caches on kv.
func (s *RAGService) SetCache(kv driven.KeyValueCache) {
	s.kv = kv
	s.docCache = NewDocumentCache(kv, s.opts.DocumentCacheTTL, s.metrics)
	s.searchCache = NewSearchCache(kv, s.opts.SearchCacheTTL, s.metrics)
}

// SetEventBus enables event publishing.
func (s *RAGService) SetEventBus(bus driven.EventBus) {
	s.events = bus
}

// SetMetrics attaches a metrics recorder.
func (s *RAGService) SetMetrics(m driven.MetricsRecorder) {
	if m == nil {
		m = nopMetrics{}
	}
	s.metrics = m
	s.SetCache(s.kv)
}

// Options returns the effective options.
func (s *RAGService) Options() Options {
	return s.opts
}

// DefaultCollections returns one collection per document type.
func (s *RAGService) DefaultCollections() []string {
	types := domain.DocumentTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.CollectionName(s.opts.CollectionPrefix)
	}
	return names
}

// Start ensures the default collections exist.
func (s *RAGService) Start(ctx context.Context) error {
	for _, name := range s.DefaultCollections() {
		if err := s.ensureCollection(ctx, name); err != nil {
			return err
		}
	}
	logger.Info("rag service ready: %d collections, embedding model %s (%d dims)",
		len(s.DefaultCollections()), s.embedder.ModelName(), s.embedder.Dimensions())
	return nil
}

// Close drains background ingestion and stops event consumers.
func (s *RAGService) Close(ctx context.Context) error {
	if s.supervisor != nil {
		s.supervisor.Stop()
	}
	return s.pool.Close(ctx)
}

func (s *RAGService) ensureCollection(ctx context.Context, name string) error {
	if _, ok := s.ensured.Load(name); ok {
		return nil
	}
	cctx, cancel := s.call(ctx)
	defer cancel()
	if err := s.index.EnsureCollection(cctx, name, s.embedder.Dimensions(), s.embedder.Distance()); err != nil {
		return fmt.Errorf("ensure collection %s: %w", name, err)
	}
	s.ensured.Store(name, struct{}{})
	return nil
}

// call bounds a single store or index call.
func (s *RAGService) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.Timeout)
}

func (s *RAGService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "rag."+name, trace.WithAttributes(attrs...))
}

// finish records the outcome of an operation on its span and in metrics.
func (s *RAGService) finish(span trace.Span, op, outcome string, started time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, domain.ErrInvalidInput) {
			outcome = "error"
		}
	}
	span.SetAttributes(attribute.String("rag.outcome", outcome))
	span.End()
	s.metrics.ObserveOperation(op, outcome, time.Since(started))
}

// Ingest processes, embeds, indexes and stores a document. Large documents,
// or any document when opts.Async is set, are handed to a background worker.
func (s *RAGService) Ingest(ctx context.Context, doc domain.Document, opts domain.IngestOptions) (result domain.IngestResult, err error) {
	started := time.Now()
	ctx, span := s.startSpan(ctx, "Ingest", attribute.String("document.id", doc.ID))
	outcome := "ok"
	defer func() { s.finish(span, "ingest", outcome, started, err) }()

	doc.Metadata = domain.CloneMetadata(doc.Metadata)
	if verr := doc.Validate(); verr != nil {
		outcome = "invalid"
		return domain.IngestResult{DocumentID: doc.ID, Error: verr.Error()}, nil
	}
	tuning := s.tuned()
	tuning.Processor.Normalize(&doc)
	span.SetAttributes(attribute.String("document.id", doc.ID))

	async := tuning.AsyncThreshold > 0 && utf8.RuneCountInString(doc.Content) > tuning.AsyncThreshold
	if opts.Async != nil {
		async = *opts.Async
	}
	if async {
		outcome = "queued"
		job := doc
		err = s.pool.Submit(ctx, "ingest "+doc.ID, func(ctx context.Context) error {
			res, err := s.ingest(ctx, &job)
			if err == nil && !res.Success {
				err = errors.New(res.Error)
			}
			return err
		})
		if err != nil {
			return domain.IngestResult{DocumentID: doc.ID, Error: err.Error()}, err
		}
		logger.Info("ingest %s queued (%d chars)", doc.ID, utf8.RuneCountInString(doc.Content))
		return domain.IngestResult{Success: true, DocumentID: doc.ID, Async: true}, nil
	}

	result, err = s.ingest(ctx, &doc)
	if err == nil && !result.Success {
		outcome = "rejected"
	}
	return result, err
}

// ingest runs the whole write path inline.
func (s *RAGService) ingest(ctx context.Context, doc *domain.Document) (domain.IngestResult, error) {
	unlock := s.locks.Lock(doc.ID)
	defer unlock()

	existing, err := s.lookup(ctx, doc.ID)
	if err != nil {
		return domain.IngestResult{DocumentID: doc.ID, Error: err.Error()}, err
	}
	if existing != nil {
		// Re-ingesting an id replaces the document but keeps its history.
		doc.CreatedAt = existing.CreatedAt
		doc.UpdatedAt = s.nextUpdatedAt(existing.UpdatedAt)
	}

	chunks, err := s.tuned().Processor.Process(ctx, doc)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return domain.IngestResult{DocumentID: doc.ID, Error: err.Error()}, nil
		}
		return domain.IngestResult{DocumentID: doc.ID, Error: err.Error()}, err
	}
	if len(chunks) == 0 {
		logger.Warn("ingest %s: %s", doc.ID, errNoContent)
		zero := 0
		return domain.IngestResult{DocumentID: doc.ID, ChunksCreated: &zero, Error: errNoContent}, nil
	}

	ids, err := s.commit(ctx, doc, chunks, existing)
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return domain.IngestResult{DocumentID: doc.ID, Error: err.Error()}, nil
		}
		return domain.IngestResult{DocumentID: doc.ID, Error: err.Error()}, err
	}

	s.docCache.Set(ctx, doc)
	s.searchCache.InvalidateForDocument(ctx, doc.ID)
	s.metrics.ObserveChunks(len(chunks))
	s.publish(ctx, domain.EventIngestion, doc)

	logger.Info("ingested %s %q: %d chunks into %s", doc.ID, doc.Title, len(chunks), doc.Collection(s.opts.CollectionPrefix))
	n := len(chunks)
	return domain.IngestResult{Success: true, DocumentID: doc.ID, ChunksCreated: &n, VectorIDs: ids}, nil
}

// Get returns a document by id, or (nil, nil) when it does not exist.
func (s *RAGService) Get(ctx context.Context, id string) (doc *domain.Document, err error) {
	started := time.Now()
	ctx, span := s.startSpan(ctx, "Get", attribute.String("document.id", id))
	outcome := "ok"
	defer func() { s.finish(span, "get", outcome, started, err) }()

	if id == "" {
		outcome = "invalid"
		return nil, nil
	}
	if cached, ok := s.docCache.Get(ctx, id); ok {
		outcome = "cached"
		return cached, nil
	}

	doc, err = s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		outcome = "not_found"
		return nil, nil
	}
	s.docCache.Set(ctx, doc)
	return doc, nil
}

// lookup reads the store, mapping not-found to nil.
func (s *RAGService) lookup(ctx context.Context, id string) (*domain.Document, error) {
	cctx, cancel := s.call(ctx)
	defer cancel()
	doc, err := s.store.GetDocument(cctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// Update replaces the content and metadata of an existing document.
// Unset Version, DocumentType and AccessLevel keep their stored values.
// A non-zero doc.Revision must match the stored revision.
func (s *RAGService) Update(ctx context.Context, id string, doc domain.Document) (result domain.MutationResult, err error) {
	started := time.Now()
	ctx, span := s.startSpan(ctx, "Update", attribute.String("document.id", id))
	outcome := "ok"
	defer func() { s.finish(span, "update", outcome, started, err) }()

	fail := func(o, msg string) (domain.MutationResult, error) {
		outcome = o
		return domain.MutationResult{DocumentID: id, Error: msg}, nil
	}
	if id == "" {
		return fail("invalid", domain.NewValidationError("id", "document id is required").Error())
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	existing, err := s.lookup(ctx, id)
	if err != nil {
		return domain.MutationResult{DocumentID: id, Error: err.Error()}, err
	}
	if existing == nil {
		logger.Warn("update %s: document not found", id)
		return fail("not_found", fmt.Sprintf("document %s not found", id))
	}
	if doc.Revision > 0 && doc.Revision != existing.Revision {
		return fail("conflict", fmt.Sprintf("%v: document %s is at revision %d, not %d",
			domain.ErrVersionConflict, id, existing.Revision, doc.Revision))
	}

	next := doc
	next.ID = id
	next.Metadata = domain.CloneMetadata(doc.Metadata)
	next.CreatedAt = existing.CreatedAt
	next.UpdatedAt = s.nextUpdatedAt(existing.UpdatedAt)
	if next.Version == "" {
		next.Version = existing.Version
	}
	if next.DocumentType == "" {
		next.DocumentType = existing.DocumentType
	}
	if next.AccessLevel == "" {
		next.AccessLevel = existing.AccessLevel
	}
	processor := s.tuned().Processor
	processor.Refresh(&next, existing.Metadata)

	chunks, err := processor.Process(ctx, &next)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return fail("invalid", err.Error())
		}
		return domain.MutationResult{DocumentID: id, Error: err.Error()}, err
	}
	if len(chunks) == 0 {
		return fail("rejected", errNoContent)
	}

	if _, err := s.commit(ctx, &next, chunks, existing); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return fail("conflict", err.Error())
		}
		return domain.MutationResult{DocumentID: id, Error: err.Error()}, err
	}

	s.docCache.Delete(ctx, id)
	s.searchCache.InvalidateForDocument(ctx, id)
	s.metrics.ObserveChunks(len(chunks))
	s.publish(ctx, domain.EventUpdate, &next)

	logger.Info("updated %s to revision %d: %d chunks", id, next.Revision, len(chunks))
	return domain.MutationResult{Success: true, DocumentID: id}, nil
}

// Delete removes a document, its vectors and any cached copies.
func (s *RAGService) Delete(ctx context.Context, id string) (result domain.MutationResult, err error) {
	started := time.Now()
	ctx, span := s.startSpan(ctx, "Delete", attribute.String("document.id", id))
	outcome := "ok"
	defer func() { s.finish(span, "delete", outcome, started, err) }()

	if id == "" {
		outcome = "invalid"
		return domain.MutationResult{Error: domain.NewValidationError("id", "document id is required").Error()}, nil
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	existing, err := s.lookup(ctx, id)
	if err != nil {
		return domain.MutationResult{DocumentID: id, Error: err.Error()}, err
	}
	if existing == nil {
		logger.Warn("delete %s: document not found", id)
		outcome = "not_found"
		return domain.MutationResult{DocumentID: id, Error: fmt.Sprintf("document %s not found", id)}, nil
	}
	chunks, err := s.chunksOf(ctx, id)
	if err != nil {
		return domain.MutationResult{DocumentID: id, Error: err.Error()}, err
	}

	cctx, cancel := s.call(ctx)
	err = s.store.DeleteDocument(cctx, id)
	cancel()
	if errors.Is(err, domain.ErrNotFound) {
		outcome = "not_found"
		return domain.MutationResult{DocumentID: id, Error: fmt.Sprintf("document %s not found", id)}, nil
	}
	if err != nil {
		err = fmt.Errorf("delete document %s: %w", id, err)
		return domain.MutationResult{DocumentID: id, Error: err.Error()}, err
	}

	if verr := s.removeVectors(ctx, existing, chunks); verr != nil {
		// Put the record back so a retry can find and finish the delete.
		cctx, cancel := s.call(ctx)
		restoreErr := s.store.SaveDocument(cctx, existing, chunks, 0)
		cancel()
		if restoreErr != nil {
			logger.Error("delete %s: restore after vector failure: %v", id, restoreErr)
		}
		err = &domain.PartialWriteError{DocumentID: id, Stage: "vector_delete", Err: verr, RolledBack: restoreErr == nil}
		return domain.MutationResult{DocumentID: id, Error: err.Error()}, err
	}

	s.docCache.Delete(ctx, id)
	s.searchCache.InvalidateForDocument(ctx, id)
	s.publish(ctx, domain.EventDeletion, domain.DeletionPayload{DocumentID: id})

	logger.Info("deleted %s (%d chunks)", id, len(chunks))
	return domain.MutationResult{Success: true, DocumentID: id}, nil
}

// Search runs a semantic similarity query. No hits is an empty result.
func (s *RAGService) Search(ctx context.Context, query domain.SearchQuery) (resp *domain.SearchResponse, err error) {
	started := time.Now()
	ctx, span := s.startSpan(ctx, "Search", attribute.String("query", query.Query))
	outcome := "ok"
	defer func() { s.finish(span, "search", outcome, started, err) }()

	if err := query.Validate(); err != nil {
		outcome = "invalid"
		return nil, err
	}
	tuning := s.tuned()
	if query.MaxResults <= 0 {
		query.MaxResults = tuning.MaxResults
	}
	if query.SimilarityThreshold == nil {
		query.SimilarityThreshold = domain.Float64(tuning.SimilarityThreshold)
	}

	key := s.searchCache.Key(query)
	gen := s.searchCache.Generation()
	if cached, ok := s.searchCache.Get(ctx, key); ok {
		outcome = "cached"
		cached.Cached = true
		cached.SearchTimeMs = elapsedMs(started)
		logger.Debug("search %q: %d cached results", query.Query, len(cached.Results))
		return cached, nil
	}

	vector, err := s.embedder.Embed(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.searchCollections(ctx, query, vector)
	if err != nil {
		return nil, err
	}

	resp = &domain.SearchResponse{
		Query:        query.Query,
		Results:      results,
		TotalResults: len(results),
		SearchTimeMs: elapsedMs(started),
	}
	span.SetAttributes(attribute.Int("rag.results", len(results)))
	s.searchCache.Set(ctx, key, resp, gen)
	s.publish(ctx, domain.EventSearch, domain.SearchPayload{
		Query:        query,
		TotalResults: resp.TotalResults,
		SearchTimeMs: resp.SearchTimeMs,
	})

	logger.Debug("search %q: %d results in %.1fms", query.Query, len(results), resp.SearchTimeMs)
	return resp, nil
}

// searchCollections queries every target collection concurrently and merges by score.
func (s *RAGService) searchCollections(ctx context.Context, query domain.SearchQuery, vector []float32) ([]domain.SearchResult, error) {
	collections := s.collectionsFor(query)
	perCollection := make([][]domain.SearchResult, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range collections {
		g.Go(func() error {
			cctx, cancel := s.call(gctx)
			defer cancel()
			hits, err := s.index.Search(cctx, name, vector, query.MaxResults, *query.SimilarityThreshold, query.Filters)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("search %s: %w", name, err)
			}
			out := make([]domain.SearchResult, 0, len(hits))
			for _, h := range hits {
				out = append(out, hitToResult(name, h))
			}
			perCollection[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, query.MaxResults)
	for _, rs := range perCollection {
		results = append(results, rs...)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > query.MaxResults {
		results = results[:query.MaxResults]
	}
	return results, nil
}

// collectionsFor resolves the explicit collection, the document_type filter,
// or every default collection.
func (s *RAGService) collectionsFor(query domain.SearchQuery) []string {
	if query.CollectionName != "" {
		return []string{query.CollectionName}
	}
	if t, ok := query.DocumentTypeFilter(); ok {
		return []string{t.CollectionName(s.opts.CollectionPrefix)}
	}
	return s.DefaultCollections()
}

// Context searches and merges the hits into a token-bounded context string.
func (s *RAGService) Context(ctx context.Context, query domain.SearchQuery, maxTokens int) (string, error) {
	resp, err := s.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return MergeResults(resp.Results, maxTokens), nil
}

// List returns stored documents, most recently updated first.
func (s *RAGService) List(ctx context.Context, limit int) ([]domain.Document, error) {
	cctx, cancel := s.call(ctx)
	defer cancel()
	docs, err := s.store.ListDocuments(cctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Stats returns stored document and chunk counts.
func (s *RAGService) Stats(ctx context.Context) (domain.Stats, error) {
	cctx, cancel := s.call(ctx)
	defer cancel()
	stats, err := s.store.Stats(cctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// commit makes chunks the only indexed content of doc and stores doc.
// Old vectors are removed before new ones are written; every failure after
// the first write is compensated and reported as a PartialWriteError.
func (s *RAGService) commit(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, existing *domain.Document) ([]string, error) {
	collection := doc.Collection(s.opts.CollectionPrefix)
	if err := s.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].Collection = collection
	}

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	var oldChunks []domain.Chunk
	expected := int64(0)
	if existing != nil {
		expected = existing.Revision
		if oldChunks, err = s.chunksOf(ctx, existing.ID); err != nil {
			return nil, err
		}
		if err := s.removeVectors(ctx, existing, oldChunks); err != nil {
			return nil, s.compensate(ctx, doc.ID, "vector_delete", err, nil, existing, oldChunks)
		}
	}

	ids, err := s.upsertChunks(ctx, doc, chunks, vectors)
	if err != nil {
		if existing == nil {
			// Nothing else was written yet; clean up and report the index failure.
			if rbErr := s.removeVectors(ctx, doc, chunks); rbErr != nil {
				return nil, &domain.PartialWriteError{DocumentID: doc.ID, Stage: "vector_upsert", Err: err}
			}
			return nil, err
		}
		return nil, s.compensate(ctx, doc.ID, "vector_upsert", err, chunks, existing, oldChunks)
	}

	cctx, cancel := s.call(ctx)
	err = s.store.SaveDocument(cctx, doc, chunks, expected)
	cancel()
	if err != nil {
		err = fmt.Errorf("save document %s: %w", doc.ID, err)
		perr := s.compensate(ctx, doc.ID, "document_store", err, chunks, existing, oldChunks)
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		return nil, perr
	}
	return ids, nil
}

// compensate removes newly written vectors and restores the previous ones.
func (s *RAGService) compensate(ctx context.Context, id, stage string, cause error,
	written []domain.Chunk, existing *domain.Document, previous []domain.Chunk) error {
	var errs []error
	if len(written) > 0 {
		errs = append(errs, s.removeVectors(ctx, nil, written))
	}
	if existing != nil && len(previous) > 0 {
		errs = append(errs, s.reindex(ctx, existing, previous))
	}
	rbErr := errors.Join(errs...)
	if rbErr != nil {
		logger.Error("document %s: rollback after %s failure incomplete: %v", id, stage, rbErr)
	} else {
		logger.Warn("document %s: rolled back after %s failure: %v", id, stage, cause)
	}
	return &domain.PartialWriteError{DocumentID: id, Stage: stage, Err: cause, RolledBack: rbErr == nil}
}

// reindex writes stored chunks back into the index.
func (s *RAGService) reindex(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}
	byCollection := groupByCollection(doc, chunks, s.opts.CollectionPrefix)
	for collection, group := range byCollection {
		points := make([]driven.VectorPoint, len(group))
		for i, idx := range group {
			points[i] = driven.VectorPoint{ID: chunks[idx].ID, Vector: vectors[idx], Payload: chunkPayload(doc, chunks[idx])}
		}
		cctx, cancel := s.call(ctx)
		_, err := s.index.UpsertBatch(cctx, collection, points)
		cancel()
		if err != nil {
			return fmt.Errorf("reindex %s: %w", collection, err)
		}
	}
	return nil
}

func (s *RAGService) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.NewBackendError(domain.ErrEmbeddingUnavailable, "embed",
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}
	return vectors, nil
}

func (s *RAGService) upsertChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) ([]string, error) {
	points := make([]driven.VectorPoint, len(chunks))
	for i, c := range chunks {
		points[i] = driven.VectorPoint{ID: c.ID, Vector: vectors[i], Payload: chunkPayload(doc, c)}
	}
	cctx, cancel := s.call(ctx)
	defer cancel()
	ids, err := s.index.UpsertBatch(cctx, chunks[0].Collection, points)
	if err != nil {
		return nil, fmt.Errorf("upsert %d vectors: %w", len(points), err)
	}
	return ids, nil
}

// removeVectors deletes the vectors of chunks. With no chunk records it
// falls back to deleting by document id across the default collections.
func (s *RAGService) removeVectors(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		if doc == nil {
			return nil
		}
		var errs []error
		for _, name := range s.DefaultCollections() {
			cctx, cancel := s.call(ctx)
			err := s.index.DeleteByDocument(cctx, name, doc.ID)
			cancel()
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				errs = append(errs, fmt.Errorf("delete vectors in %s: %w", name, err))
			}
		}
		return errors.Join(errs...)
	}

	for collection, group := range groupByCollection(doc, chunks, s.opts.CollectionPrefix) {
		ids := make([]string, len(group))
		for i, idx := range group {
			ids[i] = chunks[idx].ID
		}
		cctx, cancel := s.call(ctx)
		_, err := s.index.DeleteByIDs(cctx, collection, ids)
		cancel()
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("delete %d vectors in %s: %w", len(ids), collection, err)
		}
	}
	return nil
}

func (s *RAGService) chunksOf(ctx context.Context, id string) ([]domain.Chunk, error) {
	cctx, cancel := s.call(ctx)
	defer cancel()
	chunks, err := s.store.GetChunks(cctx, id)
	if err != nil {
		return nil, fmt.Errorf("get chunks %s: %w", id, err)
	}
	return chunks, nil
}

// nextUpdatedAt returns now, or just after prev if the clock has not moved past it.
func (s *RAGService) nextUpdatedAt(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

// publish sends an event. Failures are logged and never returned.
func (s *RAGService) publish(ctx context.Context, et domain.EventType, payload any) {
	if s.events == nil {
		return
	}
	topic := s.opts.Topics.For(et)
	event, err := domain.NewEvent(uuid.NewString(), et, payload)
	if err != nil {
		logger.Warn("build %s event: %v", et, err)
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()
	if err := s.events.Publish(pctx, topic, event); err != nil {
		logger.Warn("publish %s event to %s: %v", et, topic, err)
		s.metrics.ObserveEvent(topic, "publish_failed")
		return
	}
	s.metrics.ObserveEvent(topic, "published")
}

// chunkPayload is the copy of chunk data stored next to its vector.
func chunkPayload(doc *domain.Document, c domain.Chunk) map[string]any {
	return map[string]any{
		"document_id":   doc.ID,
		"chunk_id":      c.ID,
		"document_type": string(doc.DocumentType),
		"access_level":  string(doc.AccessLevel),
		"title":         doc.Title,
		"content":       c.Content,
		"chunk_index":   c.Index,
		"position":      string(c.Position),
		"metadata":      domain.CloneMetadata(c.Metadata),
	}
}

func hitToResult(collection string, h driven.VectorHit) domain.SearchResult {
	r := domain.SearchResult{ChunkID: h.ID, Score: h.Score, Collection: collection}
	r.DocumentID, _ = h.Payload["document_id"].(string)
	r.Content, _ = h.Payload["content"].(string)
	if id, ok := h.Payload["chunk_id"].(string); ok && id != "" {
		r.ChunkID = id
	}
	if md, ok := h.Payload["metadata"].(map[string]any); ok {
		r.Metadata = domain.CloneMetadata(md)
	}
	return r
}

// groupByCollection maps collection name to chunk indexes. Chunks without a
// recorded collection belong to the document's collection.
func groupByCollection(doc *domain.Document, chunks []domain.Chunk, prefix string) map[string][]int {
	fallback := ""
	if doc != nil {
		fallback = doc.Collection(prefix)
	}
	groups := make(map[string][]int)
	for i, c := range chunks {
		name := c.Collection
		if name == "" {
			name = fallback
		}
		groups[name] = append(groups[name], i)
	}
	return groups
}

func elapsedMs(since time.Time) float64 {
	return float64(time.Since(since).Microseconds()) / 1000
}
