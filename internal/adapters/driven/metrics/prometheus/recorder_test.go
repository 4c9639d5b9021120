package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Operations(t *testing.T) {
	r := New()
	r.ObserveOperation("search", "ok", 12*time.Millisecond)
	r.ObserveOperation("search", "ok", 3*time.Millisecond)
	r.ObserveOperation("search", "error", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.operations.WithLabelValues("search", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("search", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency))
}

func TestRecorder_CacheAndEvents(t *testing.T) {
	r := New()
	r.ObserveCache("document", true)
	r.ObserveCache("document", false)
	r.ObserveCache("document", false)
	r.ObserveEvent("rag-document-ingestion", "published")
	r.ObserveChunks(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.cache.WithLabelValues("document", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cache.WithLabelValues("document", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues("rag-document-ingestion", "published")))

	expected := `
# HELP ragengine_events_total Event bus publishes and deliveries by topic and outcome
# TYPE ragengine_events_total counter
ragengine_events_total{outcome="published",topic="rag-document-ingestion"} 1
`
	require.NoError(t, testutil.CollectAndCompare(r.events, strings.NewReader(expected)))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ObserveChunks(5)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ragengine_document_chunks_count 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
