package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	t.Run("requires a service", func(t *testing.T) {
		server, err := NewServer(nil, "1.0.0")
		assert.ErrorIs(t, err, ErrNoService)
		assert.Nil(t, server)
	})

	t.Run("builds handler", func(t *testing.T) {
		server, err := NewServer(&mockRAGService{}, "")
		require.NoError(t, err)
		assert.NotNil(t, server.Handler())
	})
}

func TestServer_HandlerRejectsPlainGet(t *testing.T) {
	server := newTestServer(t, &mockRAGService{})
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))

	assert.GreaterOrEqual(t, rec.Code, 400)
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	server := newTestServer(t, &mockRAGService{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- server.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_ListenAndServeBadAddress(t *testing.T) {
	server := newTestServer(t, &mockRAGService{})
	err := server.ListenAndServe(context.Background(), "256.0.0.1:bad")
	assert.Error(t, err)
}
