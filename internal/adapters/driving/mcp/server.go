// Package mcp serves the engine's document operations over the Model Context
// Protocol, so assistants can search, ingest and manage documents.
package mcp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driving"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
)

// ErrNoService is returned by NewServer without a RAG service.
var ErrNoService = errors.New("mcp: rag service is required")

const shutdownTimeout = 5 * time.Second

// Server exposes a RAG service as MCP tools and resources.
type Server struct {
	rag    driving.RAGService
	server *mcp.Server
}

// NewServer registers the document tools and resources for rag.
// version is reported to clients during initialisation.
func NewServer(rag driving.RAGService, version string) (*Server, error) {
	if rag == nil {
		return nil, ErrNoService
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{
		rag:    rag,
		server: mcp.NewServer(&mcp.Implementation{Name: "ragengine", Version: version}, nil),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Serve speaks JSON-RPC over stdin/stdout until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP endpoint.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.server }, nil)
}

// ListenAndServe serves Handler on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("mcp shutdown: %v", err)
		return err
	}
	return nil
}
