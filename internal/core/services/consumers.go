package services

import (
	"context"
	"errors"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
)

// Subscriptions returns the inbound consumers for every topic. The engine
// also receives its own events on these topics, so handlers skip documents
// whose stored revision already covers the event.
func (s *RAGService) Subscriptions() []Subscription {
	t := s.opts.Topics
	return []Subscription{
		{Topic: t.Ingested, Handler: s.handleIngestion},
		{Topic: t.Updated, Handler: s.handleUpdate},
		{Topic: t.Deleted, Handler: s.handleDeletion},
		{Topic: t.Searched, Handler: s.handleSearch},
	}
}

// StartConsumers runs the inbound consumers under a supervisor until Close.
func (s *RAGService) StartConsumers(ctx context.Context) error {
	if s.events == nil {
		return errors.New("no event bus configured")
	}
	if s.supervisor == nil {
		s.supervisor = NewSupervisor(s.events, s.metrics)
	}
	return s.supervisor.Start(ctx, s.Subscriptions()...)
}

func (s *RAGService) handleIngestion(ctx context.Context, e domain.Event) error {
	var doc domain.Document
	if err := e.Decode(&doc); err != nil {
		logger.Warn("event %s: %v", e.MessageID, err)
		return nil
	}
	if s.alreadyApplied(ctx, doc) {
		return nil
	}
	doc.Revision = 0

	inline := false
	res, err := s.Ingest(ctx, doc, domain.IngestOptions{Async: &inline})
	if err == nil && !res.Success {
		logger.Warn("event %s: ingest rejected: %s", e.MessageID, res.Error)
	}
	return s.settle(e, err)
}

func (s *RAGService) handleUpdate(ctx context.Context, e domain.Event) error {
	var doc domain.Document
	if err := e.Decode(&doc); err != nil {
		logger.Warn("event %s: %v", e.MessageID, err)
		return nil
	}
	if doc.ID == "" {
		logger.Warn("event %s: update without document id", e.MessageID)
		return nil
	}
	if s.alreadyApplied(ctx, doc) {
		return nil
	}
	doc.Revision = 0

	res, err := s.Update(ctx, doc.ID, doc)
	if err == nil && !res.Success {
		logger.Warn("event %s: update rejected: %s", e.MessageID, res.Error)
	}
	return s.settle(e, err)
}

func (s *RAGService) handleDeletion(ctx context.Context, e domain.Event) error {
	var p domain.DeletionPayload
	if err := e.Decode(&p); err != nil {
		logger.Warn("event %s: %v", e.MessageID, err)
		return nil
	}
	if p.DocumentID == "" {
		logger.Warn("event %s: deletion without document id", e.MessageID)
		return nil
	}

	// A missing document means the delete already happened.
	_, err := s.Delete(ctx, p.DocumentID)
	return s.settle(e, err)
}

func (s *RAGService) handleSearch(_ context.Context, e domain.Event) error {
	var p domain.SearchPayload
	if err := e.Decode(&p); err != nil {
		logger.Warn("event %s: %v", e.MessageID, err)
		return nil
	}
	logger.Debug("search event %s: %q returned %d results in %.1fms",
		e.MessageID, p.Query.Query, p.TotalResults, p.SearchTimeMs)
	return nil
}

// alreadyApplied reports whether the store holds doc at its revision or later.
func (s *RAGService) alreadyApplied(ctx context.Context, doc domain.Document) bool {
	if doc.ID == "" || doc.Revision <= 0 {
		return false
	}
	existing, err := s.lookup(ctx, doc.ID)
	if err != nil || existing == nil {
		return false
	}
	if existing.Revision >= doc.Revision {
		logger.Debug("document %s already at revision %d, skipping event", doc.ID, existing.Revision)
		return true
	}
	return false
}

// settle decides whether a failed event is redelivered.
func (s *RAGService) settle(e domain.Event, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsRetryable(err) {
		return err
	}
	logger.Warn("event %s (%s): dropping after error: %v", e.MessageID, e.MessageType, err)
	return nil
}
