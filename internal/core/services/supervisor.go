package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
)

// Supervisor backoff bounds.
const (
	DefaultRestartDelay    = 500 * time.Millisecond
	DefaultMaxRestartDelay = 30 * time.Second
)

// Subscription names a consumer to supervise.
type Subscription struct {
	Topic   string
	GroupID string
	Handler driven.EventHandler
}

// Supervisor keeps event consumers running. When a subscription ends with
// an error it is logged and the consumer subscribes again after a backoff.
type Supervisor struct {
	bus      driven.EventBus
	metrics  driven.MetricsRecorder
	minDelay time.Duration
	maxDelay time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSupervisor creates a supervisor for bus. metrics may be nil.
func NewSupervisor(bus driven.EventBus, metrics driven.MetricsRecorder) *Supervisor {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Supervisor{
		bus:      bus,
		metrics:  metrics,
		minDelay: DefaultRestartDelay,
		maxDelay: DefaultMaxRestartDelay,
	}
}

// SetBackoff overrides the restart delays.
func (s *Supervisor) SetBackoff(minDelay, maxDelay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if minDelay > 0 {
		s.minDelay = minDelay
	}
	if maxDelay >= s.minDelay {
		s.maxDelay = maxDelay
	}
}

// Start launches one goroutine per subscription and returns immediately.
func (s *Supervisor) Start(ctx context.Context, subs ...Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("supervisor already running")
	}
	for _, sub := range subs {
		if sub.Topic == "" || sub.Handler == nil {
			return domain.NewValidationError("subscription", "topic and handler are required")
		}
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	for _, sub := range subs {
		if sub.GroupID == "" {
			sub.GroupID = domain.GroupID(sub.Topic)
		}
		s.wg.Add(1)
		go s.run(ctx, sub)
	}
	return nil
}

// Stop cancels all consumers and waits for them to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Supervisor) run(ctx context.Context, sub Subscription) {
	defer s.wg.Done()

	handler := func(ctx context.Context, e domain.Event) error {
		err := sub.Handler(ctx, e)
		if err != nil {
			s.metrics.ObserveEvent(sub.Topic, "failed")
		} else {
			s.metrics.ObserveEvent(sub.Topic, "consumed")
		}
		return err
	}

	s.mu.Lock()
	minDelay, maxDelay := s.minDelay, s.maxDelay
	s.mu.Unlock()
	delay := minDelay

	for {
		logger.Debug("consumer %s/%s: subscribing", sub.Topic, sub.GroupID)
		started := time.Now()
		err := s.bus.Subscribe(ctx, sub.Topic, sub.GroupID, handler)

		if ctx.Err() != nil || errors.Is(err, domain.ErrClosed) {
			logger.Debug("consumer %s/%s: stopped", sub.Topic, sub.GroupID)
			return
		}

		// A consumer that ran for a while gets a fresh backoff.
		if time.Since(started) > maxDelay {
			delay = minDelay
		}
		logger.Error("consumer %s/%s: %v; restarting in %s", sub.Topic, sub.GroupID, err, delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
