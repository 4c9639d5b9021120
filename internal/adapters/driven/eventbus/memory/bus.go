// Package memory provides an in-process EventBus with consumer groups.
//
// Each topic keeps a bounded log. Every consumer group reads the whole log
// from its own cursor; consumers of the same group take turns, so a group
// sees each event once per successful delivery. A new group starts at the
// oldest retained event.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
)

// Ensure Bus implements the interface.
var _ driven.EventBus = (*Bus)(nil)

// DefaultMaxHistory bounds each topic log.
const DefaultMaxHistory = 10000

type group struct {
	handling sync.Mutex // held while a consumer handles an event; taken before Bus.mu
	cursor   int        // absolute offset of the next event; guarded by Bus.mu
}

type topic struct {
	base   int // absolute offset of events[0]
	events []domain.Event
	groups map[string]*group
	notify chan struct{} // closed and replaced on every publish
}

// Bus is an in-process event bus.
type Bus struct {
	mu         sync.Mutex
	topics     map[string]*topic
	maxHistory int
	closed     chan struct{}
	closeOnce  sync.Once
}

// New creates a bus retaining at most maxHistory events per topic.
func New(maxHistory int) *Bus {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Bus{
		topics:     make(map[string]*topic),
		maxHistory: maxHistory,
		closed:     make(chan struct{}),
	}
}

// topicLocked returns the topic, creating it. Must be called with mu held.
func (b *Bus) topicLocked(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{groups: make(map[string]*group), notify: make(chan struct{})}
		b.topics[name] = t
	}
	return t
}

// Publish appends an event and wakes subscribers.
func (b *Bus) Publish(_ context.Context, name string, event domain.Event) error {
	select {
	case <-b.closed:
		return domain.ErrClosed
	default:
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(name)
	t.events = append(t.events, event)
	if over := len(t.events) - b.maxHistory; over > 0 {
		t.events = append([]domain.Event(nil), t.events[over:]...)
		t.base += over
	}
	close(t.notify)
	t.notify = make(chan struct{})
	return nil
}

// Subscribe delivers events to handler until ctx ends, the bus closes, or
// handler fails. A failed event is redelivered to the next subscriber of the group.
func (b *Bus) Subscribe(ctx context.Context, name, groupID string, handler driven.EventHandler) error {
	if handler == nil {
		return domain.NewValidationError("handler", "handler is required")
	}

	b.mu.Lock()
	t := b.topicLocked(name)
	g, ok := t.groups[groupID]
	if !ok {
		g = &group{cursor: t.base}
		t.groups[groupID] = g
	}
	b.mu.Unlock()

	for {
		event, offset, wait, found := b.next(t, g)
		if !found {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-b.closed:
				return domain.ErrClosed
			case <-wait:
				continue
			}
		}

		g.handling.Lock()
		b.mu.Lock()
		taken := g.cursor != offset
		b.mu.Unlock()
		if taken {
			// Another consumer of the group handled it.
			g.handling.Unlock()
			continue
		}
		err := safeHandle(ctx, handler, event)
		if err == nil {
			b.mu.Lock()
			g.cursor = offset + 1
			b.mu.Unlock()
		}
		g.handling.Unlock()

		if err != nil {
			return fmt.Errorf("handle %s on %s: %w", event.MessageID, name, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// next returns the event at the group cursor, or a channel to wait on.
func (b *Bus) next(t *topic, g *group) (domain.Event, int, <-chan struct{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cursor := g.cursor
	if cursor < t.base {
		logger.Warn("eventbus: group cursor fell behind retention by %d events", t.base-cursor)
		cursor = t.base
		g.cursor = cursor
	}

	idx := cursor - t.base
	if idx < len(t.events) {
		return t.events[idx], cursor, nil, true
	}
	return domain.Event{}, 0, t.notify, false
}

// Close stops all subscribers.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

func safeHandle(ctx context.Context, handler driven.EventHandler, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, event)
}
