package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

func event(t *testing.T, id string) domain.Event {
	t.Helper()
	e, err := domain.NewEvent(id, domain.EventDeletion, domain.DeletionPayload{DocumentID: "doc-" + id})
	require.NoError(t, err)
	return e
}

// collect subscribes in the background and returns received ids on a channel.
func collect(ctx context.Context, b *Bus, topic, group string) (<-chan string, <-chan error) {
	ids := make(chan string, 100)
	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(ctx, topic, group, func(_ context.Context, e domain.Event) error {
			ids <- e.MessageID
			return nil
		})
	}()
	return ids, done
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func TestBus_DeliversHistoryThenLive(t *testing.T) {
	b := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, b.Publish(ctx, "rag-document-delete", event(t, "1")))

	ids, done := collect(ctx, b, "rag-document-delete", "g1")
	assert.Equal(t, "1", receive(t, ids))

	require.NoError(t, b.Publish(ctx, "rag-document-delete", event(t, "2")))
	assert.Equal(t, "2", receive(t, ids))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestBus_EachGroupGetsEveryEvent(t *testing.T) {
	b := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := collect(ctx, b, "topic", "analytics")
	n, _ := collect(ctx, b, "topic", "notifications")

	require.NoError(t, b.Publish(ctx, "topic", event(t, "x")))
	assert.Equal(t, "x", receive(t, a))
	assert.Equal(t, "x", receive(t, n))
}

func TestBus_SameGroupSharesEvents(t *testing.T) {
	b := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[string]int{}
	handler := func(_ context.Context, e domain.Event) error {
		mu.Lock()
		seen[e.MessageID]++
		mu.Unlock()
		return nil
	}
	for i := 0; i < 3; i++ {
		go func() { _ = b.Subscribe(ctx, "topic", "workers", handler) }()
	}

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, b.Publish(ctx, "topic", event(t, id)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for id, n := range seen {
		assert.Equal(t, 1, n, "event %s delivered %d times", id, n)
	}
}

func TestBus_HandlerErrorRedelivers(t *testing.T) {
	b := New(0)
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "topic", event(t, "1")))

	boom := errors.New("boom")
	err := b.Subscribe(ctx, "topic", "g", func(context.Context, domain.Event) error { return boom })
	assert.ErrorIs(t, err, boom)

	sub, cancel := context.WithCancel(ctx)
	defer cancel()
	ids, _ := collect(sub, b, "topic", "g")
	assert.Equal(t, "1", receive(t, ids))
}

func TestBus_HandlerPanicIsError(t *testing.T) {
	b := New(0)
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "topic", event(t, "1")))

	err := b.Subscribe(ctx, "topic", "g", func(context.Context, domain.Event) error { panic("kaboom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestBus_HandlerCanPublish(t *testing.T) {
	b := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = b.Subscribe(ctx, "in", "relay", func(ctx context.Context, e domain.Event) error {
			return b.Publish(ctx, "out", e)
		})
	}()
	out, _ := collect(ctx, b, "out", "sink")

	require.NoError(t, b.Publish(ctx, "in", event(t, "r")))
	assert.Equal(t, "r", receive(t, out))
}

func TestBus_RetentionAndClose(t *testing.T) {
	b := New(2)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, b.Publish(ctx, "topic", event(t, id)))
	}

	sub, cancel := context.WithCancel(ctx)
	defer cancel()
	ids, done := collect(sub, b, "topic", "late")
	assert.Equal(t, "2", receive(t, ids))
	assert.Equal(t, "3", receive(t, ids))

	require.NoError(t, b.Close())
	assert.ErrorIs(t, <-done, domain.ErrClosed)
	assert.ErrorIs(t, b.Publish(ctx, "topic", event(t, "4")), domain.ErrClosed)
	require.NoError(t, b.Close())
}

func TestBus_NilHandler(t *testing.T) {
	b := New(0)
	assert.ErrorIs(t, b.Subscribe(context.Background(), "t", "g", nil), domain.ErrInvalidInput)
}
