// Package redis implements the EventBus on Redis streams.
//
// Each topic is a stream and each subscriber group a Redis consumer group.
// Events stay pending until their handler succeeds, so a subscriber that
// returns an error leaves the event for the next Subscribe call. Entries left
// pending by another consumer of the group, such as an earlier process that
// exited, are claimed once they have been idle for ClaimIdle.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
)

// Ensure Bus implements the interface.
var _ driven.EventBus = (*Bus)(nil)

const (
	// DefaultMaxLen approximately caps each stream.
	DefaultMaxLen = 10000
	// DefaultBlock is how long a read waits before rechecking the context.
	DefaultBlock = time.Second
	// DefaultClaimIdle is how long another consumer's pending entry must sit
	// before Subscribe takes it over.
	DefaultClaimIdle = 30 * time.Second

	eventField = "event"
	batchSize  = 16
)

// Config configures the bus.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Consumer names this instance within its groups. Defaults to host-pid.
	Consumer string
	MaxLen   int64
	Block    time.Duration
	// ClaimIdle is the minimum idle time before pending entries of other
	// consumers are claimed. Defaults to DefaultClaimIdle.
	ClaimIdle time.Duration
}

// Bus publishes and consumes events through Redis streams.
type Bus struct {
	client    goredis.UniversalClient
	consumer  string
	maxLen    int64
	block     time.Duration
	claimIdle time.Duration
	owned     bool
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Bus, error) {
	if cfg.Addr == "" {
		return nil, domain.NewValidationError("addr", "redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.NewBackendError(domain.ErrEventBusUnavailable, "ping", err)
	}
	b := NewWithClient(client, cfg)
	b.owned = true
	return b, nil
}

// NewWithClient wraps an existing client. Close leaves the client open.
func NewWithClient(client goredis.UniversalClient, cfg Config) *Bus {
	if cfg.Consumer == "" {
		cfg.Consumer = defaultConsumer()
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultMaxLen
	}
	if cfg.Block <= 0 {
		cfg.Block = DefaultBlock
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = DefaultClaimIdle
	}
	return &Bus{
		client:    client,
		consumer:  cfg.Consumer,
		maxLen:    cfg.MaxLen,
		block:     cfg.Block,
		claimIdle: cfg.ClaimIdle,
	}
}

func defaultConsumer() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Publish appends the event envelope to the topic stream.
func (b *Bus) Publish(ctx context.Context, topic string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.MessageID, err)
	}
	err = b.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: topic,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{eventField: data},
	}).Err()
	if err != nil {
		return domain.NewBackendError(domain.ErrEventBusUnavailable, "publish "+topic, err)
	}
	return nil
}

// Subscribe consumes the topic as groupID until ctx ends or handler fails.
// Stale entries of other consumers are claimed, then this consumer's pending
// entries are handled before new ones.
func (b *Bus) Subscribe(ctx context.Context, topic, groupID string, handler driven.EventHandler) error {
	if handler == nil {
		return domain.NewValidationError("handler", "handler is required")
	}
	if err := b.ensureGroup(ctx, topic, groupID); err != nil {
		return err
	}
	if err := b.claimStale(ctx, topic, groupID); err != nil {
		return err
	}

	// Pending entries of this consumer first, then new ones.
	start := "0"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		args := &goredis.XReadGroupArgs{
			Group:    groupID,
			Consumer: b.consumer,
			Streams:  []string{topic, start},
			Count:    batchSize,
			Block:    b.block,
		}
		if start != ">" {
			args.Block = -1
		}
		streams, err := b.client.XReadGroup(ctx, args).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return domain.NewBackendError(domain.ErrEventBusUnavailable, "read "+topic, err)
		}

		handled := 0
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				handled++
				if err := b.handle(ctx, topic, groupID, msg, handler); err != nil {
					return err
				}
			}
		}
		if start != ">" && handled == 0 {
			start = ">"
		}
	}
}

// claimStale moves entries pending longer than claimIdle in the group to
// this consumer, where the pending read picks them up.
func (b *Bus) claimStale(ctx context.Context, topic, groupID string) error {
	cursor := "0-0"
	claimed := 0
	for {
		msgs, next, err := b.client.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
			Stream:   topic,
			Group:    groupID,
			Consumer: b.consumer,
			MinIdle:  b.claimIdle,
			Start:    cursor,
			Count:    batchSize,
		}).Result()
		if err != nil {
			return domain.NewBackendError(domain.ErrEventBusUnavailable, "claim "+topic, err)
		}
		claimed += len(msgs)
		if next == "" || next == "0-0" {
			break
		}
		cursor = next
	}
	if claimed > 0 {
		logger.Info("eventbus: %s claimed %d stale entries on %s/%s", b.consumer, claimed, topic, groupID)
	}
	return nil
}

func (b *Bus) handle(ctx context.Context, topic, groupID string, msg goredis.XMessage, handler driven.EventHandler) error {
	event, err := decode(msg)
	if err != nil {
		logger.Warn("eventbus: dropping malformed entry %s on %s: %v", msg.ID, topic, err)
		return b.ack(ctx, topic, groupID, msg.ID)
	}
	if err := safeHandle(ctx, handler, event); err != nil {
		return fmt.Errorf("handle %s on %s: %w", event.MessageID, topic, err)
	}
	return b.ack(ctx, topic, groupID, msg.ID)
}

func (b *Bus) ack(ctx context.Context, topic, groupID, id string) error {
	if err := b.client.XAck(ctx, topic, groupID, id).Err(); err != nil {
		return domain.NewBackendError(domain.ErrEventBusUnavailable, "ack "+topic, err)
	}
	return nil
}

func (b *Bus) ensureGroup(ctx context.Context, topic, groupID string) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, groupID, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return domain.NewBackendError(domain.ErrEventBusUnavailable, "create group "+groupID, err)
	}
	return nil
}

func decode(msg goredis.XMessage) (domain.Event, error) {
	var raw []byte
	switch v := msg.Values[eventField].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return domain.Event{}, fmt.Errorf("missing %q field", eventField)
	}
	var event domain.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

func safeHandle(ctx context.Context, handler driven.EventHandler, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, event)
}

// Close releases the client when the bus created it.
func (b *Bus) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}
