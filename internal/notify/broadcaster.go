package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Broadcaster publishes a message to every connection that joined topic, wherever it
// is connected.
type Broadcaster interface {
	Publish(ctx context.Context, topic Topic, msg Message) error
}

// LocalBroadcaster delivers straight into this process's hub.
type LocalBroadcaster struct {
	hub *Hub
}

func NewLocalBroadcaster(hub *Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

func (b *LocalBroadcaster) Publish(ctx context.Context, topic Topic, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	n := b.hub.Deliver(topic, payload)
	slog.DebugContext(ctx, "notify: delivered", "topic", topic, "type", msg.Type, "receivers", n)
	return nil
}

// RedisBroadcaster publishes on the Redis channel {prefix}:{topic}. Every instance runs
// Relay to move messages from Redis into its own hub, including the publisher's.
type RedisBroadcaster struct {
	redis  redis.UniversalClient
	prefix string
	hub    *Hub
}

func NewRedisBroadcaster(r redis.UniversalClient, prefix string, hub *Hub) *RedisBroadcaster {
	return &RedisBroadcaster{
		redis:  r,
		prefix: prefix,
		hub:    hub,
	}
}

func (b *RedisBroadcaster) channel(topic Topic) string {
	return b.prefix + ":" + string(topic)
}

func (b *RedisBroadcaster) Publish(ctx context.Context, topic Topic, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	if err := b.redis.Publish(ctx, b.channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", msg.Type, topic, err)
	}

	return nil
}

// Relay pattern-subscribes to every topic channel and delivers what arrives into the
// hub until ctx is done.
func (b *RedisBroadcaster) Relay(ctx context.Context) error {
	ps := b.redis.PSubscribe(ctx, b.prefix+":*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe %s:*: %w", b.prefix, err)
	}

	slog.InfoContext(ctx, "notify: relay started", "pattern", b.prefix+":*")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "notify: relay stopped")
			return nil

		case m, ok := <-ch:
			if !ok {
				return nil
			}

			topic, ok := strings.CutPrefix(m.Channel, b.prefix+":")
			if !ok {
				continue
			}

			n := b.hub.Deliver(Topic(topic), []byte(m.Payload))
			slog.DebugContext(ctx, "notify: relayed", "topic", topic, "receivers", n)
		}
	}
}
