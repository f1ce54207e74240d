package signal

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/core"
)

// RedisTransport carries side-channel frames over Redis pub/sub. Every
// channel is namespaced under prefix.
type RedisTransport struct {
	rc     redis.UniversalClient
	prefix string
}

func NewRedis(rc redis.UniversalClient, prefix string) *RedisTransport {
	return &RedisTransport{rc: rc, prefix: prefix}
}

// RedisChannel returns the Redis channel a side-channel name maps to.
func RedisChannel(prefix, channel string) string {
	if prefix == "" {
		return channel
	}
	return prefix + ":" + channel
}

func (r *RedisTransport) Publish(ctx context.Context, channel string, f core.Frame) error {
	if err := r.rc.Publish(ctx, RedisChannel(r.prefix, channel), []byte(f)).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

func (r *RedisTransport) Subscribe(ctx context.Context, channel string) (<-chan core.Frame, error) {
	key := RedisChannel(r.prefix, channel)
	sub := r.rc.Subscribe(ctx, key)
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	out := make(chan core.Frame, wsSubBuffer)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					log.Warn().Str("module", "adapters.signal").Str("channel", key).Msg("redis subscription closed")
					return
				}
				select {
				case out <- core.Frame(msg.Payload):
				default:
					log.Warn().Str("module", "adapters.signal").Str("channel", key).Msg("subscriber slow, frame dropped")
				}
			}
		}
	}()
	log.Debug().Str("module", "adapters.signal").Str("channel", key).Msg("redis subscribed")
	return out, nil
}

func (r *RedisTransport) Close() error {
	return r.rc.Close()
}
