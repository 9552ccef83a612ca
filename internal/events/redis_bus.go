package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"blogdraft-server/internal/config"
	"blogdraft-server/internal/logger"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// RedisBus fans events out over a Redis pub/sub channel so every instance
// forwards them to its own local sinks.
type RedisBus struct {
	rdb     *goredis.Client
	channel string
	origin  string
	local   *Local
	log     *logger.Logger
}

func NewRedisBus(cfg config.EventsConfig, local *Local, log *logger.Logger) (*RedisBus, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := cfg.RedisChannel
	if channel == "" {
		channel = "blogdraft:events"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newRedisBus(rdb, channel, local, log), nil
}

func newRedisBus(rdb *goredis.Client, channel string, local *Local, log *logger.Logger) *RedisBus {
	return &RedisBus{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.New().String(),
		local:   local,
		log:     log.With("service", "RedisEventBus", "channel", channel),
	}
}

// Publish sends e to the channel. When Redis is unreachable the event is
// still delivered locally.
func (b *RedisBus) Publish(ctx context.Context, e *Event) error {
	e.Origin = b.origin
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("redis publish failed, delivering locally", "error", err, "type", e.Type)
		b.local.deliver(e)
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// StartForwarder subscribes to the channel and delivers every event,
// including this instance's own, to the local sinks until ctx ends.
func (b *RedisBus) StartForwarder(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
					b.log.Warn("bad event payload", "error", err)
					continue
				}
				b.local.deliver(&e)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
