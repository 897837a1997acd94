package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix prefixes the Redis pub/sub channel of every notification.
const DefaultChannelPrefix = "certificates:"

// RedisSink publishes notifications on Redis pub/sub channels "<prefix><name>".
type RedisSink struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisSink connects to redisURL (redis:// or rediss://) and pings it.
func NewRedisSink(ctx context.Context, redisURL string) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.MaxRetries = 3
	if opts.TLSConfig == nil && strings.HasPrefix(redisURL, "rediss://") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisSink{rdb: rdb, prefix: DefaultChannelPrefix}, nil
}

// ChannelFor returns the channel a notification name is published on.
func (s *RedisSink) ChannelFor(name string) string {
	return s.prefix + name
}

func (s *RedisSink) Publish(ctx context.Context, name string, payload any) error {
	body, err := NewEnvelope(name, payload).marshal()
	if err != nil {
		return err
	}
	if err := s.rdb.Publish(ctx, s.ChannelFor(name), body).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.ChannelFor(name), err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.rdb.Close()
}
