package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel carrying change records.
const DefaultChannel = "punchlist:changes"

// DefaultPrefix namespaces stored keys.
const DefaultPrefix = "punchlist:"

// DefaultTimeout is the per-operation timeout.
const DefaultTimeout = 5 * time.Second

// Config configures the Redis-backed store.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Prefix namespaces stored keys (default: punchlist:).
	Prefix string
	// Channel is the pub/sub channel for change records
	// (default: punchlist:changes).
	Channel string
	// Timeout is the per-operation timeout (default 5s).
	Timeout time.Duration
}

// RedisStore persists values in Redis and carries the change feed over
// pub/sub. Every Set and Delete publishes a JSON Change record to the
// configured channel; Watch subscribes to it, so watchers observe changes
// made by every process sharing the store.
//
// The old value in a change record comes from a read before the write.
// There is no transaction around the pair, so with concurrent writers to
// the same key the old value is best effort.
type RedisStore struct {
	config Config
	client *goredis.Client
}

// NewRedisStore creates a Redis-backed store from the given config.
// Returns an error if the URL is empty or invalid.
func NewRedisStore(cfg Config) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("store: redis requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("store: invalid redis URL: %w", err)
	}

	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &RedisStore{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Get returns the value stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	value, err := s.client.Get(opCtx, s.config.Prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes value under key and publishes the change record.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("%w (key %q)", ErrInvalidValue, key)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	old, err := s.readOld(opCtx, key)
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	if err := s.client.Set(opCtx, s.config.Prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return s.publish(opCtx, Change{Key: key, Old: old, New: value})
}

// Delete removes key and publishes a change record with a nil New value.
// Deleting an absent key is a no-op and publishes nothing.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	old, err := s.readOld(opCtx, key)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	if old == nil {
		return nil
	}
	if err := s.client.Del(opCtx, s.config.Prefix+key).Err(); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return s.publish(opCtx, Change{Key: key, Old: old})
}

// Watch subscribes to the change channel. The returned channel closes when
// ctx is canceled.
func (s *RedisStore) Watch(ctx context.Context) (<-chan Change, error) {
	sub := s.client.Subscribe(ctx, s.config.Channel)

	// Confirm the subscription before returning so a change published
	// right after Watch returns cannot be missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("store: subscribe: %w", err)
	}

	msgs := sub.Channel()
	out := make(chan Change, DefaultWatchBuffer)

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	go func() {
		defer close(out)
		for msg := range msgs {
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil || c.Key == "" {
				// Not one of ours; skip.
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close releases the Redis client. Cancel watch contexts first.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// readOld fetches the current value for key, nil when absent.
func (s *RedisStore) readOld(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.config.Prefix+key).Bytes()
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, goredis.Nil):
		return nil, nil
	default:
		return nil, fmt.Errorf("read old value: %w", err)
	}
}

func (s *RedisStore) publish(ctx context.Context, c Change) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("store: marshal change: %w", err)
	}
	if err := s.client.Publish(ctx, s.config.Channel, body).Err(); err != nil {
		return fmt.Errorf("store: publish change for %s: %w", c.Key, err)
	}
	return nil
}

// Verify RedisStore implements the store interface.
var _ Store = (*RedisStore)(nil)
