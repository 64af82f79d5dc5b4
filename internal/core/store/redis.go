package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jordancj7/folio/internal/config"
	"github.com/jordancj7/folio/internal/core"
)

const (
	// Windows outlive the daily counter by a day so a rollover is still seen.
	redisWindowTTL = 48 * time.Hour

	redisMaxTxAttempts = 8
	redisRetryBackoff  = 5 * time.Millisecond

	// Writers in this process queue on a striped lock so WATCH only has to
	// resolve races between replicas.
	redisLockStripes = 64
)

// RedisWindowStore keeps rate windows in Redis so several server instances
// share one quota.
type RedisWindowStore struct {
	cli    redis.UniversalClient
	prefix string

	stripes [redisLockStripes]sync.Mutex
}

// NewRedisClient builds a client from configuration.
func NewRedisClient(cfg config.RedisConfig) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
}

// NewRedisWindowStore wraps cli. An empty prefix selects the default.
func NewRedisWindowStore(cli redis.UniversalClient, prefix string) *RedisWindowStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = config.DefaultRedisKeyPrefix
	}
	return &RedisWindowStore{cli: cli, prefix: prefix}
}

// Ping checks connectivity.
func (r *RedisWindowStore) Ping(ctx context.Context) error {
	if r == nil || r.cli == nil {
		return errors.New("redis store is not initialized")
	}
	return r.cli.Ping(ctx).Err()
}

// Close releases the client.
func (r *RedisWindowStore) Close() error {
	if r == nil || r.cli == nil {
		return nil
	}
	return r.cli.Close()
}

// GetRateWindow returns the window for key, or nil if none exists.
func (r *RedisWindowStore) GetRateWindow(ctx context.Context, key string) (*core.RateWindow, error) {
	if r == nil || r.cli == nil {
		return nil, errors.New("redis store is not initialized")
	}
	raw, err := r.cli.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rate window: %w", err)
	}
	return decodeRedisWindow(raw)
}

// UpdateRateWindow applies fn under an optimistic WATCH transaction, retrying
// when another writer touched the key first.
func (r *RedisWindowStore) UpdateRateWindow(ctx context.Context, key string, fn func(*core.RateWindow) error) error {
	if r == nil || r.cli == nil {
		return errors.New("redis store is not initialized")
	}
	if fn == nil {
		return errors.New("update function is required")
	}
	redisKey := r.key(key)

	lock := r.stripe(redisKey)
	lock.Lock()
	defer lock.Unlock()

	txf := func(tx *redis.Tx) error {
		window := &core.RateWindow{}
		raw, err := tx.Get(ctx, redisKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("get rate window: %w", err)
		default:
			if window, err = decodeRedisWindow(raw); err != nil {
				return err
			}
		}

		if err := fn(window); err != nil {
			return err
		}
		encoded, err := json.Marshal(window)
		if err != nil {
			return fmt.Errorf("encode rate window: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, encoded, redisWindowTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisMaxTxAttempts; attempt++ {
		err := r.cli.Watch(ctx, txf, redisKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * redisRetryBackoff):
		}
	}
	return fmt.Errorf("update rate window %q: too much contention", key)
}

// DeleteRateWindow forgets key.
func (r *RedisWindowStore) DeleteRateWindow(ctx context.Context, key string) error {
	if r == nil || r.cli == nil {
		return errors.New("redis store is not initialized")
	}
	if err := r.cli.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("delete rate window: %w", err)
	}
	return nil
}

func (r *RedisWindowStore) stripe(redisKey string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(redisKey))
	return &r.stripes[h.Sum32()%redisLockStripes]
}

func (r *RedisWindowStore) key(callerKey string) string {
	return r.prefix + strings.TrimSpace(callerKey)
}

func decodeRedisWindow(raw []byte) (*core.RateWindow, error) {
	var window core.RateWindow
	if err := json.Unmarshal(raw, &window); err != nil {
		return nil, fmt.Errorf("decode rate window: %w", err)
	}
	return &window, nil
}
