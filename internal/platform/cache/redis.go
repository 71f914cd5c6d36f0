package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultTTL = 10 * time.Minute

// Redis is a JSON cache that degrades to a pass-through when the server is unreachable.
// A nil *Redis is valid and behaves as an always-miss cache.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger logrus.FieldLogger

	warnedUnavailable atomic.Bool
}

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// New returns nil when no address is configured or the first ping fails.
func New(ctx context.Context, opts Options, logger logrus.FieldLogger) *Redis {
	if opts.Addr == "" {
		logger.Info("cache disabled: no redis address")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("redis unavailable, bypassing cache")
		_ = client.Close()
		return nil
	}
	return NewWithClient(client, opts.TTL, logger)
}

func NewWithClient(client *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

func (r *Redis) unavailable() bool {
	return r == nil || r.client == nil
}

func (r *Redis) warnOnce(err error) {
	if r.logger != nil && r.warnedUnavailable.CompareAndSwap(false, true) {
		r.logger.WithError(err).Warn("redis error, bypassing cache")
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	if r.unavailable() {
		return errors.New("redis unavailable")
	}
	return r.client.Ping(ctx).Err()
}

// GetJSON reports whether key was present and decoded into out.
func (r *Redis) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	if r.unavailable() {
		return false, nil
	}
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		r.warnOnce(err)
		return false, err
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) SetJSON(ctx context.Context, key string, value any) error {
	if r.unavailable() {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, b, r.ttl).Err(); err != nil {
		r.warnOnce(err)
		return err
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if r.unavailable() || len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.warnOnce(err)
		return err
	}
	return nil
}

func (r *Redis) Close() error {
	if r.unavailable() {
		return nil
	}
	return r.client.Close()
}
