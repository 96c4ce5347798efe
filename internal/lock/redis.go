package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/stay-reservation/internal/config"
	"github.com/iliyamo/stay-reservation/internal/model"
)

// Only the holder's token may delete the key.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

const retryEvery = 25 * time.Millisecond

// RedisLocker is a single-instance Redis lock (SET NX PX) shared by every
// API replica.  The TTL only matters if a holder dies without releasing.
type RedisLocker struct {
	rdb    *redis.Client
	cfg    config.LockConfig
	logger *log.Logger
}

func NewRedisLocker(cfg config.LockConfig, rdb *redis.Client, logger *log.Logger) *RedisLocker {
	return &RedisLocker{rdb: rdb, cfg: cfg, logger: logger}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	full := l.cfg.Prefix + ":" + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.cfg.WaitTimeout)

	for {
		ok, err := l.rdb.SetNX(ctx, full, token, l.cfg.TTL).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("acquire %s: %w", full, err)
		}
		if ok {
			return l.releaser(full, token), nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s is busy", model.ErrTimeout, key)
		}
		select {
		case <-time.After(retryEvery):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *RedisLocker) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// the request context may already be gone; release on our own clock
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil && l.logger != nil {
				l.logger.Warnj(log.JSON{"event": "lock_release_failed", "key": key, "error": err.Error()})
			}
		})
	}
}
