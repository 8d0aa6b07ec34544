package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-market-api/pkg/config"
)

// ErrNotAcquired is returned when the lock could not be obtained within the
// configured number of attempts.
var ErrNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only while it still holds the caller's token,
// so a holder that outlived its TTL cannot release a re-acquired lock.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// rediser is the slice of the Redis client the lock needs.
type rediser interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Manager mints distributed locks with shared TTL and retry settings.
type Manager struct {
	client     rediser
	ttl        time.Duration
	retries    int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewManager constructs a lock manager from configuration.
func NewManager(client rediser, cfg config.LockConfig, logger *zap.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{client: client, ttl: cfg.TTL, retries: cfg.Retries, retryDelay: cfg.RetryDelay, logger: logger}
}

// Lock is a single held acquisition. Release must be called on every exit
// path; the TTL bounds the hold time if the holder dies.
type Lock struct {
	client rediser
	key    string
	token  string
}

// Key returns the fully namespaced Redis key.
func (l *Lock) Key() string { return l.key }

// Acquire attempts SET NX EX up to the configured number of times with a
// fixed delay between attempts.
func (m *Manager) Acquire(ctx context.Context, key string) (*Lock, error) {
	namespaced := "lock:" + key
	token := uuid.NewString()

	for attempt := 0; attempt < m.retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(m.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		ok, err := m.client.SetNX(ctx, namespaced, token, m.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock setnx %s: %w", namespaced, err)
		}
		if ok {
			return &Lock{client: m.client, key: namespaced, token: token}, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotAcquired, namespaced)
}

// Release deletes the key if it still carries this lock's token. Returns
// false when the lock had already expired or been taken over.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	res, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Result()
	if err != nil {
		return false, fmt.Errorf("lock release %s: %w", l.key, err)
	}
	n, ok := res.(int64)
	return ok && n == 1, nil
}

// WithLock runs fn while holding the named lock, releasing it on every exit
// path including a panicking or erroring fn.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l, err := m.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		released, relErr := l.Release(context.WithoutCancel(ctx))
		if relErr != nil {
			m.logger.Warn("lock release failed", zap.String("key", l.key), zap.Error(relErr))
		} else if !released {
			m.logger.Warn("lock expired before release", zap.String("key", l.key))
		}
	}()

	return fn(ctx)
}
