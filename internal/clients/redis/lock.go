package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/calegray/cardflow-backend/internal/pkg/envutil"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
)

// ErrLockHeld means another process currently owns the session.
var ErrLockHeld = errors.New("session lock held")

// releaseScript deletes the lock only if we still own it.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// SessionLock is a redis-backed keyed mutex serializing one reply session
// across backend instances. The in-process keyed mutex handles callers inside
// one instance; this covers the multi-instance case.
type SessionLock struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewSessionLock(log *logger.Logger) (*SessionLock, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(envutil.String("REDIS_ADDR", ""))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &SessionLock{
		log: log.With("client", "SessionLock"),
		rdb: rdb,
		ttl: envutil.Duration("SESSION_LOCK_TTL", 5*time.Minute),
	}, nil
}

// Acquire takes the lock for key and returns its release func, or ErrLockHeld
// when another owner has it.
func (l *SessionLock) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := "cardflow:session_lock:" + key
	ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{redisKey}, token).Err(); err != nil {
			l.log.Warn("session lock release failed", "session_id", key, "error", err)
		}
	}, nil
}

func (l *SessionLock) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
