package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyPrefix  = "etl:run:"
	DefaultTTL = 10 * time.Minute
)

var ErrLocked = errors.New("run already in progress")

// releaseScript deletes the key only if it still holds our token, so an
// expired lease never removes a successor's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Locker serialises runs of the same date across processes.
type Locker interface {
	Acquire(ctx context.Context, date string) (Lease, error)
}

type Lease interface {
	Release(ctx context.Context) error
}

// client is the subset of redis.Cmdable the locker needs.
type client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type RedisLocker struct {
	client client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisLocker(c client, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: c, ttl: ttl, log: log}
}

// New falls back to a no-op locker when redis is not configured.
func New(c *redis.Client, ttl time.Duration, log zerolog.Logger) Locker {
	if c == nil {
		return Noop{}
	}
	return NewRedisLocker(c, ttl, log)
}

func Key(date string) string {
	return keyPrefix + date
}

func (l *RedisLocker) Acquire(ctx context.Context, date string) (Lease, error) {
	key := Key(date)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrLocked, date)
	}

	l.log.Debug().Str("date", date).Str("token", token).Msg("run lock acquired")
	return &redisLease{locker: l, key: key, token: token}, nil
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string
}

func (r *redisLease) Release(ctx context.Context) error {
	n, err := r.locker.client.Eval(ctx, releaseScript, []string{r.key}, r.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", r.key, err)
	}
	if n == 0 {
		r.locker.log.Warn().Str("key", r.key).Msg("run lock expired before release")
	}
	return nil
}

// Noop never blocks a run.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (Lease, error) {
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Release(context.Context) error {
	return nil
}
