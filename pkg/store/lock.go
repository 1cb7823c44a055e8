package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker guards one load-modify-save round trip. Unlock must be called
// exactly once after a successful Lock.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// LocalLocker serializes writers inside one process.
type LocalLocker struct {
	mu sync.Mutex
}

func (l *LocalLocker) Lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	return l.mu.Unlock, nil
}

const defaultLockRetry = 50 * time.Millisecond

var ErrLockLost = errors.New("store lock expired before release")

// release only deletes the key when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes writers across processes sharing one store.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	retry  time.Duration
	onLost func(error)
}

func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		key:    key,
		ttl:    ttl,
		retry:  defaultLockRetry,
	}
}

// OnLost registers a callback invoked when the lock had already expired at
// release time.
func (l *RedisLocker) OnLost(fn func(error)) {
	l.onLost = fn
}

func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			released, err := releaseScript.Run(context.Background(), l.client, []string{l.key}, token).Int()
			if l.onLost == nil {
				return
			}
			if err != nil {
				l.onLost(err)
				return
			}
			if released == 0 {
				l.onLost(ErrLockLost)
			}
		})
	}, nil
}
