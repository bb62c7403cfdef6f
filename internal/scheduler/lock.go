package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "paywall:lock:"

// ErrLockLost ключ блокировки истек или занят другим экземпляром
var ErrLockLost = errors.New("lock lost")

// Lease удерживаемая блокировка
type Lease interface {
	// Refresh продлевает блокировку еще на ttl
	Refresh(ctx context.Context) error
	Release()
}

// Locker не дает одному и тому же обходу выполняться на нескольких репликах
type Locker interface {
	// TryLock возвращает lease и true, если блокировка получена
	TryLock(ctx context.Context, name string, ttl time.Duration) (Lease, bool, error)
}

// NopLocker всегда выдает блокировку (один экземпляр сервиса)
type NopLocker struct{}

// TryLock всегда успешен, продлевать и освобождать нечего
func (NopLocker) TryLock(context.Context, string, time.Duration) (Lease, bool, error) {
	return nopLease{}, true, nil
}

type nopLease struct{}

func (nopLease) Refresh(context.Context) error { return nil }
func (nopLease) Release()                      {}

// unlockScript удаляет ключ, только если он все еще принадлежит владельцу
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// refreshScript продлевает ключ, только если он все еще принадлежит владельцу
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisLocker блокировка через SET NX EX
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker создает блокировку поверх клиента Redis
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// TryLock пытается занять ключ name на ttl
func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (Lease, bool, error) {
	key := lockKeyPrefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{client: l.client, key: key, token: token, ttl: ttl}, true, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func (l *redisLease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", l.key, ErrLockLost)
	}
	return nil
}

func (l *redisLease) Release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
