package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префикс ключей активной подписки пользователя
	activeSubscriptionKeyPrefix = "paywall:subscription:active:"

	// TTL для кэша
	defaultCacheTTL = 5 * time.Minute
)

// NewRedisClient подключается к Redis и проверяет соединение
func NewRedisClient(ctx context.Context, addr, password string, db int, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", addr)
	return client, nil
}

// cachedSubscription форма подписки в кэше; ожидающее списание хранится плоско
type cachedSubscription struct {
	domain.Subscription
	PendingInvID     int64      `json:"pending_inv_id,omitempty"`
	PendingAmount    float64    `json:"pending_amount,omitempty"`
	PendingCreatedAt *time.Time `json:"pending_created_at,omitempty"`
}

func toCached(s domain.Subscription) cachedSubscription {
	c := cachedSubscription{Subscription: s}
	if p, ok := s.Pending.(domain.Pending); ok {
		created := p.CreatedAt
		c.PendingInvID = p.InvID
		c.PendingAmount = p.Amount
		c.PendingCreatedAt = &created
	}
	return c
}

func (c cachedSubscription) toDomain() domain.Subscription {
	s := c.Subscription
	s.Pending = domain.NoPending{}
	if c.PendingInvID > 0 {
		p := domain.Pending{InvID: c.PendingInvID, Amount: c.PendingAmount}
		if c.PendingCreatedAt != nil {
			p.CreatedAt = *c.PendingCreatedAt
		}
		s.Pending = p
	}
	return s
}

// RedisCacheRepository кэш активных подписок в Redis
type RedisCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCacheRepository создает кэш поверх готового клиента. Нулевой ttl заменяется на 5 минут.
func NewRedisCacheRepository(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCacheRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCacheRepository{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func activeKey(userID int64) string {
	return fmt.Sprintf("%s%d", activeSubscriptionKeyPrefix, userID)
}

// CacheActive кеширует активную подписку пользователя
func (r *RedisCacheRepository) CacheActive(ctx context.Context, sub domain.Subscription) error {
	data, err := json.Marshal(toCached(sub))
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := r.client.Set(ctx, activeKey(sub.UserID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache subscription: %w", err)
	}

	r.log.Debugw("Subscription cached", "userID", sub.UserID)
	return nil
}

// GetActive получает подписку из кеша. Промах возвращает (nil, nil).
func (r *RedisCacheRepository) GetActive(ctx context.Context, userID int64) (*domain.Subscription, error) {
	data, err := r.client.Get(ctx, activeKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription from cache: %w", err)
	}

	var c cachedSubscription
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached subscription: %w", err)
	}

	sub := c.toDomain()
	return &sub, nil
}

// Invalidate удаляет подписку пользователя из кеша
func (r *RedisCacheRepository) Invalidate(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, activeKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete subscription from cache: %w", err)
	}
	r.log.Debugw("Subscription cache invalidated", "userID", userID)
	return nil
}
