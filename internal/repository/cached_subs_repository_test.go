package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/pkg/logger"
)

type mapCache struct {
	items       map[int64]domain.Subscription
	hits        int
	invalidated []int64
	getErr      error
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[int64]domain.Subscription)}
}

func (c *mapCache) CacheActive(ctx context.Context, sub domain.Subscription) error {
	c.items[sub.UserID] = sub
	return nil
}

func (c *mapCache) GetActive(ctx context.Context, userID int64) (*domain.Subscription, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	s, ok := c.items[userID]
	if !ok {
		return nil, nil
	}
	c.hits++
	return &s, nil
}

func (c *mapCache) Invalidate(ctx context.Context, userID int64) error {
	delete(c.items, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

func TestCachedSubscriptionRepository_ReadThroughAndInvalidate(t *testing.T) {
	store := NewInMemoryStore()
	cache := newMapCache()
	repo := NewCachedSubscriptionRepository(store, cache, logger.NewNop())
	ctx := context.Background()

	store.Save(domain.Subscription{UserID: 1, Active: true, ExpiresAt: testNow.Add(testPeriod)})

	if _, err := repo.GetActive(ctx, 1); err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if _, err := repo.GetActive(ctx, 1); err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if cache.hits != 1 {
		t.Fatalf("expected second read from cache, hits=%d", cache.hits)
	}

	if _, err := repo.RequestCancel(ctx, 1, testNow); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != 1 {
		t.Fatalf("expected invalidation for user 1, got %v", cache.invalidated)
	}

	got, _ := repo.GetActive(ctx, 1)
	if !got.CancelRequested {
		t.Fatalf("stale cache served after write")
	}
}

func TestCachedSubscriptionRepository_CacheErrorFallsBackToStore(t *testing.T) {
	store := NewInMemoryStore()
	cache := newMapCache()
	cache.getErr = errors.New("redis down")
	repo := NewCachedSubscriptionRepository(store, cache, logger.NewNop())

	store.Save(domain.Subscription{UserID: 2, Active: true, ExpiresAt: testNow})

	if _, err := repo.GetActive(context.Background(), 2); err != nil {
		t.Fatalf("expected store fallback, got %v", err)
	}
	if _, err := repo.GetActive(context.Background(), 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCachedSubscription_KeepsPendingCharge(t *testing.T) {
	sub := domain.Subscription{
		UserID:  1,
		Active:  true,
		Pending: domain.Pending{InvID: 55, Amount: 20000, CreatedAt: testNow},
	}

	data, err := json.Marshal(toCached(sub))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var c cachedSubscription
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	p, ok := c.toDomain().Pending.(domain.Pending)
	if !ok || p.InvID != 55 || !p.CreatedAt.Equal(testNow) {
		t.Fatalf("pending charge lost in cache: %#v", c.toDomain().Pending)
	}
}
