package repository

import (
	"context"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/pkg/logger"
)

// SubscriptionCache кэш активных подписок
type SubscriptionCache interface {
	CacheActive(ctx context.Context, sub domain.Subscription) error
	GetActive(ctx context.Context, userID int64) (*domain.Subscription, error)
	Invalidate(ctx context.Context, userID int64) error
}

// CachedSubscriptionRepository реализует SubscriptionRepository с кешированием
// чтения активной подписки. Любая запись сбрасывает кэш пользователя.
type CachedSubscriptionRepository struct {
	repo  SubscriptionRepository
	cache SubscriptionCache
	log   *logger.Logger
}

// NewCachedSubscriptionRepository создает новый репозиторий с кешированием
func NewCachedSubscriptionRepository(repo SubscriptionRepository, cache SubscriptionCache, log *logger.Logger) *CachedSubscriptionRepository {
	return &CachedSubscriptionRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

var _ SubscriptionRepository = (*CachedSubscriptionRepository)(nil)

// GetActive получает подписку (сначала из кеша, потом из БД)
func (r *CachedSubscriptionRepository) GetActive(ctx context.Context, userID int64) (domain.Subscription, error) {
	cached, err := r.cache.GetActive(ctx, userID)
	if err != nil {
		r.log.Warnw("Error getting subscription from cache", "error", err, "userID", userID)
	}
	if cached != nil {
		return *cached, nil
	}

	sub, err := r.repo.GetActive(ctx, userID)
	if err != nil {
		return domain.Subscription{}, err
	}

	if err := r.cache.CacheActive(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after fetching", "error", err, "userID", userID)
	}
	return sub, nil
}

// ListActive всегда читает из БД
func (r *CachedSubscriptionRepository) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	return r.repo.ListActive(ctx)
}

// ListDueForCharge всегда читает из БД
func (r *CachedSubscriptionRepository) ListDueForCharge(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	return r.repo.ListDueForCharge(ctx, now)
}

// ConfirmPayment пишет в БД и сбрасывает кэш
func (r *CachedSubscriptionRepository) ConfirmPayment(ctx context.Context, payment domain.Payment, apply ApplyFunc) (domain.Subscription, error) {
	sub, err := r.repo.ConfirmPayment(ctx, payment, apply)
	r.invalidate(ctx, payment.UserID)
	return sub, err
}

// ClaimCharge пишет в БД и сбрасывает кэш
func (r *CachedSubscriptionRepository) ClaimCharge(ctx context.Context, claim ChargeClaim) (bool, error) {
	ok, err := r.repo.ClaimCharge(ctx, claim)
	r.invalidate(ctx, claim.UserID)
	return ok, err
}

// ReleaseCharge пишет в БД и сбрасывает кэш
func (r *CachedSubscriptionRepository) ReleaseCharge(ctx context.Context, userID, invID int64) (bool, error) {
	ok, err := r.repo.ReleaseCharge(ctx, userID, invID)
	r.invalidate(ctx, userID)
	return ok, err
}

// RequestCancel пишет в БД и сбрасывает кэш
func (r *CachedSubscriptionRepository) RequestCancel(ctx context.Context, userID int64, at time.Time) (domain.Subscription, error) {
	sub, err := r.repo.RequestCancel(ctx, userID, at)
	r.invalidate(ctx, userID)
	return sub, err
}

// DeactivateExpired пишет в БД и сбрасывает кэш
func (r *CachedSubscriptionRepository) DeactivateExpired(ctx context.Context, userID int64, now time.Time) (bool, error) {
	ok, err := r.repo.DeactivateExpired(ctx, userID, now)
	r.invalidate(ctx, userID)
	return ok, err
}

func (r *CachedSubscriptionRepository) invalidate(ctx context.Context, userID int64) {
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		r.log.Warnw("Failed to invalidate subscription cache", "error", err, "userID", userID)
	}
}
