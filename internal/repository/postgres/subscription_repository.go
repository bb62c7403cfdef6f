package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/repository"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriptionColumns = `id, user_id, expires_at, active, cancel_requested, cancel_requested_at,
	anchor_inv_id, next_charge_at, pending_inv_id, pending_amount, pending_created_at, created_at, updated_at`

// PostgresSubscriptionRepository подписки и подтверждение платежей в PostgreSQL
type PostgresSubscriptionRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresSubscriptionRepository создает новый репозиторий подписок через PostgreSQL
func NewPostgresSubscriptionRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{
		db:  db,
		log: log,
	}
}

var _ repository.SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)

func scanSubscription(row pgx.Row) (domain.Subscription, error) {
	var (
		s                                    domain.Subscription
		cancelAt, nextCharge, pendingCreated *time.Time
		anchor, pendingInv                   *int64
		pendingAmount                        *float64
	)

	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.ExpiresAt,
		&s.Active,
		&s.CancelRequested,
		&cancelAt,
		&anchor,
		&nextCharge,
		&pendingInv,
		&pendingAmount,
		&pendingCreated,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return domain.Subscription{}, err
	}

	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	s.CancelRequestedAt = utcPtr(cancelAt)
	s.NextChargeAt = utcPtr(nextCharge)
	if anchor != nil {
		s.AnchorInvID = *anchor
	}

	s.Pending = domain.NoPending{}
	if pendingInv != nil {
		p := domain.Pending{InvID: *pendingInv}
		if pendingAmount != nil {
			p.Amount = *pendingAmount
		}
		if pendingCreated != nil {
			p.CreatedAt = pendingCreated.UTC()
		}
		s.Pending = p
	}
	return s, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// pendingArgs раскладывает ожидающее списание по столбцам (NULL если его нет)
func pendingArgs(p domain.PendingCharge) (invID *int64, amount *float64, createdAt *time.Time) {
	switch v := p.(type) {
	case domain.Pending:
		inv, amt, created := v.InvID, v.Amount, v.CreatedAt.UTC()
		return &inv, &amt, &created
	default:
		return nil, nil, nil
	}
}

func anchorArg(anchor int64) *int64 {
	if anchor <= 0 {
		return nil
	}
	return &anchor
}

// GetActive возвращает активную подписку пользователя
func (r *PostgresSubscriptionRepository) GetActive(ctx context.Context, userID int64) (domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND active
		ORDER BY id DESC
		LIMIT 1`

	s, err := scanSubscription(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, repository.ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, nil
}

// ListActive возвращает все активные подписки
func (r *PostgresSubscriptionRepository) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE active
		ORDER BY user_id`
	return r.list(ctx, query)
}

// ListDueForCharge возвращает подписки с наступившим next_charge_at
func (r *PostgresSubscriptionRepository) ListDueForCharge(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE active
		  AND NOT cancel_requested
		  AND anchor_inv_id IS NOT NULL
		  AND next_charge_at IS NOT NULL
		  AND next_charge_at <= $1
		ORDER BY user_id`
	return r.list(ctx, query, now.UTC())
}

func (r *PostgresSubscriptionRepository) list(ctx context.Context, query string, args ...any) ([]domain.Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}

// ConfirmPayment в одной транзакции: блокирует пользователя, пишет платеж,
// применяет apply к активной подписке и сохраняет результат.
func (r *PostgresSubscriptionRepository) ConfirmPayment(ctx context.Context, payment domain.Payment, apply repository.ApplyFunc) (domain.Subscription, error) {
	var result domain.Subscription

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		// upsert блокирует строку пользователя до конца транзакции;
		// при дубликате платежа откатывается вместе с ней
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (user_id, username, state) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
			payment.UserID, domain.PlaceholderUsername(payment.UserID), domain.StatePaid,
		); err != nil {
			return fmt.Errorf("failed to mark user as paid: %w", err)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO payments (user_id, inv_id, amount, currency, status, raw_payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			payment.UserID, payment.InvID, payment.Amount, payment.Currency,
			string(payment.Status), jsonArg(payment.RawPayload), payment.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicate
			}
			return fmt.Errorf("failed to insert payment: %w", err)
		}

		var current *domain.Subscription
		s, err := scanSubscription(tx.QueryRow(ctx, `SELECT `+subscriptionColumns+`
			FROM subscriptions
			WHERE user_id = $1 AND active
			ORDER BY id DESC
			LIMIT 1
			FOR UPDATE`, payment.UserID))
		switch {
		case err == nil:
			current = &s
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return fmt.Errorf("failed to lock subscription: %w", err)
		}

		next := apply(current)
		if current != nil && next.ID == current.ID {
			result, err = updateSubscription(ctx, tx, next)
		} else {
			result, err = insertSubscription(ctx, tx, next)
		}
		return err
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	return result, nil
}

func updateSubscription(ctx context.Context, tx pgx.Tx, s domain.Subscription) (domain.Subscription, error) {
	pInv, pAmount, pCreated := pendingArgs(s.Pending)
	row := tx.QueryRow(ctx, `
		UPDATE subscriptions
		SET expires_at = $2,
		    next_charge_at = $3,
		    anchor_inv_id = $4,
		    cancel_requested = $5,
		    cancel_requested_at = $6,
		    pending_inv_id = $7,
		    pending_amount = $8,
		    pending_created_at = $9,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+subscriptionColumns,
		s.ID, s.ExpiresAt.UTC(), utcPtr(s.NextChargeAt), anchorArg(s.AnchorInvID),
		s.CancelRequested, utcPtr(s.CancelRequestedAt), pInv, pAmount, pCreated,
	)
	updated, err := scanSubscription(row)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("failed to update subscription: %w", err)
	}
	return updated, nil
}

func insertSubscription(ctx context.Context, tx pgx.Tx, s domain.Subscription) (domain.Subscription, error) {
	if _, err := tx.Exec(ctx,
		`UPDATE subscriptions SET active = FALSE, updated_at = now() WHERE user_id = $1 AND active`,
		s.UserID,
	); err != nil {
		return domain.Subscription{}, fmt.Errorf("failed to deactivate previous subscriptions: %w", err)
	}

	pInv, pAmount, pCreated := pendingArgs(s.Pending)
	row := tx.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, expires_at, active, cancel_requested, cancel_requested_at,
			anchor_inv_id, next_charge_at, pending_inv_id, pending_amount, pending_created_at)
		VALUES ($1, $2, TRUE, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+subscriptionColumns,
		s.UserID, s.ExpiresAt.UTC(), s.CancelRequested, utcPtr(s.CancelRequestedAt),
		anchorArg(s.AnchorInvID), utcPtr(s.NextChargeAt), pInv, pAmount, pCreated,
	)
	inserted, err := scanSubscription(row)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("failed to insert subscription: %w", err)
	}
	return inserted, nil
}

// ClaimCharge резервирует списание, если next_charge_at не менялся с момента выборки
func (r *PostgresSubscriptionRepository) ClaimCharge(ctx context.Context, claim repository.ChargeClaim) (bool, error) {
	pInv, pAmount, pCreated := pendingArgs(claim.Pending)
	tag, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET next_charge_at = $3,
		    pending_inv_id = $4,
		    pending_amount = $5,
		    pending_created_at = $6,
		    updated_at = now()
		WHERE id = $1
		  AND user_id = $2
		  AND active
		  AND NOT cancel_requested
		  AND next_charge_at = $7`,
		claim.SubscriptionID, claim.UserID, claim.NextChargeAt.UTC(),
		pInv, pAmount, pCreated, claim.ObservedNextChargeAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim charge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseCharge снимает ожидающее списание invID
func (r *PostgresSubscriptionRepository) ReleaseCharge(ctx context.Context, userID, invID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET pending_inv_id = NULL,
		    pending_amount = NULL,
		    pending_created_at = NULL,
		    updated_at = now()
		WHERE user_id = $1 AND active AND pending_inv_id = $2`,
		userID, invID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to release charge: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RequestCancel отмечает отказ от автопродления. Повторный вызов сохраняет первую дату.
func (r *PostgresSubscriptionRepository) RequestCancel(ctx context.Context, userID int64, at time.Time) (domain.Subscription, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE subscriptions
		SET cancel_requested_at = CASE WHEN cancel_requested THEN cancel_requested_at ELSE $2 END,
		    cancel_requested = TRUE,
		    updated_at = now()
		WHERE user_id = $1 AND active
		RETURNING `+subscriptionColumns,
		userID, at.UTC(),
	)
	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, repository.ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("failed to request cancel: %w", err)
	}
	return s, nil
}

// DeactivateExpired снимает active, только если срок истек
func (r *PostgresSubscriptionRepository) DeactivateExpired(ctx context.Context, userID int64, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET active = FALSE, updated_at = now()
		WHERE user_id = $1 AND active AND expires_at < $2`,
		userID, now.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
