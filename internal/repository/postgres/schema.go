package postgres

import (
	"context"
	"fmt"

	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Столбцы subscriptions, появившиеся после первой версии схемы,
// добавляются через ADD COLUMN IF NOT EXISTS.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id    BIGINT PRIMARY KEY,
		username   TEXT,
		state      TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE subscriptions ADD COLUMN IF NOT EXISTS cancel_requested BOOLEAN NOT NULL DEFAULT FALSE`,
	`ALTER TABLE subscriptions ADD COLUMN IF NOT EXISTS cancel_requested_at TIMESTAMPTZ`,
	`ALTER TABLE subscriptions ADD COLUMN IF NOT EXISTS anchor_inv_id BIGINT`,
	`ALTER TABLE subscriptions ADD COLUMN IF NOT EXISTS next_charge_at TIMESTAMPTZ`,
	`ALTER TABLE subscriptions ADD COLUMN IF NOT EXISTS pending_inv_id BIGINT`,
	`ALTER TABLE subscriptions ADD COLUMN IF NOT EXISTS pending_amount NUMERIC(12, 2)`,
	`ALTER TABLE subscriptions ADD COLUMN IF NOT EXISTS pending_created_at TIMESTAMPTZ`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_user_active ON subscriptions (user_id) WHERE active`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_next_charge ON subscriptions (next_charge_at) WHERE active AND NOT cancel_requested`,
	`CREATE TABLE IF NOT EXISTS payments (
		id          BIGSERIAL PRIMARY KEY,
		user_id     BIGINT NOT NULL,
		inv_id      BIGINT NOT NULL UNIQUE,
		amount      NUMERIC(12, 2) NOT NULL,
		currency    TEXT NOT NULL DEFAULT 'KZT',
		status      TEXT NOT NULL DEFAULT 'paid',
		raw_payload JSONB,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_user ON payments (user_id)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL,
		text       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema создает таблицы и недостающие столбцы
func EnsureSchema(ctx context.Context, db *pgxpool.Pool, log *logger.Logger) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	log.Infow("Database schema is up to date", "statements", len(schemaStatements))
	return nil
}
