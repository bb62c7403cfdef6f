package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DBClient клиент отчетных запросов (статистика для операторов)
type DBClient struct {
	db  *sqlx.DB
	log *zap.Logger
}

// NewDBClient создает новый экземпляр DBClient.
func NewDBClient(ctx context.Context, dsn string, log *zap.Logger) (*DBClient, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &DBClient{db: db, log: log}, nil
}

// Close закрывает соединение с базой данных.
func (dc *DBClient) Close() error {
	if err := dc.db.Close(); err != nil {
		dc.log.Error("Failed to close database connection", zap.Error(err))
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

type totalsRow struct {
	TotalUsers          int64 `db:"total_users"`
	ActiveSubscriptions int64 `db:"active_subscriptions"`
	ExpiredActive       int64 `db:"expired_active"`
	TotalPayments       int64 `db:"total_payments"`
}

type funnelRow struct {
	State string `db:"state"`
	Count int64  `db:"count"`
}

// Stats сводная статистика по пользователям, подпискам и платежам
func (dc *DBClient) Stats(ctx context.Context, now time.Time) (domain.Stats, error) {
	var totals totalsRow
	query := `
		SELECT
			(SELECT count(*) FROM users) AS total_users,
			(SELECT count(*) FROM subscriptions WHERE active AND expires_at > $1) AS active_subscriptions,
			(SELECT count(*) FROM subscriptions WHERE active AND expires_at <= $1) AS expired_active,
			(SELECT count(*) FROM payments) AS total_payments`
	if err := dc.db.GetContext(ctx, &totals, query, now.UTC()); err != nil {
		dc.log.Error("Failed to load totals", zap.Error(err))
		return domain.Stats{}, fmt.Errorf("failed to load totals: %w", err)
	}

	var funnel []funnelRow
	err := dc.db.SelectContext(ctx, &funnel, `
		SELECT state, count(*) AS count
		FROM users
		WHERE state IS NOT NULL AND state <> ''
		GROUP BY state
		ORDER BY state`)
	if err != nil {
		dc.log.Error("Failed to load funnel statistics", zap.Error(err))
		return domain.Stats{}, fmt.Errorf("failed to load funnel statistics: %w", err)
	}

	st := domain.Stats{
		TotalUsers:          totals.TotalUsers,
		ActiveSubscriptions: totals.ActiveSubscriptions,
		ExpiredActive:       totals.ExpiredActive,
		TotalPayments:       totals.TotalPayments,
		Funnel:              make(map[string]int64, len(funnel)),
	}
	for _, row := range funnel {
		st.Funnel[row.State] = row.Count
	}

	dc.log.Debug("Statistics loaded", zap.Int64("users", st.TotalUsers), zap.Int("states", len(funnel)))
	return st, nil
}
