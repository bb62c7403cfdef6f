package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation код ошибки PostgreSQL unique_violation
const uniqueViolation = "23505"

// NewConnection создает пул подключений к PostgreSQL. Подключение и Ping
// повторяются с экспоненциальной задержкой, пока не истечет maxWait.
func NewConnection(ctx context.Context, connString string, maxWait time.Duration, log *logger.Logger) (*pgxpool.Pool, error) {
	log.Info("Connecting to PostgreSQL")

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Настраиваем пул соединений
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	var pool *pgxpool.Pool
	operation := func() error {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return fmt.Errorf("unable to create connection pool: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return fmt.Errorf("unable to ping database: %w", err)
		}
		pool = p
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = maxWait

	err = backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		log.Warnw("PostgreSQL is not ready, retrying", "error", err, "retryIn", next)
	})
	if err != nil {
		return nil, err
	}

	log.Info("Successfully connected to PostgreSQL")
	return pool, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
