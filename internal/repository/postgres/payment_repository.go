package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/repository"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPaymentRepository чтение журнала платежей
type PostgresPaymentRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresPaymentRepository создает новый репозиторий платежей через PostgreSQL
func NewPostgresPaymentRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{
		db:  db,
		log: log,
	}
}

var _ repository.PaymentRepository = (*PostgresPaymentRepository)(nil)

// jsonArg передает JSON как текст, пустой payload пишется как NULL
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// Exists проверяет, записан ли платеж с таким InvId
func (r *PostgresPaymentRepository) Exists(ctx context.Context, invID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE inv_id = $1)`, invID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check payment: %w", err)
	}
	return exists, nil
}

// ListByUser платежи пользователя, новые первыми
func (r *PostgresPaymentRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, inv_id, amount, currency, status, raw_payload, created_at
		FROM payments
		WHERE user_id = $1
		ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var (
			p      domain.Payment
			status string
			raw    []byte
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.InvID, &p.Amount, &p.Currency, &status, &raw, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Status = domain.PaymentStatus(status)
		p.RawPayload = raw
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}
