package postgres

import (
	"context"
	"fmt"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/repository"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresUserRepository пользователи воронки и вопросы
type PostgresUserRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresUserRepository создает новый репозиторий пользователей через PostgreSQL
func NewPostgresUserRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresUserRepository {
	return &PostgresUserRepository{
		db:  db,
		log: log,
	}
}

var _ repository.UserRepository = (*PostgresUserRepository)(nil)

// Upsert сохраняет имя и шаг воронки пользователя
func (r *PostgresUserRepository) Upsert(ctx context.Context, user domain.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (user_id, username, state, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
		    state = EXCLUDED.state,
		    updated_at = now()`,
		user.UserID, user.Username, user.State,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// SaveQuestion сохраняет вопрос пользователя
func (r *PostgresUserRepository) SaveQuestion(ctx context.Context, q domain.Question) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO questions (user_id, text) VALUES ($1, $2)`,
		q.UserID, q.Text,
	)
	if err != nil {
		return fmt.Errorf("failed to save question: %w", err)
	}
	return nil
}
