// Package admin — repository.go работает с таблицей admin_login_attempts.
package admin

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/gift-ledger/internal/db/postgres"
)

// Store — учёт попыток входа. Реализации: Repository и memory.Store.
type Store interface {
	LogAttempt(ctx context.Context, userID int64, success bool) error
	RecentFailures(ctx context.Context, userID int64, since time.Time) (int, error)
}

// Repository работает с админ-таблицами.
type Repository struct {
	db postgres.DBTX
}

// NewRepository создаёт репозиторий.
func NewRepository(db postgres.DBTX) *Repository {
	return &Repository{db: db}
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, userID int64, success bool) error {
	_, err := r.db.Exec(ctx, `INSERT INTO admin_login_attempts (user_id, success) VALUES ($1, $2)`, userID, success)
	if err != nil {
		return fmt.Errorf("ошибка записи попытки входа: %w", err)
	}
	return nil
}

// RecentFailures возвращает количество неудачных попыток начиная с since.
func (r *Repository) RecentFailures(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE user_id = $1 AND success = FALSE AND attempted_at >= $2
	`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта попыток входа: %w", err)
	}
	return count, nil
}
