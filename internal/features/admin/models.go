// Package admin реализует вход администратора по паролю.
// models.go описывает попытки входа и выданный токен.
package admin

import (
	"time"

	"serotonyl.ru/gift-ledger/internal/auth"
)

// Лимит неудачных попыток: 3 за час, затем блокировка.
const (
	MaxFailedAttempts = 3
	AttemptWindow     = time.Hour
)

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Success     bool      `db:"success"`
	AttemptedAt time.Time `db:"attempted_at"`
}

// Session — выданный токен администратора.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Actor     auth.Actor `json:"actor"`
}
