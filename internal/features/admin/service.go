// Package admin — service.go проверяет пароль администратора и выдаёт токен.
package admin

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/common"
)

// Admins — кто может входить (config.Config.IsAdmin).
type Admins interface {
	IsAdmin(userID int64) bool
}

// Service выдаёт токены администраторам.
type Service struct {
	store        Store
	admins       Admins
	passwordHash string
	tokens       *auth.Tokens
	now          func() time.Time
}

func NewService(store Store, admins Admins, passwordHash string, tokens *auth.Tokens) *Service {
	return &Service{store: store, admins: admins, passwordHash: passwordHash, tokens: tokens, now: time.Now}
}

// Login проверяет пароль администратора с использованием Argon2id.
// Включает защиту от brute-force: 3 неудачные попытки = блокировка на 1 час.
func (s *Service) Login(ctx context.Context, userID int64, password string) (*Session, error) {
	if userID <= 0 {
		return nil, common.Invalid("userId", "must be a positive integer")
	}
	if s.passwordHash == "" || !s.admins.IsAdmin(userID) {
		return nil, common.ErrForbidden
	}

	// Проверяем лимит попыток
	failures, err := s.store.RecentFailures(ctx, userID, s.now().Add(-AttemptWindow))
	if err != nil {
		return nil, err
	}
	if failures >= MaxFailedAttempts {
		return nil, common.ErrTooManyAttempts
	}

	match := auth.VerifyPassword(password, s.passwordHash)
	if err := s.store.LogAttempt(ctx, userID, match); err != nil {
		return nil, err
	}
	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль администратора")
		return nil, common.ErrWrongPassword
	}

	actor := auth.Admin(userID)
	token, expiresAt, err := s.tokens.Issue(actor)
	if err != nil {
		return nil, err
	}
	log.WithField("user_id", userID).Info("Администратор вошёл")
	return &Session{Token: token, ExpiresAt: expiresAt, Actor: actor}, nil
}
