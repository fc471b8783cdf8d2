// Package wallet — service.go содержит проверки доступа и валидацию
// перед обращением к хранилищу кошельков.
package wallet

import (
	"context"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/members"
)

// UserResolver находит пользователя по username (members.Service).
type UserResolver interface {
	Resolve(ctx context.Context, username string) (*members.User, error)
}

// Service управляет кошельками.
type Service struct {
	store Store
	users UserResolver
}

func NewService(store Store, users UserResolver) *Service {
	return &Service{store: store, users: users}
}

// Mine возвращает кошелёк вызывающего, создавая его при первом обращении.
func (s *Service) Mine(ctx context.Context, actor auth.Actor) (*Wallet, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	return s.store.GetOrCreate(ctx, actor.UserID)
}

// ForUser — просмотр чужого кошелька администратором.
func (s *Service) ForUser(ctx context.Context, actor auth.Actor, username string) (*Wallet, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	u, err := s.users.Resolve(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.store.GetOrCreate(ctx, u.ID)
}

// AdminAdjust — ручное начисление или списание.
// Списание больше остатка — InsufficientFunds, кошелёк не меняется.
func (s *Service) AdminAdjust(ctx context.Context, actor auth.Actor, username string, c Currency, amount int64, op Operation) (*Wallet, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, common.Invalid("amount", "must be a positive integer", common.ErrInvalidAmount)
	}

	var (
		delta  int64
		reason Reason
	)
	switch op {
	case OperationAdd:
		delta, reason = amount, ReasonAdminAdd
	case OperationSubtract:
		delta, reason = -amount, ReasonAdminSubtract
	default:
		return nil, common.Invalid("operation", "must be one of [add subtract]")
	}
	if err := ValidateDelta(c, delta); err != nil {
		return nil, err
	}

	u, err := s.users.Resolve(ctx, username)
	if err != nil {
		return nil, err
	}
	w, err := s.store.Adjust(ctx, u.ID, c, delta, reason)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"admin":    actor.Label(),
		"user_id":  u.ID,
		"currency": c,
		"delta":    delta,
	}).Info("Баланс изменён администратором")
	return w, nil
}

// History возвращает последние limit записей журнала вызывающего.
func (s *Service) History(ctx context.Context, actor auth.Actor, limit int) ([]*Entry, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	entries, err := s.store.Entries(ctx, actor.UserID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return entries, nil
}
