// Package members — service.go даёт остальным модулям разрешение имён и владения.
package members

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gift-ledger/internal/common"
)

// Service отвечает на вопросы «кто это» и «чья это комната».
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// NormalizeUsername убирает пробелы и ведущий @.
func NormalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

// Resolve находит пользователя по @username.
func (s *Service) Resolve(ctx context.Context, username string) (*User, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, common.Invalid("username", "must not be empty")
	}
	return s.store.UserByUsername(ctx, username)
}

func (s *Service) User(ctx context.Context, id int64) (*User, error) {
	return s.store.UserByID(ctx, id)
}

func (s *Service) Room(ctx context.Context, id int64) (*Room, error) {
	return s.store.Room(ctx, id)
}

// Badge возвращает значок цели верификации.
func (s *Service) Badge(ctx context.Context, target TargetType, id int64) (Badge, error) {
	switch target {
	case TargetUser:
		u, err := s.store.UserByID(ctx, id)
		if err != nil {
			return Badge{}, err
		}
		return u.Badge, nil
	case TargetRoom:
		room, err := s.store.Room(ctx, id)
		if err != nil {
			return Badge{}, err
		}
		return room.Badge, nil
	}
	return Badge{}, common.Invalid("type", "unknown target type", common.ErrInvalidStatus)
}

// CheckTarget проверяет, что цель существует и (для комнаты) принадлежит actorID.
func (s *Service) CheckTarget(ctx context.Context, actorID int64, target TargetType, id int64) error {
	switch target {
	case TargetUser:
		if id != actorID {
			return common.ErrForbidden
		}
		_, err := s.store.UserByID(ctx, id)
		return err
	case TargetRoom:
		room, err := s.store.Room(ctx, id)
		if err != nil {
			return err
		}
		if room.OwnerID != actorID {
			return common.ErrForbidden
		}
		return nil
	}
	return common.Invalid("targetType", "unknown target type", common.ErrInvalidStatus)
}

// SeedUsers регистрирует пользователей из DEV_SEED_USERS.
func (s *Service) SeedUsers(ctx context.Context, usernames []string) error {
	for _, name := range usernames {
		u, err := s.store.EnsureUser(ctx, name)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"user_id": u.ID, "username": u.Username}).Info("Пользователь зарегистрирован")
	}
	return nil
}
