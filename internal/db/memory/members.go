package memory

import (
	"context"
	"fmt"
	"strings"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/members"
)

type membersView struct{ s *Store }

func (v membersView) UserByID(_ context.Context, id int64) (*members.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[id]
	if !ok {
		return nil, fmt.Errorf("пользователь id=%d: %w", id, common.ErrUserNotFound)
	}
	cp := *u
	return &cp, nil
}

func (v membersView) UserByUsername(_ context.Context, username string) (*members.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.usernames[strings.ToLower(members.NormalizeUsername(username))]
	if !ok {
		return nil, fmt.Errorf("пользователь %q: %w", username, common.ErrUserNotFound)
	}
	cp := *v.s.users[id]
	return &cp, nil
}

func (v membersView) Room(_ context.Context, id int64) (*members.Room, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	room, ok := v.s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("комната id=%d: %w", id, common.ErrRoomNotFound)
	}
	cp := *room
	return &cp, nil
}

func (v membersView) EnsureUser(_ context.Context, username string) (*members.User, error) {
	if members.NormalizeUsername(username) == "" {
		return nil, common.Invalid("username", "must not be empty")
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	cp := *v.s.ensureUserLocked(username)
	return &cp, nil
}

func (v membersView) CreateRoom(ctx context.Context, ownerID int64, name string) (*members.Room, error) {
	if _, err := v.UserByID(ctx, ownerID); err != nil {
		return nil, err
	}
	return v.s.SeedRoom(ownerID, name), nil
}
