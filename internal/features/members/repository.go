// Package members — repository.go читает таблицы users и rooms.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/db/postgres"
)

// Store — чтение и регистрация участников. Реализации: Repository и memory.Store.
type Store interface {
	UserByID(ctx context.Context, id int64) (*User, error)
	UserByUsername(ctx context.Context, username string) (*User, error)
	Room(ctx context.Context, id int64) (*Room, error)
	EnsureUser(ctx context.Context, username string) (*User, error)
	CreateRoom(ctx context.Context, ownerID int64, name string) (*Room, error)
}

type Repository struct {
	db postgres.DBTX
}

func NewRepository(db postgres.DBTX) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, username, is_verified, verified_at, COALESCE(verified_by, ''),
	verification_expires_at, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username,
		&u.Badge.IsVerified, &u.Badge.VerifiedAt, &u.Badge.VerifiedBy, &u.Badge.ExpiresAt,
		&u.CreatedAt,
	)
	return &u, err
}

// UserByID: если не найден — common.ErrUserNotFound
func (r *Repository) UserByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("пользователь id=%d: %w", id, common.ErrUserNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения пользователя (id=%d): %w", id, err)
	}
	return u, nil
}

// UserByUsername ищет без учёта регистра, ведущий @ отбрасывается.
func (r *Repository) UserByUsername(ctx context.Context, username string) (*User, error) {
	username = NormalizeUsername(username)
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1)`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("пользователь %q: %w", username, common.ErrUserNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения пользователя (username=%s): %w", username, err)
	}
	return u, nil
}

func (r *Repository) Room(ctx context.Context, id int64) (*Room, error) {
	var room Room
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, name, is_verified, verified_at, COALESCE(verified_by, ''),
		       verification_expires_at, created_at
		FROM rooms
		WHERE id = $1
	`, id).Scan(&room.ID, &room.OwnerID, &room.Name,
		&room.Badge.IsVerified, &room.Badge.VerifiedAt, &room.Badge.VerifiedBy, &room.Badge.ExpiresAt,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("комната id=%d: %w", id, common.ErrRoomNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения комнаты (id=%d): %w", id, err)
	}
	return &room, nil
}

// EnsureUser регистрирует пользователя, если его ещё нет (DEV_SEED_USERS).
func (r *Repository) EnsureUser(ctx context.Context, username string) (*User, error) {
	username = NormalizeUsername(username)
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (username) VALUES ($1)
		ON CONFLICT (LOWER(username)) DO NOTHING
	`, username)
	if err != nil {
		return nil, fmt.Errorf("ошибка регистрации пользователя %q: %w", username, err)
	}
	return r.UserByUsername(ctx, username)
}

func (r *Repository) CreateRoom(ctx context.Context, ownerID int64, name string) (*Room, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO rooms (owner_id, name) VALUES ($1, $2) RETURNING id`, ownerID, name,
	).Scan(&id)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("владелец id=%d: %w", ownerID, common.ErrUserNotFound)
		}
		return nil, fmt.Errorf("ошибка создания комнаты: %w", err)
	}
	return r.Room(ctx, id)
}
