// Package members читает пользователей и комнаты, которыми владеют внешние сервисы.
// models.go описывает структуры, которые нужны ядру: идентичность, владелец комнаты
// и колонки значка верификации.
package members

import (
	"fmt"
	"time"

	"serotonyl.ru/gift-ledger/internal/common"
)

// TargetType — на кого оформляется верификация.
type TargetType string

const (
	TargetUser TargetType = "user"
	TargetRoom TargetType = "room"
)

// ParseTargetType проверяет строку из запроса.
func ParseTargetType(s string) (TargetType, error) {
	switch t := TargetType(s); t {
	case TargetUser, TargetRoom:
		return t, nil
	}
	return "", common.Invalid("type", fmt.Sprintf("unknown target type %q", s), common.ErrInvalidStatus)
}

// Badge — состояние значка верификации пользователя или комнаты.
type Badge struct {
	IsVerified bool       `db:"is_verified" json:"isVerified"`
	VerifiedAt *time.Time `db:"verified_at" json:"verifiedAt,omitempty"`
	VerifiedBy string     `db:"verified_by" json:"verifiedBy,omitempty"`
	ExpiresAt  *time.Time `db:"verification_expires_at" json:"expiresAt,omitempty"`
}

// ActiveAt сообщает, действует ли значок в момент now.
func (b Badge) ActiveAt(now time.Time) bool {
	return b.IsVerified && (b.ExpiresAt == nil || b.ExpiresAt.After(now))
}

// User — пользователь платформы.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Badge     Badge     `json:"badge"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Summary возвращает публичную карточку пользователя.
func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Username: u.Username, IsVerified: u.Badge.IsVerified}
}

// Room — комната; верификацию комнаты может купить только её владелец.
type Room struct {
	ID        int64     `db:"id" json:"id"`
	OwnerID   int64     `db:"owner_id" json:"ownerId"`
	Name      string    `db:"name" json:"name"`
	Badge     Badge     `json:"badge"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Summary — то, что видит отправитель подарка о получателе.
type Summary struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	IsVerified bool   `json:"isVerified"`
}
