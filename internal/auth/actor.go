// Package auth описывает идентичность вызывающего и её проверку.
// Ядро не читает идентичность из контекста запроса: каждая привилегированная
// операция получает Actor явным параметром.
package auth

import (
	"fmt"

	"serotonyl.ru/gift-ledger/internal/common"
)

// Role — роль вызывающего.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// SystemLabel — кем помечаются действия планировщика и автоматических колбэков.
const SystemLabel = "system"

// Actor — аутентифицированный вызывающий.
type Actor struct {
	UserID int64 `json:"userId"`
	Role   Role  `json:"role"`
}

// User создаёт обычного пользователя.
func User(id int64) Actor { return Actor{UserID: id, Role: RoleUser} }

// Admin создаёт администратора.
func Admin(id int64) Actor { return Actor{UserID: id, Role: RoleAdmin} }

func (a Actor) Authenticated() bool { return a.UserID > 0 }

func (a Actor) IsAdmin() bool { return a.Authenticated() && a.Role == RoleAdmin }

// Label — строка для полей verified_by и логов: "admin:7", "user:42".
func (a Actor) Label() string {
	if !a.Authenticated() {
		return SystemLabel
	}
	return fmt.Sprintf("%s:%d", a.Role, a.UserID)
}

// RequireUser возвращает ErrUnauthorized для анонимного вызывающего.
func RequireUser(a Actor) error {
	if !a.Authenticated() {
		return common.ErrUnauthorized
	}
	return nil
}

// RequireAdmin — 401 для анонима, 403 для не-админа.
func RequireAdmin(a Actor) error {
	if err := RequireUser(a); err != nil {
		return err
	}
	if !a.IsAdmin() {
		return common.ErrForbidden
	}
	return nil
}
