// Package common — errors.go определяет ошибки, общие для всех модулей сервиса.
// Обработчики различают типы проблем через errors.Is/errors.As
// и превращают их в HTTP-статусы (см. internal/httpx).
package common

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки валидации входных данных (400, до обращения к хранилищу)
var (
	// ErrValidation — общий маркер ошибок валидации
	ErrValidation = errors.New("validation failed")
	// ErrInvalidAmount — сумма не положительная или вне диапазона
	ErrInvalidAmount = errors.New("amount must be a positive integer")
	// ErrInvalidQuantity — количество подарков вне допустимого диапазона
	ErrInvalidQuantity = errors.New("quantity is out of range")
	// ErrInvalidStatus — неизвестное значение статуса
	ErrInvalidStatus = errors.New("invalid status value")
	// ErrInvalidCurrency — неизвестный вид валюты кошелька
	ErrInvalidCurrency = errors.New("invalid currency kind")
	// ErrRefundAmountMismatch — частичные возвраты не поддерживаются
	ErrRefundAmountMismatch = errors.New("refund amount must equal the transaction amount")
)

// Ошибки отсутствия сущностей (404)
var (
	ErrUserNotFound                = errors.New("user not found")
	ErrRoomNotFound                = errors.New("room not found")
	ErrWalletNotFound              = errors.New("wallet not found")
	ErrGiftNotFound                = errors.New("gift not found")
	ErrTransactionNotFound         = errors.New("payment transaction not found")
	ErrGatewayNotFound             = errors.New("payment gateway not found")
	ErrPlanNotFound                = errors.New("pricing plan not found")
	ErrVerificationRequestNotFound = errors.New("verification request not found")
)

// Нарушения бизнес-правил (400)
var (
	// ErrInsufficientFunds — списание увело бы баланс в минус
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrSelfGiftForbidden — попытка отправить подарок самому себе
	ErrSelfGiftForbidden = errors.New("cannot send a gift to yourself")
	// ErrGiftInactive — подарок снят с витрины
	ErrGiftInactive = errors.New("gift is not active")
	// ErrAlreadyRefunded — повторный возврат
	ErrAlreadyRefunded = errors.New("transaction already refunded")
	// ErrInvalidTransition — переход запрещён графом состояний
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNotManualGateway — ручное подтверждение только для ручных шлюзов
	ErrNotManualGateway = errors.New("transaction is not routed through a manual gateway")
	// ErrNotAutomatedGateway — колбэк пришёл для ручного шлюза
	ErrNotAutomatedGateway = errors.New("transaction is not routed through an automated gateway")
	// ErrGatewayInactive — шлюз отключён
	ErrGatewayInactive = errors.New("payment gateway is not active")
	// ErrPlanInactive — тариф отключён
	ErrPlanInactive = errors.New("pricing plan is not active")
)

// Ошибки доступа
var (
	// ErrUnauthorized — нет идентичности вызывающего (401)
	ErrUnauthorized = errors.New("authentication required")
	// ErrForbidden — у вызывающего нет прав администратора (403)
	ErrForbidden = errors.New("admin access required")
	// ErrWrongPassword — неверный пароль администратора (401)
	ErrWrongPassword = errors.New("wrong password")
	// ErrTooManyAttempts — 3 неудачные попытки за час (429)
	ErrTooManyAttempts = errors.New("too many login attempts, try again later")
)

// InsufficientFundsError несёт контекст отказа: сколько нужно и сколько есть.
// errors.Is(err, ErrInsufficientFunds) == true.
type InsufficientFundsError struct {
	Currency   string `json:"currency"`
	Required   int64  `json:"required"`
	Available  int64  `json:"available"`
	Commission int64  `json:"commission,omitempty"`
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient %s: required %d, available %d", e.Currency, e.Required, e.Available)
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// TransitionError описывает запрещённый переход конечного автомата.
type TransitionError struct {
	Entity string `json:"entity"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %q to %q", e.Entity, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ValidationError — ошибка одного поля запроса.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	cause   error
}

// Invalid создаёт ошибку поля. cause — необязательный sentinel (ErrInvalidAmount и т.п.).
func Invalid(field, message string, cause ...error) *ValidationError {
	e := &ValidationError{Field: field, Message: message}
	if len(cause) > 0 {
		e.cause = cause[0]
	}
	return e
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || (e.cause != nil && target == e.cause)
}

// ValidationErrors — набор ошибок полей (например, от go-playground/validator).
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Error())
	}
	return strings.Join(parts, "; ")
}

func (e ValidationErrors) Is(target error) bool { return target == ErrValidation }

// IsNotFound сообщает, относится ли ошибка к классу «сущность не найдена».
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrUserNotFound, ErrRoomNotFound, ErrWalletNotFound, ErrGiftNotFound,
		ErrTransactionNotFound, ErrGatewayNotFound, ErrPlanNotFound,
		ErrVerificationRequestNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
