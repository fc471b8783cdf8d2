// Package payments ведёт платёжные транзакции по фиксированному графу состояний.
// models.go описывает шлюзы, тарифы, транзакции и уведомления шлюза.
package payments

import (
	"fmt"
	"time"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/members"
)

// Status — состояние платёжной транзакции.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// ParseStatus проверяет значение статуса из запроса.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return st, nil
	}
	return "", common.Invalid("status", fmt.Sprintf("unknown status %q", s), common.ErrInvalidStatus)
}

// GatewayType — кто подтверждает оплату.
type GatewayType string

const (
	GatewayManual    GatewayType = "manual"    // Админ проверяет поступление вручную
	GatewayAutomated GatewayType = "automated" // Шлюз присылает колбэк
)

// Gateway — платёжный шлюз.
type Gateway struct {
	ID       int64       `db:"id" json:"id"`
	Code     string      `db:"code" json:"code"`
	Name     string      `db:"name" json:"name"`
	Type     GatewayType `db:"type" json:"type"`
	IsActive bool        `db:"is_active" json:"isActive"`
}

// PlanKind — что покупается.
type PlanKind string

const (
	PlanVerification PlanKind = "verification" // Значок верификации
	PlanDiamonds     PlanKind = "diamonds"     // Пакет алмазов
)

// Tier — период тарифа верификации.
type Tier string

const (
	TierMonthly   Tier = "monthly"
	TierQuarterly Tier = "quarterly"
	TierYearly    Tier = "yearly"
	TierLifetime  Tier = "lifetime"
)

// Plan — тариф.
type Plan struct {
	ID             int64              `db:"id" json:"id"`
	Name           string             `db:"name" json:"name"`
	Kind           PlanKind           `db:"kind" json:"kind"`
	Tier           Tier               `db:"tier" json:"tier"`
	TargetType     members.TargetType `db:"target_type" json:"targetType"`
	Price          int64              `db:"price" json:"price"`
	Currency       string             `db:"currency" json:"currency"`
	DurationDays   *int               `db:"duration_days" json:"durationDays,omitempty"`
	DiamondsAmount int64              `db:"diamonds_amount" json:"diamondsAmount,omitempty"`
	IsActive       bool               `db:"is_active" json:"isActive"`
}

// Target — на кого оформлена покупка верификации.
type Target struct {
	Type members.TargetType `json:"type"`
	ID   int64              `json:"id"`
}

// Transaction — одна попытка оплаты. Amount, GatewayID и Currency не меняются
// после создания; всё остальное меняется только переходами состояний.
type Transaction struct {
	ID                   int64          `db:"id" json:"id"`
	TransactionID        string         `db:"transaction_id" json:"transactionId"`
	UserID               int64          `db:"user_id" json:"userId"`
	GatewayID            int64          `db:"gateway_id" json:"gatewayId"`
	PlanID               int64          `db:"plan_id" json:"planId"`
	Amount               int64          `db:"amount" json:"amount"`
	Currency             string         `db:"currency" json:"currency"`
	Status               Status         `db:"status" json:"status"`
	RefundedAmount       int64          `db:"refunded_amount" json:"refundedAmount"`
	GatewayTransactionID string         `db:"gateway_transaction_id" json:"gatewayTransactionId,omitempty"`
	FailureReason        string         `db:"failure_reason" json:"failureReason,omitempty"`
	VerificationNotes    string         `db:"verification_notes" json:"verificationNotes,omitempty"`
	Metadata             map[string]any `db:"metadata" json:"metadata,omitempty"`
	Target               *Target        `json:"target,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updatedAt"`
	CompletedAt          *time.Time     `db:"completed_at" json:"completedAt,omitempty"`
	RefundedAt           *time.Time     `db:"refunded_at" json:"refundedAt,omitempty"`
}

// InitiateInput — запрос на покупку.
type InitiateInput struct {
	PlanID    int64
	GatewayID int64
	Target    *Target
	Metadata  map[string]any
}

// Filter — выборка для админского списка.
type Filter struct {
	Status Status
	UserID int64
	Limit  int
}

// Event — тип уведомления от автоматического шлюза.
type Event string

const (
	EventProcessing Event = "processing"
	EventSuccess    Event = "success"
	EventFailure    Event = "failure"
)

// Notification — колбэк автоматического шлюза.
type Notification struct {
	TransactionID        string `json:"transactionId" binding:"required"`
	Event                Event  `json:"event" binding:"required,oneof=processing success failure"`
	GatewayTransactionID string `json:"gatewayTransactionId"`
	FailureReason        string `json:"failureReason"`
}
