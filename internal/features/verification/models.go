// Package verification выдаёт значки верификации пользователям и комнатам
// после оплаты тарифа и ведёт заявки на ручную проверку.
package verification

import (
	"fmt"
	"time"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/members"
)

// ReviewStatus — статус заявки на верификацию.
type ReviewStatus string

const (
	ReviewPending     ReviewStatus = "pending"
	ReviewUnderReview ReviewStatus = "under_review"
	ReviewApproved    ReviewStatus = "approved"
	ReviewRejected    ReviewStatus = "rejected"
)

// ParseReviewStatus проверяет статус из запроса админа.
func ParseReviewStatus(s string) (ReviewStatus, error) {
	switch st := ReviewStatus(s); st {
	case ReviewPending, ReviewUnderReview, ReviewApproved, ReviewRejected:
		return st, nil
	}
	return "", common.Invalid("status", fmt.Sprintf("unknown status %q", s), common.ErrInvalidStatus)
}

// Request — заявка на верификацию, привязанная к одной платёжной транзакции.
type Request struct {
	ID                   int64              `db:"id" json:"id"`
	PaymentTransactionID int64              `db:"payment_transaction_id" json:"paymentTransactionId"`
	RequesterID          int64              `db:"requester_id" json:"requesterId"`
	TargetType           members.TargetType `db:"target_type" json:"targetType"`
	TargetID             int64              `db:"target_id" json:"targetId"`
	PlanID               int64              `db:"plan_id" json:"planId"`
	Status               ReviewStatus       `db:"status" json:"status"`
	AdminFeedback        string             `db:"admin_feedback" json:"adminFeedback,omitempty"` // видит заявитель
	InternalNotes        string             `db:"internal_notes" json:"internalNotes,omitempty"` // только для админов
	ReviewedBy           string             `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt           *time.Time         `db:"reviewed_at" json:"reviewedAt,omitempty"`
	CreatedAt            time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updatedAt"`
}

// Review — запрошенное изменение статуса заявки.
type Review struct {
	To            ReviewStatus
	From          []ReviewStatus // nil — любой статус, допустимый графом
	ReviewedBy    string
	AdminFeedback *string
	InternalNotes *string
}

// Grant — выдача или продление значка.
type Grant struct {
	TargetType members.TargetType
	TargetID   int64
	Duration   time.Duration
	VerifiedBy string
}

// State — текущее состояние значка цели.
type State struct {
	TargetType members.TargetType `json:"targetType"`
	TargetID   int64              `json:"targetId"`
	Badge      members.Badge      `json:"badge"`
	Active     bool               `json:"active"`
}

// ListFilter — выборка заявок для админа.
type ListFilter struct {
	Status     ReviewStatus
	TargetType members.TargetType
	Limit      int
}
