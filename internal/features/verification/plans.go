// Package verification — plans.go переводит тариф в срок значка и продлевает его.
package verification

import (
	"slices"
	"time"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/members"
	"serotonyl.ru/gift-ledger/internal/features/payments"
)

const day = 24 * time.Hour

// tierDurations — длительность значка по периоду тарифа.
var tierDurations = map[payments.Tier]time.Duration{
	payments.TierMonthly:   30 * day,
	payments.TierQuarterly: 90 * day,
	payments.TierYearly:    365 * day,
	payments.TierLifetime:  100 * 365 * day,
}

// Duration — сколько даёт тариф. duration_days тарифа важнее периода.
func Duration(plan *payments.Plan) time.Duration {
	if plan.DurationDays != nil && *plan.DurationDays > 0 {
		return time.Duration(*plan.DurationDays) * day
	}
	if d, ok := tierDurations[plan.Tier]; ok {
		return d
	}
	return tierDurations[payments.TierMonthly]
}

// Extend возвращает значок после выдачи: срок = max(текущий срок, now) + d.
// Повторная выдача никогда не укорачивает действующий значок.
func Extend(b members.Badge, now time.Time, d time.Duration, by string) members.Badge {
	base := now
	if b.ExpiresAt != nil && b.ExpiresAt.After(now) {
		base = *b.ExpiresAt
	}
	expires := base.Add(d)
	verifiedAt := now
	return members.Badge{IsVerified: true, VerifiedAt: &verifiedAt, VerifiedBy: by, ExpiresAt: &expires}
}

// reviewTransitions — граф заявки. approved и rejected — окончательные.
var reviewTransitions = map[ReviewStatus][]ReviewStatus{
	ReviewPending:     {ReviewUnderReview, ReviewApproved, ReviewRejected},
	ReviewUnderReview: {ReviewPending, ReviewApproved, ReviewRejected},
}

func CanReview(from, to ReviewStatus) bool {
	return slices.Contains(reviewTransitions[from], to)
}

// CheckReview проверяет изменение статуса заявки.
func CheckReview(cur *Request, r Review) error {
	if (len(r.From) > 0 && !slices.Contains(r.From, cur.Status)) || !CanReview(cur.Status, r.To) {
		return &common.TransitionError{Entity: "verification request", From: string(cur.Status), To: string(r.To)}
	}
	return nil
}

// ApplyReview переносит проверенное изменение на заявку.
func ApplyReview(req *Request, r Review, now time.Time) {
	req.Status = r.To
	req.ReviewedBy = r.ReviewedBy
	req.ReviewedAt = &now
	req.UpdatedAt = now
	if r.AdminFeedback != nil {
		req.AdminFeedback = *r.AdminFeedback
	}
	if r.InternalNotes != nil {
		req.InternalNotes = *r.InternalNotes
	}
}
