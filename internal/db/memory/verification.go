package memory

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/members"
	"serotonyl.ru/gift-ledger/internal/features/payments"
	"serotonyl.ru/gift-ledger/internal/features/verification"
)

type verificationView struct{ s *Store }

func copyRequest(r *verification.Request) *verification.Request {
	cp := *r
	return &cp
}

func (v verificationView) CreateRequest(_ context.Context, r *verification.Request) (*verification.Request, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.reqByPayment[r.PaymentTransactionID]; ok {
		return copyRequest(s.requests[id]), nil
	}
	if _, ok := s.txs[r.PaymentTransactionID]; !ok {
		return nil, fmt.Errorf("транзакция %d: %w", r.PaymentTransactionID, common.ErrTransactionNotFound)
	}
	stored := copyRequest(r)
	stored.ID = s.nextID()
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	if stored.Status == "" {
		stored.Status = verification.ReviewPending
	}
	s.requests[stored.ID] = stored
	s.reqOrder = append(s.reqOrder, stored.ID)
	s.reqByPayment[stored.PaymentTransactionID] = stored.ID
	return copyRequest(stored), nil
}

func (v verificationView) Request(_ context.Context, id int64) (*verification.Request, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.requests[id]
	if !ok {
		return nil, fmt.Errorf("заявка %d: %w", id, common.ErrVerificationRequestNotFound)
	}
	return copyRequest(r), nil
}

func (v verificationView) RequestByPayment(_ context.Context, paymentID int64) (*verification.Request, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.reqByPayment[paymentID]
	if !ok {
		return nil, fmt.Errorf("заявка для транзакции %d: %w", paymentID, common.ErrVerificationRequestNotFound)
	}
	return copyRequest(v.s.requests[id]), nil
}

func (v verificationView) ListRequests(_ context.Context, f verification.ListFilter) ([]*verification.Request, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*verification.Request
	for _, id := range v.s.reqOrder {
		if len(out) >= f.Limit {
			break
		}
		r := v.s.requests[id]
		if (f.Status == "" || r.Status == f.Status) && (f.TargetType == "" || r.TargetType == f.TargetType) {
			out = append(out, copyRequest(r))
		}
	}
	return out, nil
}

func (s *Store) reviewLocked(id int64, rv verification.Review) (*verification.Request, error) {
	cur, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("заявка %d: %w", id, common.ErrVerificationRequestNotFound)
	}
	if err := verification.CheckReview(cur, rv); err != nil {
		return nil, err
	}
	next := copyRequest(cur)
	verification.ApplyReview(next, rv, s.now())
	return next, nil
}

func (v verificationView) Review(_ context.Context, id int64, rv verification.Review) (*verification.Request, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	next, err := v.s.reviewLocked(id, rv)
	if err != nil {
		return nil, err
	}
	v.s.requests[id] = next
	return copyRequest(next), nil
}

func (v verificationView) Approve(_ context.Context, id int64, rv verification.Review, g verification.Grant) (*verification.Request, members.Badge, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.reviewLocked(id, rv)
	if err != nil {
		return nil, members.Badge{}, err
	}
	badge, err := s.applyBadgeLocked(g)
	if err != nil {
		return nil, members.Badge{}, err
	}
	s.requests[id] = next
	return copyRequest(next), badge, nil
}

func (v verificationView) ApplyBadge(_ context.Context, g verification.Grant) (members.Badge, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.applyBadgeLocked(g)
}

// applyBadgeLocked проверяет цель и сразу пишет: это последний шаг операции.
func (s *Store) applyBadgeLocked(g verification.Grant) (members.Badge, error) {
	now := s.now()
	switch g.TargetType {
	case members.TargetUser:
		u, ok := s.users[g.TargetID]
		if !ok {
			return members.Badge{}, fmt.Errorf("пользователь id=%d: %w", g.TargetID, common.ErrUserNotFound)
		}
		u.Badge = verification.Extend(u.Badge, now, g.Duration, g.VerifiedBy)
		return u.Badge, nil
	case members.TargetRoom:
		room, ok := s.rooms[g.TargetID]
		if !ok {
			return members.Badge{}, fmt.Errorf("комната id=%d: %w", g.TargetID, common.ErrRoomNotFound)
		}
		room.Badge = verification.Extend(room.Badge, now, g.Duration, g.VerifiedBy)
		return room.Badge, nil
	}
	return members.Badge{}, common.Invalid("targetType", "unknown target type", common.ErrInvalidStatus)
}

func (v verificationView) AwaitingGate(_ context.Context, limit int) ([]int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var ids []int64
	for _, id := range v.s.txOrder {
		if len(ids) >= limit {
			break
		}
		t := v.s.txs[id]
		if t.Status != payments.StatusCompleted {
			continue
		}
		if p, ok := v.s.plans[t.PlanID]; !ok || p.Kind != payments.PlanVerification {
			continue
		}
		if rid, ok := v.s.reqByPayment[id]; ok && v.s.requests[rid].Status != verification.ReviewPending {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (v verificationView) ExpireBadges(_ context.Context, now time.Time) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	n := 0
	expire := func(b *members.Badge) {
		if b.IsVerified && b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
			b.IsVerified = false
			n++
		}
	}
	for _, u := range v.s.users {
		expire(&u.Badge)
	}
	for _, r := range v.s.rooms {
		expire(&r.Badge)
	}
	return n, nil
}
