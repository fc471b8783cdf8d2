// Package verification — service.go связывает оплату тарифа с выдачей значка
// и ведёт админскую проверку заявок.
package verification

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/members"
	"serotonyl.ru/gift-ledger/internal/features/payments"
)

// PaymentReader — чтение платежей для сверки (payments.Store).
type PaymentReader interface {
	Get(ctx context.Context, id int64) (*payments.Transaction, error)
	Plan(ctx context.Context, id int64) (*payments.Plan, error)
}

// BadgeReader — текущее состояние значка (members.Service).
type BadgeReader interface {
	Badge(ctx context.Context, target members.TargetType, id int64) (members.Badge, error)
}

// Service реализует payments.Observer.
type Service struct {
	store       Store
	payments    PaymentReader
	badges      BadgeReader
	autoApprove bool
	now         func() time.Time
}

var _ payments.Observer = (*Service)(nil)

func NewService(store Store, payments PaymentReader, badges BadgeReader, autoApprove bool) *Service {
	return &Service{store: store, payments: payments, badges: badges, autoApprove: autoApprove, now: time.Now}
}

// PaymentInitiated создаёт pending-заявку для покупки верификации.
func (s *Service) PaymentInitiated(ctx context.Context, t *payments.Transaction, plan *payments.Plan, _ *payments.Gateway) error {
	if plan.Kind != payments.PlanVerification {
		return nil
	}
	_, err := s.ensureRequest(ctx, t)
	return err
}

// PaymentCompleted — срабатывание ворот по оплате.
// Заявка меняется только из pending, поэтому повторная обработка той же
// оплаты не выдаёт значок второй раз.
func (s *Service) PaymentCompleted(ctx context.Context, t *payments.Transaction, plan *payments.Plan, completedBy string) error {
	if plan.Kind != payments.PlanVerification {
		return nil
	}
	req, err := s.ensureRequest(ctx, t)
	if err != nil {
		return err
	}
	if req.Status != ReviewPending {
		return nil
	}

	if !s.autoApprove {
		_, err := s.store.Review(ctx, req.ID, Review{
			To:         ReviewUnderReview,
			From:       []ReviewStatus{ReviewPending},
			ReviewedBy: completedBy,
		})
		if errors.Is(err, common.ErrInvalidTransition) {
			return nil
		}
		return err
	}

	notes := "approved on payment " + t.TransactionID
	_, badge, err := s.store.Approve(ctx, req.ID, Review{
		To:            ReviewApproved,
		From:          []ReviewStatus{ReviewPending},
		ReviewedBy:    completedBy,
		InternalNotes: &notes,
	}, s.grant(req, plan, completedBy))
	if errors.Is(err, common.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	s.logBadge(req, badge)
	return nil
}

func (s *Service) ensureRequest(ctx context.Context, t *payments.Transaction) (*Request, error) {
	req, err := s.store.RequestByPayment(ctx, t.ID)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, common.ErrVerificationRequestNotFound) {
		return nil, err
	}
	target := payments.Target{Type: members.TargetUser, ID: t.UserID}
	if t.Target != nil {
		target = *t.Target
	}
	return s.store.CreateRequest(ctx, &Request{
		PaymentTransactionID: t.ID,
		RequesterID:          t.UserID,
		TargetType:           target.Type,
		TargetID:             target.ID,
		PlanID:               t.PlanID,
		Status:               ReviewPending,
	})
}

func (s *Service) grant(req *Request, plan *payments.Plan, by string) Grant {
	return Grant{TargetType: req.TargetType, TargetID: req.TargetID, Duration: Duration(plan), VerifiedBy: by}
}

// ApplyVerification выдаёт или продлевает значок по тарифу.
func (s *Service) ApplyVerification(ctx context.Context, target members.TargetType, id int64, plan *payments.Plan, verifiedBy string) (State, error) {
	badge, err := s.store.ApplyBadge(ctx, Grant{TargetType: target, TargetID: id, Duration: Duration(plan), VerifiedBy: verifiedBy})
	if err != nil {
		return State{}, err
	}
	return State{TargetType: target, TargetID: id, Badge: badge, Active: badge.ActiveAt(s.now())}, nil
}

// State — значок цели.
func (s *Service) State(ctx context.Context, actor auth.Actor, target members.TargetType, id int64) (State, error) {
	if err := auth.RequireUser(actor); err != nil {
		return State{}, err
	}
	badge, err := s.badges.Badge(ctx, target, id)
	if err != nil {
		return State{}, err
	}
	return State{TargetType: target, TargetID: id, Badge: badge, Active: badge.ActiveAt(s.now())}, nil
}

// ListRequests — заявки для админа.
func (s *Service) ListRequests(ctx context.Context, actor auth.Actor, f ListFilter) ([]*Request, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if f.Status != "" {
		if _, err := ParseReviewStatus(string(f.Status)); err != nil {
			return nil, err
		}
	}
	if f.TargetType != "" {
		if _, err := members.ParseTargetType(string(f.TargetType)); err != nil {
			return nil, err
		}
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	list, err := s.store.ListRequests(ctx, f)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Request{}
	}
	return list, nil
}

// UpdateStatus — решение админа. Одобрение выдаёт значок от имени admin:<id>
// независимо от статуса оплаты.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, id int64, status ReviewStatus, reviewNotes, adminFeedback string) (*Request, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := ParseReviewStatus(string(status)); err != nil {
		return nil, err
	}

	rv := Review{To: status, ReviewedBy: actor.Label()}
	if reviewNotes != "" {
		rv.InternalNotes = &reviewNotes
	}
	if adminFeedback != "" {
		rv.AdminFeedback = &adminFeedback
	}

	if status != ReviewApproved {
		req, err := s.store.Review(ctx, id, rv)
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"request_id": id, "status": status, "admin": actor.Label()}).Info("Заявка на верификацию обновлена")
		return req, nil
	}

	req, err := s.store.Request(ctx, id)
	if err != nil {
		return nil, err
	}
	plan, err := s.payments.Plan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	updated, badge, err := s.store.Approve(ctx, id, rv, s.grant(req, plan, actor.Label()))
	if err != nil {
		return nil, err
	}
	s.logBadge(updated, badge)
	return updated, nil
}

// Reconcile повторяет срабатывание ворот для оплат, заявка которых не разобрана
// (например, если наблюдатель упал после перехода в completed).
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	ids, err := s.store.AwaitingGate(ctx, 100)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, id := range ids {
		t, err := s.payments.Get(ctx, id)
		if err != nil {
			return done, err
		}
		plan, err := s.payments.Plan(ctx, t.PlanID)
		if err != nil {
			return done, err
		}
		if err := s.PaymentCompleted(ctx, t, plan, auth.SystemLabel); err != nil {
			log.WithError(err).WithField("transaction_id", t.TransactionID).Error("Ошибка сверки верификации")
			continue
		}
		done++
	}
	return done, nil
}

// ExpireBadges снимает просроченные значки.
func (s *Service) ExpireBadges(ctx context.Context) (int, error) {
	return s.store.ExpireBadges(ctx, s.now())
}

func (s *Service) logBadge(req *Request, b members.Badge) {
	log.WithFields(log.Fields{
		"request_id":  req.ID,
		"target_type": req.TargetType,
		"target_id":   req.TargetID,
		"verified_by": b.VerifiedBy,
		"expires_at":  b.ExpiresAt,
	}).Info("Значок верификации выдан")
}
