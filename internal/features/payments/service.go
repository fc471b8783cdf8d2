// Package payments — service.go содержит правила переходов: кто и когда
// может подтвердить, отменить или вернуть платёж.
package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/members"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
)

// ExpiredReason — причина отмены просроченной транзакции.
const ExpiredReason = "expired"

// Observer получает события жизненного цикла платежа.
// PaymentCompleted вызывается ровно один раз на транзакцию: только тем,
// кто выиграл переход в completed.
type Observer interface {
	PaymentInitiated(ctx context.Context, t *Transaction, plan *Plan, gw *Gateway) error
	PaymentCompleted(ctx context.Context, t *Transaction, plan *Plan, completedBy string) error
}

// TargetChecker — проверка цели покупки (members.Service).
type TargetChecker interface {
	CheckTarget(ctx context.Context, actorID int64, target members.TargetType, id int64) error
}

// Service управляет платёжными транзакциями.
type Service struct {
	store     Store
	targets   TargetChecker
	observers []Observer
	expiry    time.Duration
	now       func() time.Time
}

func NewService(store Store, targets TargetChecker, expiry time.Duration) *Service {
	return &Service{store: store, targets: targets, expiry: expiry, now: time.Now}
}

// AddObserver подписывает наблюдателя (верификация, уведомления админам).
func (s *Service) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Plan — тариф по ID (нужен верификации).
func (s *Service) Plan(ctx context.Context, id int64) (*Plan, error) {
	return s.store.Plan(ctx, id)
}

// Initiate создаёт pending-транзакцию по тарифу.
// Для верификации комнаты вызывающий должен быть её владельцем.
func (s *Service) Initiate(ctx context.Context, actor auth.Actor, in InitiateInput) (*Transaction, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	var errs common.ValidationErrors
	if in.PlanID <= 0 {
		errs = append(errs, common.Invalid("planId", "must be a positive integer"))
	}
	if in.GatewayID <= 0 {
		errs = append(errs, common.Invalid("gatewayId", "must be a positive integer"))
	}
	if len(errs) > 0 {
		return nil, errs
	}

	plan, err := s.store.Plan(ctx, in.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, common.ErrPlanInactive
	}
	gw, err := s.store.Gateway(ctx, in.GatewayID)
	if err != nil {
		return nil, err
	}
	if !gw.IsActive {
		return nil, common.ErrGatewayInactive
	}

	var target *Target
	if plan.Kind == PlanVerification {
		target = in.Target
		if target == nil {
			target = &Target{Type: members.TargetUser, ID: actor.UserID}
		}
		if target.Type != plan.TargetType {
			return nil, common.Invalid("target.type", "plan is for "+string(plan.TargetType)+" verification")
		}
		if err := s.targets.CheckTarget(ctx, actor.UserID, target.Type, target.ID); err != nil {
			return nil, err
		}
	}

	t, err := s.store.Create(ctx, &Transaction{
		TransactionID: "TXN-" + uuid.NewString(),
		UserID:        actor.UserID,
		GatewayID:     gw.ID,
		PlanID:        plan.ID,
		Amount:        plan.Price,
		Currency:      plan.Currency,
		Status:        StatusPending,
		Metadata:      in.Metadata,
		Target:        target,
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"transaction_id": t.TransactionID,
		"user_id":        t.UserID,
		"plan_id":        plan.ID,
		"gateway":        gw.Code,
		"amount":         t.Amount,
	}).Info("Платёж создан")

	for _, o := range s.observers {
		if err := o.PaymentInitiated(ctx, t, plan, gw); err != nil {
			log.WithError(err).WithField("transaction_id", t.TransactionID).Error("Ошибка обработки нового платежа")
		}
	}
	return t, nil
}

// Get — владелец или админ.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id int64) (*Transaction, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, common.ErrForbidden
	}
	return t, nil
}

// List — админский список с фильтрами.
func (s *Service) List(ctx context.Context, actor auth.Actor, f Filter) ([]*Transaction, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			return nil, err
		}
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Transaction{}
	}
	return list, nil
}

// VerifyManual — решение админа по pending-транзакции ручного шлюза.
// Повторное решение по уже закрытой транзакции — TransitionError.
func (s *Service) VerifyManual(ctx context.Context, actor auth.Actor, id int64, status Status, notes string) (*Transaction, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if status != StatusCompleted && status != StatusFailed {
		return nil, common.Invalid("status", "must be one of [completed failed]", common.ErrInvalidStatus)
	}

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	gw, err := s.store.Gateway(ctx, t.GatewayID)
	if err != nil {
		return nil, err
	}
	if gw.Type != GatewayManual {
		return nil, common.ErrNotManualGateway
	}
	plan, err := s.store.Plan(ctx, t.PlanID)
	if err != nil {
		return nil, err
	}

	ch := Change{To: status, From: []Status{StatusPending}, VerificationNotes: &notes}
	if status == StatusCompleted {
		ch.Grant = purchaseGrant(t, plan)
	} else {
		reason := "rejected by admin"
		ch.FailureReason = &reason
	}
	updated, err := s.transition(ctx, t, ch)
	if err != nil {
		return nil, err
	}
	if status == StatusCompleted {
		s.completed(ctx, updated, plan, actor.Label())
	}
	return updated, nil
}

// HandleCallback применяет уведомление автоматического шлюза.
// Повтор уже применённого события подтверждается без побочных эффектов.
func (s *Service) HandleCallback(ctx context.Context, n Notification) (*Transaction, error) {
	if n.TransactionID == "" {
		return nil, common.Invalid("transactionId", "is required")
	}
	t, err := s.store.GetByExternalID(ctx, n.TransactionID)
	if err != nil {
		return nil, err
	}
	gw, err := s.store.Gateway(ctx, t.GatewayID)
	if err != nil {
		return nil, err
	}
	if gw.Type != GatewayAutomated {
		return nil, common.ErrNotAutomatedGateway
	}
	plan, err := s.store.Plan(ctx, t.PlanID)
	if err != nil {
		return nil, err
	}

	var ch Change
	switch n.Event {
	case EventProcessing:
		ch = Change{To: StatusProcessing, From: []Status{StatusPending}}
	case EventSuccess:
		ch = Change{To: StatusCompleted, From: []Status{StatusPending, StatusProcessing}, Grant: purchaseGrant(t, plan)}
	case EventFailure:
		reason := n.FailureReason
		if reason == "" {
			reason = "declined by gateway"
		}
		ch = Change{To: StatusFailed, From: []Status{StatusPending, StatusProcessing}, FailureReason: &reason}
	default:
		return nil, common.Invalid("event", "must be one of [processing success failure]", common.ErrInvalidStatus)
	}
	if n.GatewayTransactionID != "" {
		ch.GatewayTransactionID = &n.GatewayTransactionID
	}

	if t.Status == ch.To {
		return t, nil
	}
	updated, err := s.transition(ctx, t, ch)
	if err != nil {
		if errors.Is(err, common.ErrInvalidTransition) {
			// Параллельный колбэк мог успеть первым
			if fresh, gerr := s.store.Get(ctx, t.ID); gerr == nil && fresh.Status == ch.To {
				return fresh, nil
			}
		}
		return nil, err
	}
	if updated.Status == StatusCompleted {
		s.completed(ctx, updated, plan, auth.SystemLabel)
	}
	return updated, nil
}

// Cancel — владелец отменяет свою pending-транзакцию.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id int64) (*Transaction, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != actor.UserID {
		return nil, common.ErrForbidden
	}
	reason := "cancelled by user"
	return s.transition(ctx, t, Change{To: StatusCancelled, From: []Status{StatusPending}, FailureReason: &reason})
}

// Refund — единственный возврат завершённой транзакции.
// amount == 0 — полный возврат; частичные возвраты не поддерживаются.
func (s *Service) Refund(ctx context.Context, actor auth.Actor, id int64, amount int64) (*Transaction, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, common.Invalid("amount", "must not be negative", common.ErrInvalidAmount)
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if amount != 0 && amount != t.Amount {
		return nil, common.Invalid("amount", "must equal the transaction amount", common.ErrRefundAmountMismatch)
	}
	plan, err := s.store.Plan(ctx, t.PlanID)
	if err != nil {
		return nil, err
	}

	ch := Change{To: StatusRefunded, From: []Status{StatusCompleted}}
	if g := purchaseGrant(t, plan); g != nil {
		g.Delta, g.Reason = -g.Delta, wallet.ReasonRefund
		ch.Grant = g
	}
	updated, err := s.transition(ctx, t, ch)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"transaction_id": updated.TransactionID,
		"admin":          actor.Label(),
		"refunded":       updated.RefundedAmount,
	}).Info("Платёж возвращён")
	return updated, nil
}

// ExpireStale отменяет pending-транзакции старше PAYMENT_EXPIRY.
// Возвращает число отменённых.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	stale, err := s.store.Stale(ctx, s.now().Add(-s.expiry), 100)
	if err != nil {
		return 0, err
	}
	reason := ExpiredReason
	expired := 0
	for _, t := range stale {
		_, err := s.transition(ctx, t, Change{To: StatusCancelled, From: []Status{StatusPending}, FailureReason: &reason})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, common.ErrInvalidTransition):
			// Успели оплатить или отменить
		default:
			return expired, err
		}
	}
	return expired, nil
}

func (s *Service) transition(ctx context.Context, t *Transaction, ch Change) (*Transaction, error) {
	updated, err := s.store.Transition(ctx, t.ID, ch)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"transaction_id": updated.TransactionID,
		"from":           t.Status,
		"to":             updated.Status,
	}).Info("Переход платежа")
	return updated, nil
}

func (s *Service) completed(ctx context.Context, t *Transaction, plan *Plan, by string) {
	for _, o := range s.observers {
		if err := o.PaymentCompleted(ctx, t, plan, by); err != nil {
			log.WithError(err).WithField("transaction_id", t.TransactionID).Error("Ошибка обработки оплаченного платежа")
		}
	}
}

// purchaseGrant — начисление пакета алмазов; nil для остальных тарифов.
func purchaseGrant(t *Transaction, plan *Plan) *WalletGrant {
	if plan.Kind != PlanDiamonds || plan.DiamondsAmount <= 0 {
		return nil
	}
	return &WalletGrant{UserID: t.UserID, Currency: wallet.Diamonds, Delta: plan.DiamondsAmount, Reason: wallet.ReasonPurchase}
}
