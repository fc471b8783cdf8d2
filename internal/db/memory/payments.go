package memory

import (
	"context"
	"fmt"
	"maps"
	"time"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/payments"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
)

type paymentsView struct{ s *Store }

func copyTx(t *payments.Transaction) *payments.Transaction {
	cp := *t
	cp.Metadata = maps.Clone(t.Metadata)
	if t.Target != nil {
		target := *t.Target
		cp.Target = &target
	}
	return &cp
}

func (v paymentsView) Gateway(_ context.Context, id int64) (*payments.Gateway, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	g, ok := v.s.gateways[id]
	if !ok {
		return nil, fmt.Errorf("шлюз id=%d: %w", id, common.ErrGatewayNotFound)
	}
	cp := *g
	return &cp, nil
}

func (v paymentsView) Plan(_ context.Context, id int64) (*payments.Plan, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.planLocked(id)
}

func (s *Store) planLocked(id int64) (*payments.Plan, error) {
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("тариф id=%d: %w", id, common.ErrPlanNotFound)
	}
	cp := *p
	return &cp, nil
}

func (v paymentsView) Create(_ context.Context, t *payments.Transaction) (*payments.Transaction, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[t.UserID]; !ok {
		return nil, fmt.Errorf("ошибка создания транзакции: %w", common.ErrUserNotFound)
	}
	if _, ok := s.gateways[t.GatewayID]; !ok {
		return nil, fmt.Errorf("шлюз id=%d: %w", t.GatewayID, common.ErrGatewayNotFound)
	}
	if _, ok := s.plans[t.PlanID]; !ok {
		return nil, fmt.Errorf("тариф id=%d: %w", t.PlanID, common.ErrPlanNotFound)
	}
	if _, dup := s.txByExt[t.TransactionID]; dup {
		return nil, fmt.Errorf("транзакция %s уже существует", t.TransactionID)
	}
	stored := copyTx(t)
	stored.ID = s.nextID()
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	if stored.Metadata == nil {
		stored.Metadata = map[string]any{}
	}
	s.txs[stored.ID] = stored
	s.txOrder = append(s.txOrder, stored.ID)
	s.txByExt[stored.TransactionID] = stored.ID
	return copyTx(stored), nil
}

func (v paymentsView) Get(_ context.Context, id int64) (*payments.Transaction, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.txLocked(id)
}

func (s *Store) txLocked(id int64) (*payments.Transaction, error) {
	t, ok := s.txs[id]
	if !ok {
		return nil, fmt.Errorf("транзакция %d: %w", id, common.ErrTransactionNotFound)
	}
	return copyTx(t), nil
}

func (v paymentsView) GetByExternalID(_ context.Context, transactionID string) (*payments.Transaction, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.txByExt[transactionID]
	if !ok {
		return nil, fmt.Errorf("транзакция %s: %w", transactionID, common.ErrTransactionNotFound)
	}
	return v.s.txLocked(id)
}

func (v paymentsView) List(_ context.Context, f payments.Filter) ([]*payments.Transaction, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*payments.Transaction
	for i := len(v.s.txOrder) - 1; i >= 0 && len(out) < f.Limit; i-- {
		t := v.s.txs[v.s.txOrder[i]]
		if (f.Status == "" || t.Status == f.Status) && (f.UserID == 0 || t.UserID == f.UserID) {
			out = append(out, copyTx(t))
		}
	}
	return out, nil
}

func (v paymentsView) Stale(_ context.Context, before time.Time, limit int) ([]*payments.Transaction, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*payments.Transaction
	for _, id := range v.s.txOrder {
		if len(out) >= limit {
			break
		}
		if t := v.s.txs[id]; t.Status == payments.StatusPending && t.CreatedAt.Before(before) {
			out = append(out, copyTx(t))
		}
	}
	return out, nil
}

func (v paymentsView) Transition(_ context.Context, id int64, ch payments.Change) (*payments.Transaction, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.txs[id]
	if !ok {
		return nil, fmt.Errorf("транзакция %d: %w", id, common.ErrTransactionNotFound)
	}
	if err := payments.CheckTransition(cur, ch); err != nil {
		return nil, err
	}

	var (
		w     wallet.Wallet
		entry *wallet.Entry
	)
	if g := ch.Grant; g != nil {
		var err error
		if w, entry, err = s.adjustLocked(g.UserID, g.Currency, g.Delta, g.Reason); err != nil {
			return nil, err
		}
	}

	next := copyTx(cur)
	payments.ApplyChange(next, ch, s.now())
	if entry != nil {
		s.commitWalletLocked(w)
		s.commitEntryLocked(entry)
	}
	s.txs[id] = next
	return copyTx(next), nil
}
