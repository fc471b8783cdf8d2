package memory

import (
	"context"
	"fmt"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
)

type walletsView struct{ s *Store }

// walletLocked возвращает копию кошелька; отсутствующий — новый нулевой.
// Хранилище не меняется, пока вызывающий не вызовет commitWalletLocked.
func (s *Store) walletLocked(userID int64) (wallet.Wallet, error) {
	if _, ok := s.users[userID]; !ok {
		return wallet.Wallet{}, fmt.Errorf("кошелёк user_id=%d: %w", userID, common.ErrUserNotFound)
	}
	if w, ok := s.wallets[userID]; ok {
		return *w, nil
	}
	now := s.now()
	return wallet.Wallet{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *Store) commitWalletLocked(w wallet.Wallet) *wallet.Wallet {
	if w.ID == 0 {
		w.ID = s.nextID()
	}
	stored := w
	s.wallets[w.UserID] = &stored
	return &w
}

// adjustLocked — тот же контракт, что wallet.AdjustTx.
func (s *Store) adjustLocked(userID int64, c wallet.Currency, delta int64, reason wallet.Reason) (wallet.Wallet, *wallet.Entry, error) {
	if err := wallet.ValidateDelta(c, delta); err != nil {
		return wallet.Wallet{}, nil, err
	}
	w, err := s.walletLocked(userID)
	if err != nil {
		return wallet.Wallet{}, nil, err
	}
	if err := w.Apply(c, delta); err != nil {
		return wallet.Wallet{}, nil, err
	}
	w.UpdatedAt = s.now()
	entry := &wallet.Entry{UserID: userID, Currency: c, Delta: delta, BalanceAfter: w.Balance(c), Reason: reason, CreatedAt: w.UpdatedAt}
	return w, entry, nil
}

func (s *Store) commitEntryLocked(e *wallet.Entry) {
	e.ID = s.nextID()
	s.entries = append(s.entries, e)
}

func (v walletsView) GetOrCreate(_ context.Context, userID int64) (*wallet.Wallet, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	w, err := v.s.walletLocked(userID)
	if err != nil {
		return nil, err
	}
	return v.s.commitWalletLocked(w), nil
}

func (v walletsView) Adjust(_ context.Context, userID int64, c wallet.Currency, delta int64, reason wallet.Reason) (*wallet.Wallet, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	w, entry, err := v.s.adjustLocked(userID, c, delta, reason)
	if err != nil {
		return nil, err
	}
	out := v.s.commitWalletLocked(w)
	v.s.commitEntryLocked(entry)
	return out, nil
}

func (v walletsView) Entries(_ context.Context, userID int64, limit int) ([]*wallet.Entry, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*wallet.Entry
	for i := len(v.s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if e := v.s.entries[i]; e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
