package memory

import (
	"context"
	"fmt"
	"sort"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/gifts"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
)

type giftsView struct{ s *Store }

func (v giftsView) Gift(_ context.Context, id int64) (*gifts.Gift, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	g, ok := v.s.gifts[id]
	if !ok {
		return nil, fmt.Errorf("подарок id=%d: %w", id, common.ErrGiftNotFound)
	}
	cp := *g
	return &cp, nil
}

func (v giftsView) ActiveGifts(_ context.Context) ([]*gifts.Gift, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*gifts.Gift
	for _, g := range v.s.gifts {
		if g.IsActive {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v giftsView) CreateTransfer(_ context.Context, t *gifts.Transfer) (*gifts.Transfer, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gifts[t.GiftID]; !ok {
		return nil, fmt.Errorf("подарок id=%d: %w", t.GiftID, common.ErrGiftNotFound)
	}
	if room, ok := t.Destination.(gifts.RoomGift); ok {
		if _, exists := s.rooms[room.RoomID]; !exists {
			return nil, fmt.Errorf("комната id=%d: %w", room.RoomID, common.ErrRoomNotFound)
		}
	}
	sender, entry, err := s.adjustLocked(t.SenderID, wallet.Diamonds, -t.ActualCost, wallet.ReasonGiftSent)
	if err != nil {
		return nil, err
	}
	recipient, err := s.walletLocked(t.RecipientID)
	if err != nil {
		return nil, err
	}

	s.commitWalletLocked(sender)
	s.commitEntryLocked(entry)
	s.commitWalletLocked(recipient)

	out := *t
	if out.Destination == nil {
		out.Destination = gifts.UserGift{}
	}
	out.ID = s.nextID()
	out.CreatedAt = s.now()
	stored := out
	s.transfers = append(s.transfers, &stored)
	return &out, nil
}

func (v giftsView) Transfers(_ context.Context, userID int64, dir gifts.Direction, limit int) ([]*gifts.Transfer, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*gifts.Transfer
	for i := len(v.s.transfers) - 1; i >= 0 && len(out) < limit; i-- {
		t := v.s.transfers[i]
		if (dir == gifts.Received && t.RecipientID == userID) || (dir != gifts.Received && t.SenderID == userID) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// TransferCount — число записей о подарках (для проверок в тестах).
func (s *Store) TransferCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transfers)
}
