package gifts_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/db/memory"
	"serotonyl.ru/gift-ledger/internal/features/gifts"
	"serotonyl.ru/gift-ledger/internal/features/members"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
)

type fixture struct {
	store   *memory.Store
	gifts   *gifts.Service
	wallets wallet.Store
	alice   *members.User
	bob     *members.User
	crown   *gifts.Gift
}

func newFixture(t *testing.T, aliceDiamonds int64) *fixture {
	t.Helper()
	store := memory.New()
	dir := members.NewService(store.Members())
	f := &fixture{
		store:   store,
		gifts:   gifts.NewService(store.Gifts(), dir, gifts.NewCalculator(gifts.DefaultRate, 999)),
		wallets: store.Wallets(),
		alice:   store.SeedUser("alice"),
		bob:     store.SeedUser("bob"),
		crown:   store.SeedGift("Crown", 100, true),
	}
	if aliceDiamonds > 0 {
		_, err := f.wallets.Adjust(context.Background(), f.alice.ID, wallet.Diamonds, aliceDiamonds, wallet.ReasonAdminAdd)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) diamonds(t *testing.T, userID int64) int64 {
	t.Helper()
	w, err := f.wallets.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	return w.Diamonds
}

func TestSendGift_DebitsPriceAndCommission(t *testing.T) {
	f := newFixture(t, 1000)

	res, err := f.gifts.SendGift(context.Background(), auth.User(f.alice.ID), "bob",
		gifts.SendInput{GiftID: f.crown.ID, Quantity: 3, Message: "с днём рождения"})
	require.NoError(t, err)

	assert.Equal(t, int64(420), res.ActualCost)
	assert.Equal(t, int64(120), res.Commission)
	assert.Equal(t, int64(300), res.Transfer.TotalValue)
	assert.Equal(t, gifts.UserGift{}, res.Transfer.Destination)
	assert.Equal(t, "bob", res.Recipient.Username)

	assert.Equal(t, int64(580), f.diamonds(t, f.alice.ID))
	assert.Zero(t, f.diamonds(t, f.bob.ID), "получатель ничего не получает на кошелёк")
}

func TestSendGift_SelfGiftLeavesNoRecord(t *testing.T) {
	f := newFixture(t, 1000)

	_, err := f.gifts.SendGift(context.Background(), auth.User(f.alice.ID), "@Alice",
		gifts.SendInput{GiftID: f.crown.ID, Quantity: 1})
	assert.ErrorIs(t, err, common.ErrSelfGiftForbidden)
	assert.Equal(t, int64(1000), f.diamonds(t, f.alice.ID))
	assert.Zero(t, f.store.TransferCount())
}

func TestSendGift_InsufficientFunds(t *testing.T) {
	f := newFixture(t, 400)

	_, err := f.gifts.SendGift(context.Background(), auth.User(f.alice.ID), "bob",
		gifts.SendInput{GiftID: f.crown.ID, Quantity: 3})
	var funds *common.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, int64(420), funds.Required)
	assert.Equal(t, int64(400), funds.Available)
	assert.Equal(t, int64(120), funds.Commission)

	assert.Equal(t, int64(400), f.diamonds(t, f.alice.ID))
	assert.Zero(t, f.store.TransferCount())
}

func TestSendGift_Validation(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	alice := auth.User(f.alice.ID)

	_, err := f.gifts.SendGift(ctx, alice, "bob", gifts.SendInput{GiftID: 0, Quantity: 0, Message: strings.Repeat("я", 501)})
	var fields common.ValidationErrors
	require.True(t, errors.As(err, &fields))
	assert.Len(t, fields, 3)

	_, err = f.gifts.SendGift(ctx, alice, "nobody", gifts.SendInput{GiftID: f.crown.ID, Quantity: 1})
	assert.ErrorIs(t, err, common.ErrUserNotFound)

	_, err = f.gifts.SendGift(ctx, alice, "bob", gifts.SendInput{GiftID: 9999, Quantity: 1})
	assert.ErrorIs(t, err, common.ErrGiftNotFound)

	retired := f.store.SeedGift("Old", 10, false)
	_, err = f.gifts.SendGift(ctx, alice, "bob", gifts.SendInput{GiftID: retired.ID, Quantity: 1})
	assert.ErrorIs(t, err, common.ErrGiftInactive)

	_, err = f.gifts.SendGift(ctx, auth.Actor{}, "bob", gifts.SendInput{GiftID: f.crown.ID, Quantity: 1})
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	assert.Equal(t, int64(1000), f.diamonds(t, f.alice.ID))
}

func TestSendRoomGift(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	room := f.store.SeedRoom(f.bob.ID, "bob's stream")

	res, err := f.gifts.SendRoomGift(ctx, auth.User(f.alice.ID), room.ID, "bob",
		gifts.SendInput{GiftID: f.crown.ID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, gifts.RoomGift{RoomID: room.ID}, res.Transfer.Destination)

	_, err = f.gifts.SendRoomGift(ctx, auth.User(f.alice.ID), 9999, "bob",
		gifts.SendInput{GiftID: f.crown.ID, Quantity: 1})
	assert.ErrorIs(t, err, common.ErrRoomNotFound)

	received, err := f.gifts.History(ctx, auth.User(f.bob.ID), gifts.Received, 10)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, f.alice.ID, received[0].SenderID)
}

// 100 параллельных отправок по 140 с балансом 7000: ровно 50 проходят.
func TestSendGift_ConcurrentSendsNeverOverdraw(t *testing.T) {
	f := newFixture(t, 7000)
	rose := f.store.SeedGift("Rose100", 100, true)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.gifts.SendGift(context.Background(), auth.User(f.alice.ID), "bob",
				gifts.SendInput{GiftID: rose.ID, Quantity: 1})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, common.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, success)
	assert.Equal(t, 50, f.store.TransferCount())
	assert.Zero(t, f.diamonds(t, f.alice.ID))
}

func TestCatalog_OnlyActive(t *testing.T) {
	f := newFixture(t, 0)
	f.store.SeedGift("Hidden", 5, false)

	list, err := f.gifts.Catalog(context.Background(), auth.User(f.alice.ID))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Crown", list[0].Name)
}
