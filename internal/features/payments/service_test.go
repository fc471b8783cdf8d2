package payments_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/db/memory"
	"serotonyl.ru/gift-ledger/internal/features/members"
	"serotonyl.ru/gift-ledger/internal/features/payments"
)

var admin = auth.Admin(1000)

// recorder — наблюдатель, который считает события.
type recorder struct {
	initiated []string
	completed []string
}

func (r *recorder) PaymentInitiated(_ context.Context, t *payments.Transaction, _ *payments.Plan, _ *payments.Gateway) error {
	r.initiated = append(r.initiated, t.TransactionID)
	return nil
}

func (r *recorder) PaymentCompleted(_ context.Context, t *payments.Transaction, _ *payments.Plan, by string) error {
	r.completed = append(r.completed, by)
	return errors.New("ошибка наблюдателя не ломает платёж")
}

type fixture struct {
	store     *memory.Store
	svc       *payments.Service
	obs       *recorder
	alice     *members.User
	manual    *payments.Gateway
	automated *payments.Gateway
	diamonds  *payments.Plan
	badge     *payments.Plan
	roomBadge *payments.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	f := &fixture{
		store:     store,
		svc:       payments.NewService(store.Payments(), members.NewService(store.Members()), 30*time.Minute),
		obs:       &recorder{},
		alice:     store.SeedUser("alice"),
		manual:    store.SeedGateway("bank_transfer", payments.GatewayManual),
		automated: store.SeedGateway("card", payments.GatewayAutomated),
		diamonds: store.SeedPlan(payments.Plan{Name: "Diamond pack 1000", Kind: payments.PlanDiamonds,
			Tier: payments.TierMonthly, Price: 999, Currency: "USD", DiamondsAmount: 1000, IsActive: true}),
		badge: store.SeedPlan(payments.Plan{Name: "User badge", Kind: payments.PlanVerification,
			Tier: payments.TierMonthly, TargetType: members.TargetUser, Price: 500, Currency: "USD", IsActive: true}),
		roomBadge: store.SeedPlan(payments.Plan{Name: "Room badge", Kind: payments.PlanVerification,
			Tier: payments.TierMonthly, TargetType: members.TargetRoom, Price: 1000, Currency: "USD", IsActive: true}),
	}
	f.svc.AddObserver(f.obs)
	return f
}

func (f *fixture) initiate(t *testing.T, plan *payments.Plan, gw *payments.Gateway) *payments.Transaction {
	t.Helper()
	tx, err := f.svc.Initiate(context.Background(), auth.User(f.alice.ID), payments.InitiateInput{PlanID: plan.ID, GatewayID: gw.ID})
	require.NoError(t, err)
	return tx
}

func (f *fixture) diamondsOf(t *testing.T, userID int64) int64 {
	t.Helper()
	w, err := f.store.Wallets().GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	return w.Diamonds
}

func TestInitiate(t *testing.T) {
	f := newFixture(t)
	tx := f.initiate(t, f.diamonds, f.manual)

	assert.Regexp(t, `^TXN-[0-9a-f-]{36}$`, tx.TransactionID)
	assert.Equal(t, payments.StatusPending, tx.Status)
	assert.Equal(t, int64(999), tx.Amount)
	assert.Equal(t, "USD", tx.Currency)
	assert.Nil(t, tx.Target, "у пакета алмазов нет цели")
	assert.Equal(t, []string{tx.TransactionID}, f.obs.initiated)
}

func TestInitiate_VerificationTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := auth.User(f.alice.ID)

	tx := f.initiate(t, f.badge, f.manual)
	require.NotNil(t, tx.Target)
	assert.Equal(t, payments.Target{Type: members.TargetUser, ID: f.alice.ID}, *tx.Target)

	bob := f.store.SeedUser("bob")
	_, err := f.svc.Initiate(ctx, alice, payments.InitiateInput{PlanID: f.badge.ID, GatewayID: f.manual.ID,
		Target: &payments.Target{Type: members.TargetUser, ID: bob.ID}})
	assert.ErrorIs(t, err, common.ErrForbidden)

	bobsRoom := f.store.SeedRoom(bob.ID, "bob's room")
	_, err = f.svc.Initiate(ctx, alice, payments.InitiateInput{PlanID: f.roomBadge.ID, GatewayID: f.manual.ID,
		Target: &payments.Target{Type: members.TargetRoom, ID: bobsRoom.ID}})
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = f.svc.Initiate(ctx, alice, payments.InitiateInput{PlanID: f.roomBadge.ID, GatewayID: f.manual.ID})
	assert.ErrorIs(t, err, common.ErrValidation, "тариф комнаты с целью-пользователем")
}

func TestInitiate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := auth.User(f.alice.ID)

	_, err := f.svc.Initiate(ctx, auth.Actor{}, payments.InitiateInput{PlanID: f.diamonds.ID, GatewayID: f.manual.ID})
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, err = f.svc.Initiate(ctx, alice, payments.InitiateInput{})
	var fields common.ValidationErrors
	require.True(t, errors.As(err, &fields))
	assert.Len(t, fields, 2)

	_, err = f.svc.Initiate(ctx, alice, payments.InitiateInput{PlanID: 9999, GatewayID: f.manual.ID})
	assert.ErrorIs(t, err, common.ErrPlanNotFound)

	off := f.store.SeedPlan(payments.Plan{Name: "Old", Kind: payments.PlanDiamonds, Price: 1, DiamondsAmount: 1})
	_, err = f.svc.Initiate(ctx, alice, payments.InitiateInput{PlanID: off.ID, GatewayID: f.manual.ID})
	assert.ErrorIs(t, err, common.ErrPlanInactive)
}

func TestVerifyManual_GrantsDiamondsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.initiate(t, f.diamonds, f.manual)

	done, err := f.svc.VerifyManual(ctx, admin, tx.ID, payments.StatusCompleted, "получено")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, "получено", done.VerificationNotes)
	assert.Equal(t, int64(1000), f.diamondsOf(t, f.alice.ID))
	assert.Equal(t, []string{"admin:1000"}, f.obs.completed)

	_, err = f.svc.VerifyManual(ctx, admin, tx.ID, payments.StatusCompleted, "ещё раз")
	var te *common.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, int64(1000), f.diamondsOf(t, f.alice.ID))
	assert.Len(t, f.obs.completed, 1)
}

func TestVerifyManual_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.initiate(t, f.diamonds, f.automated)

	_, err := f.svc.VerifyManual(ctx, auth.User(f.alice.ID), tx.ID, payments.StatusCompleted, "")
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = f.svc.VerifyManual(ctx, admin, tx.ID, payments.StatusRefunded, "")
	assert.ErrorIs(t, err, common.ErrInvalidStatus)

	_, err = f.svc.VerifyManual(ctx, admin, tx.ID, payments.StatusCompleted, "")
	assert.ErrorIs(t, err, common.ErrNotManualGateway)

	manual := f.initiate(t, f.diamonds, f.manual)
	failed, err := f.svc.VerifyManual(ctx, admin, manual.ID, payments.StatusFailed, "не пришло")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusFailed, failed.Status)
	assert.Zero(t, f.diamondsOf(t, f.alice.ID))
}

func TestHandleCallback_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.initiate(t, f.diamonds, f.automated)

	p, err := f.svc.HandleCallback(ctx, payments.Notification{TransactionID: tx.TransactionID, Event: payments.EventProcessing})
	require.NoError(t, err)
	assert.Equal(t, payments.StatusProcessing, p.Status)

	for i := 0; i < 3; i++ {
		done, err := f.svc.HandleCallback(ctx, payments.Notification{
			TransactionID: tx.TransactionID, Event: payments.EventSuccess, GatewayTransactionID: "ch_1",
		})
		require.NoError(t, err)
		assert.Equal(t, payments.StatusCompleted, done.Status)
	}
	assert.Equal(t, int64(1000), f.diamondsOf(t, f.alice.ID), "повтор колбэка не начисляет снова")
	assert.Equal(t, []string{auth.SystemLabel}, f.obs.completed)

	_, err = f.svc.HandleCallback(ctx, payments.Notification{TransactionID: tx.TransactionID, Event: payments.EventFailure})
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestHandleCallback_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleCallback(ctx, payments.Notification{TransactionID: "TXN-missing", Event: payments.EventSuccess})
	assert.ErrorIs(t, err, common.ErrTransactionNotFound)

	manual := f.initiate(t, f.diamonds, f.manual)
	_, err = f.svc.HandleCallback(ctx, payments.Notification{TransactionID: manual.TransactionID, Event: payments.EventSuccess})
	assert.ErrorIs(t, err, common.ErrNotAutomatedGateway)

	auto := f.initiate(t, f.diamonds, f.automated)
	failed, err := f.svc.HandleCallback(ctx, payments.Notification{TransactionID: auto.TransactionID, Event: payments.EventFailure})
	require.NoError(t, err)
	assert.Equal(t, "declined by gateway", failed.FailureReason)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.initiate(t, f.diamonds, f.manual)
	_, err := f.svc.VerifyManual(ctx, admin, tx.ID, payments.StatusCompleted, "")
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, admin, tx.ID, 500)
	assert.ErrorIs(t, err, common.ErrRefundAmountMismatch, "частичный возврат")

	refunded, err := f.svc.Refund(ctx, admin, tx.ID, 999)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusRefunded, refunded.Status)
	assert.Equal(t, int64(999), refunded.RefundedAmount)
	assert.NotNil(t, refunded.RefundedAt)
	assert.Zero(t, f.diamondsOf(t, f.alice.ID))

	_, err = f.svc.Refund(ctx, admin, tx.ID, 0)
	assert.ErrorIs(t, err, common.ErrAlreadyRefunded)
	assert.Zero(t, f.diamondsOf(t, f.alice.ID))
}

func TestRefund_SpentDiamonds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.initiate(t, f.diamonds, f.manual)
	_, err := f.svc.VerifyManual(ctx, admin, tx.ID, payments.StatusCompleted, "")
	require.NoError(t, err)
	_, err = f.store.Wallets().Adjust(ctx, f.alice.ID, "diamonds", -10, "gift_sent")
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, admin, tx.ID, 0)
	assert.ErrorIs(t, err, common.ErrInsufficientFunds)

	got, err := f.svc.Get(ctx, admin, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCompleted, got.Status, "отказ возврата не меняет статус")
}

func TestRefund_NotCompleted(t *testing.T) {
	f := newFixture(t)
	tx := f.initiate(t, f.diamonds, f.manual)
	_, err := f.svc.Refund(context.Background(), admin, tx.ID, 0)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.initiate(t, f.diamonds, f.manual)

	bob := f.store.SeedUser("bob")
	_, err := f.svc.Cancel(ctx, auth.User(bob.ID), tx.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
	_, err = f.svc.Get(ctx, auth.User(bob.ID), tx.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	cancelled, err := f.svc.Cancel(ctx, auth.User(f.alice.ID), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCancelled, cancelled.Status)

	_, err = f.svc.VerifyManual(ctx, admin, tx.ID, payments.StatusCompleted, "")
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.SetClock(func() time.Time { return time.Now().UTC().Add(-time.Hour) })
	old := f.initiate(t, f.diamonds, f.manual)
	f.store.SetClock(func() time.Time { return time.Now().UTC() })
	fresh := f.initiate(t, f.diamonds, f.manual)

	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, admin, old.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCancelled, got.Status)
	assert.Equal(t, payments.ExpiredReason, got.FailureReason)

	got, err = f.svc.Get(ctx, admin, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPending, got.Status)

	n, err = f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.initiate(t, f.diamonds, f.manual)
	f.initiate(t, f.diamonds, f.manual)
	_, err := f.svc.Cancel(ctx, auth.User(f.alice.ID), a.ID)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, admin, payments.Filter{Status: payments.StatusCancelled})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	_, err = f.svc.List(ctx, admin, payments.Filter{Status: "weird"})
	assert.ErrorIs(t, err, common.ErrInvalidStatus)

	_, err = f.svc.List(ctx, auth.User(f.alice.ID), payments.Filter{})
	assert.ErrorIs(t, err, common.ErrForbidden)
}
