package verification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/db/memory"
	"serotonyl.ru/gift-ledger/internal/features/members"
	"serotonyl.ru/gift-ledger/internal/features/payments"
	"serotonyl.ru/gift-ledger/internal/features/verification"
)

var admin = auth.Admin(1000)

type fixture struct {
	store    *memory.Store
	payments *payments.Service
	svc      *verification.Service
	alice    *members.User
	manual   *payments.Gateway
	auto     *payments.Gateway
	monthly  *payments.Plan
	room     *payments.Plan
}

func newFixture(t *testing.T, autoApprove bool) *fixture {
	t.Helper()
	store := memory.New()
	dir := members.NewService(store.Members())
	f := &fixture{
		store:    store,
		payments: payments.NewService(store.Payments(), dir, time.Hour),
		svc:      verification.NewService(store.Verification(), store.Payments(), dir, autoApprove),
		alice:    store.SeedUser("alice"),
		manual:   store.SeedGateway("bank_transfer", payments.GatewayManual),
		auto:     store.SeedGateway("card", payments.GatewayAutomated),
		monthly: store.SeedPlan(payments.Plan{Name: "User badge", Kind: payments.PlanVerification,
			Tier: payments.TierMonthly, TargetType: members.TargetUser, Price: 500, Currency: "USD", IsActive: true}),
		room: store.SeedPlan(payments.Plan{Name: "Room badge", Kind: payments.PlanVerification,
			Tier: payments.TierYearly, TargetType: members.TargetRoom, Price: 1000, Currency: "USD", IsActive: true}),
	}
	f.payments.AddObserver(f.svc)
	return f
}

func (f *fixture) pay(t *testing.T, plan *payments.Plan, target *payments.Target) *payments.Transaction {
	t.Helper()
	ctx := context.Background()
	tx, err := f.payments.Initiate(ctx, auth.User(f.alice.ID), payments.InitiateInput{PlanID: plan.ID, GatewayID: f.manual.ID, Target: target})
	require.NoError(t, err)
	tx, err = f.payments.VerifyManual(ctx, admin, tx.ID, payments.StatusCompleted, "")
	require.NoError(t, err)
	return tx
}

func (f *fixture) userState(t *testing.T) verification.State {
	t.Helper()
	st, err := f.svc.State(context.Background(), auth.User(f.alice.ID), members.TargetUser, f.alice.ID)
	require.NoError(t, err)
	return st
}

func TestInitiate_CreatesPendingRequest(t *testing.T) {
	f := newFixture(t, true)
	tx, err := f.payments.Initiate(context.Background(), auth.User(f.alice.ID),
		payments.InitiateInput{PlanID: f.monthly.ID, GatewayID: f.manual.ID})
	require.NoError(t, err)

	list, err := f.svc.ListRequests(context.Background(), admin, verification.ListFilter{Status: verification.ReviewPending})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tx.ID, list[0].PaymentTransactionID)
	assert.Equal(t, members.TargetUser, list[0].TargetType)
	assert.Equal(t, f.alice.ID, list[0].TargetID)
	assert.False(t, f.userState(t).Active, "значка до оплаты нет")
}

func TestPaymentCompleted_AutoApproves(t *testing.T) {
	f := newFixture(t, true)
	before := time.Now()
	tx := f.pay(t, f.monthly, nil)

	st := f.userState(t)
	assert.True(t, st.Active)
	assert.Equal(t, "admin:1000", st.Badge.VerifiedBy)
	require.NotNil(t, st.Badge.ExpiresAt)
	assert.WithinDuration(t, before.Add(30*24*time.Hour), *st.Badge.ExpiresAt, time.Minute)

	req, err := f.store.Verification().RequestByPayment(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, verification.ReviewApproved, req.Status)
	assert.Contains(t, req.InternalNotes, tx.TransactionID)
}

func TestPaymentCompleted_GateFiresOnce(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	tx := f.pay(t, f.monthly, nil)
	first := *f.userState(t).Badge.ExpiresAt

	plan, err := f.payments.Plan(ctx, tx.PlanID)
	require.NoError(t, err)
	require.NoError(t, f.svc.PaymentCompleted(ctx, tx, plan, auth.SystemLabel))

	n, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, first, *f.userState(t).Badge.ExpiresAt, "повтор не продлевает значок")
}

func TestSecondPurchase_ExtendsFromExpiry(t *testing.T) {
	f := newFixture(t, true)
	f.pay(t, f.monthly, nil)
	first := *f.userState(t).Badge.ExpiresAt

	f.pay(t, f.monthly, nil)
	assert.Equal(t, first.Add(30*24*time.Hour), *f.userState(t).Badge.ExpiresAt)
}

func TestPaymentCompleted_ManualReview(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	tx := f.pay(t, f.monthly, nil)

	req, err := f.store.Verification().RequestByPayment(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, verification.ReviewUnderReview, req.Status)
	assert.False(t, f.userState(t).Active)

	approved, err := f.svc.UpdateStatus(ctx, admin, req.ID, verification.ReviewApproved, "документы в порядке", "Добро пожаловать")
	require.NoError(t, err)
	assert.Equal(t, verification.ReviewApproved, approved.Status)
	assert.Equal(t, "Добро пожаловать", approved.AdminFeedback)
	assert.True(t, f.userState(t).Active)

	_, err = f.svc.UpdateStatus(ctx, admin, req.ID, verification.ReviewRejected, "", "")
	assert.ErrorIs(t, err, common.ErrInvalidTransition, "одобренная заявка закрыта")
}

func TestRoomVerification(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	room := f.store.SeedRoom(f.alice.ID, "alice live")

	f.pay(t, f.room, &payments.Target{Type: members.TargetRoom, ID: room.ID})

	st, err := f.svc.State(ctx, auth.User(f.alice.ID), members.TargetRoom, room.ID)
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.False(t, f.userState(t).Active, "значок комнаты не делает владельца верифицированным")
}

func TestRefund_KeepsBadge(t *testing.T) {
	f := newFixture(t, true)
	tx := f.pay(t, f.monthly, nil)

	_, err := f.payments.Refund(context.Background(), admin, tx.ID, 0)
	require.NoError(t, err)
	assert.True(t, f.userState(t).Active)
}

func TestReconcile_PicksUpMissedGate(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	// Платёж проведён без наблюдателя
	bare := payments.NewService(f.store.Payments(), members.NewService(f.store.Members()), time.Hour)
	tx, err := bare.Initiate(ctx, auth.User(f.alice.ID), payments.InitiateInput{PlanID: f.monthly.ID, GatewayID: f.manual.ID})
	require.NoError(t, err)
	_, err = bare.VerifyManual(ctx, admin, tx.ID, payments.StatusCompleted, "")
	require.NoError(t, err)
	assert.False(t, f.userState(t).Active)

	n, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	st := f.userState(t)
	assert.True(t, st.Active)
	assert.Equal(t, auth.SystemLabel, st.Badge.VerifiedBy)
}

func TestExpireBadges(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.store.SetClock(func() time.Time { return time.Now().UTC().Add(-60 * 24 * time.Hour) })
	f.pay(t, f.monthly, nil)
	f.store.SetClock(func() time.Time { return time.Now().UTC() })

	assert.False(t, f.userState(t).Active, "значок истёк месяц назад")
	n, err := f.svc.ExpireBadges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st := f.userState(t)
	assert.False(t, st.Badge.IsVerified)
}

func TestUpdateStatus_Rejections(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, auth.User(f.alice.ID), 1, verification.ReviewApproved, "", "")
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = f.svc.UpdateStatus(ctx, admin, 1, "maybe", "", "")
	assert.ErrorIs(t, err, common.ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(ctx, admin, 9999, verification.ReviewRejected, "", "")
	assert.ErrorIs(t, err, common.ErrVerificationRequestNotFound)
}
