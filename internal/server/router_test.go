package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/db/memory"
	"serotonyl.ru/gift-ledger/internal/features/admin"
	"serotonyl.ru/gift-ledger/internal/features/gifts"
	"serotonyl.ru/gift-ledger/internal/features/members"
	"serotonyl.ru/gift-ledger/internal/features/payments"
	"serotonyl.ru/gift-ledger/internal/features/verification"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
	"serotonyl.ru/gift-ledger/internal/server"
	"serotonyl.ru/gift-ledger/internal/server/middleware"
)

const webhookSecret = "whsec"

type noAdmins struct{}

func (noAdmins) IsAdmin(int64) bool { return false }

type env struct {
	router *gin.Engine
	store  *memory.Store
	tokens *auth.Tokens
	alice  *members.User
	bob    *members.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.New()
	store.SeedDefaults()
	dir := members.NewService(store.Members())
	tokens := auth.NewTokens("secret", "gift-ledger", time.Hour)

	paymentService := payments.NewService(store.Payments(), dir, time.Hour)
	verificationService := verification.NewService(store.Verification(), store.Payments(), dir, true)
	paymentService.AddObserver(verificationService)

	limiter := middleware.NewRateLimiter(1000, time.Minute)
	t.Cleanup(limiter.Close)

	router := server.NewRouter(server.Handlers{
		Wallet:       wallet.NewHandler(wallet.NewService(store.Wallets(), dir)),
		Gifts:        gifts.NewHandler(gifts.NewService(store.Gifts(), dir, gifts.NewCalculator(gifts.DefaultRate, 999))),
		Payments:     payments.NewHandler(paymentService, webhookSecret),
		Verification: verification.NewHandler(verificationService),
		Admin:        admin.NewHandler(admin.NewService(store.Admin(), noAdmins{}, "", tokens)),
	}, server.Options{Tokens: tokens, Limiter: limiter})

	return &env{router: router, store: store, tokens: tokens, alice: store.SeedUser("alice"), bob: store.SeedUser("bob")}
}

func (e *env) token(t *testing.T, a auth.Actor) string {
	t.Helper()
	tok, _, err := e.tokens.Issue(a)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

func (e *env) do(t *testing.T, method, path, token string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func crownID(t *testing.T, e *env) int64 {
	t.Helper()
	list, err := e.store.Gifts().ActiveGifts(context.Background())
	require.NoError(t, err)
	for _, g := range list {
		if g.Name == "Crown" {
			return g.ID
		}
	}
	t.Fatal("Crown не найден в каталоге")
	return 0
}

func TestHealthAndUnknownRoute(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body := e.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, body.Success)
}

func TestWalletRoutes_Auth(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(t, http.MethodGet, "/api/v1/wallet/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := e.do(t, http.MethodGet, "/api/v1/wallet/me", e.token(t, auth.User(e.alice.ID)), nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)

	code, _ = e.do(t, http.MethodPost, "/api/v1/user/alice/diamonds", e.token(t, auth.User(e.alice.ID)),
		gin.H{"amount": 100, "operation": "add"})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestSendGift_OverHTTP(t *testing.T) {
	e := newEnv(t)
	adminToken := e.token(t, auth.Admin(999))
	aliceToken := e.token(t, auth.User(e.alice.ID))
	crown := crownID(t, e)

	code, _ := e.do(t, http.MethodPost, "/api/v1/user/alice/diamonds", adminToken, gin.H{"amount": 400, "operation": "add"})
	require.Equal(t, http.StatusOK, code)

	code, body := e.do(t, http.MethodPost, "/api/v1/user/bob/gift", aliceToken, gin.H{"giftId": crown, "quantity": 3})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "insufficient funds", body.Message)
	assert.JSONEq(t, `{"currency":"diamonds","required":420,"available":400,"commission":120}`, string(body.Details))

	code, _ = e.do(t, http.MethodPost, "/api/v1/user/alice/diamonds", adminToken, gin.H{"amount": 20, "operation": "add"})
	require.Equal(t, http.StatusOK, code)

	code, body = e.do(t, http.MethodPost, "/api/v1/user/bob/gift", aliceToken, gin.H{"giftId": crown, "quantity": 3})
	require.Equal(t, http.StatusCreated, code, body.Error)
	var res struct {
		ActualCost int64 `json:"actualCost"`
		Commission int64 `json:"commission"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &res))
	assert.Equal(t, int64(420), res.ActualCost)
	assert.Equal(t, int64(120), res.Commission)

	code, body = e.do(t, http.MethodPost, "/api/v1/user/alice/gift", aliceToken, gin.H{"giftId": crown, "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "cannot send a gift to yourself", body.Error)

	code, body = e.do(t, http.MethodPost, "/api/v1/user/bob/gift", aliceToken, gin.H{"giftId": crown, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(body.Details), "quantity")
}

func TestWebhook(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var card, pack int64
	for id := int64(1); id < 20; id++ {
		if gw, err := e.store.Payments().Gateway(ctx, id); err == nil && gw.Type == payments.GatewayAutomated {
			card = gw.ID
		}
		if p, err := e.store.Payments().Plan(ctx, id); err == nil && p.Kind == payments.PlanDiamonds {
			pack = p.ID
		}
	}
	require.NotZero(t, card)
	require.NotZero(t, pack)

	code, body := e.do(t, http.MethodPost, "/api/v1/payment-transactions", e.token(t, auth.User(e.alice.ID)),
		gin.H{"planId": pack, "gatewayId": card})
	require.Equal(t, http.StatusCreated, code, body.Error)
	var tx payments.Transaction
	require.NoError(t, json.Unmarshal(body.Data, &tx))

	raw := []byte(fmt.Sprintf(`{"transactionId":%q,"event":"success"}`, tx.TransactionID))
	signed := payments.Sign([]byte(webhookSecret), raw)

	send := func(sig string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(payments.SignatureHeader, sig)
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, send(""))
	assert.Equal(t, http.StatusUnauthorized, send(payments.Sign([]byte("wrong"), raw)))
	assert.Equal(t, http.StatusOK, send(signed))
	assert.Equal(t, http.StatusOK, send(signed), "повтор подтверждается")

	w, err := e.store.Wallets().GetOrCreate(ctx, e.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.Diamonds)
}

func TestAdminLogin_Disabled(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(t, http.MethodPost, "/api/v1/admin/login", "", gin.H{"userId": 1, "password": "x"})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := e.do(t, http.MethodPost, "/api/v1/admin/login", "", gin.H{"password": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(body.Details), "userId")
}

func TestPaymentRoutes_RepeatedTerminalActionsConflict(t *testing.T) {
	e := newEnv(t)
	user := e.token(t, auth.User(e.alice.ID))
	adm := e.token(t, auth.Admin(1000))

	// Шлюз 5 — bank_transfer (manual), тариф 11 — пакет 1000 алмазов
	code, body := e.do(t, http.MethodPost, "/api/v1/payment-transactions", user, gin.H{"planId": 11, "gatewayId": 5})
	require.Equal(t, http.StatusCreated, code, body.Error)
	var tx struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &tx))

	verify := fmt.Sprintf("/api/v1/payment-transactions/%d/verify", tx.ID)
	code, _ = e.do(t, http.MethodPatch, verify, adm, gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodPatch, verify, adm, gin.H{"status": "completed"})
	assert.Equal(t, http.StatusConflict, code)

	refund := fmt.Sprintf("/api/v1/payment-transactions/%d/refund", tx.ID)
	code, _ = e.do(t, http.MethodPost, refund, adm, nil)
	require.Equal(t, http.StatusOK, code)
	code, body = e.do(t, http.MethodPost, refund, adm, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, body.Success)
}
