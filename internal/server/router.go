// Package server собирает HTTP-интерфейс: gin-роутер с middleware и http.Server.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/features/admin"
	"serotonyl.ru/gift-ledger/internal/features/gifts"
	"serotonyl.ru/gift-ledger/internal/features/payments"
	"serotonyl.ru/gift-ledger/internal/features/verification"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
	"serotonyl.ru/gift-ledger/internal/httpx"
	"serotonyl.ru/gift-ledger/internal/server/middleware"
)

// Handlers — обработчики фич, которые вешаются на роутер.
type Handlers struct {
	Wallet       *wallet.Handler
	Gifts        *gifts.Handler
	Payments     *payments.Handler
	Verification *verification.Handler
	Admin        *admin.Handler
}

// Options — middleware, зависящие от конфигурации.
// Idempotency == nil — заголовок Idempotency-Key игнорируется.
type Options struct {
	Tokens         *auth.Tokens
	Limiter        *middleware.RateLimiter
	Idempotency    middleware.IdempotencyStore
	IdempotencyTTL time.Duration
}

// NewRouter строит дерево маршрутов /api/v1.
//
// Группы:
//   - public — без аутентификации (вход админа, вебхуки шлюзов);
//   - user — любой аутентифицированный вызывающий;
//   - admin — только роль admin.
func NewRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.RequestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		httpx.OK(c, "ok", gin.H{"status": "up"})
	})
	r.NoRoute(func(c *gin.Context) {
		httpx.Abort(c, http.StatusNotFound, "not found", "route not found", nil)
	})

	api := r.Group("/api/v1")
	api.Use(middleware.Authenticate(opts.Tokens))
	if opts.Limiter != nil {
		api.Use(opts.Limiter.Middleware())
	}

	public := api.Group("")

	user := api.Group("", middleware.RequireUser())
	if opts.Idempotency != nil {
		user.Use(middleware.Idempotency(opts.Idempotency, opts.IdempotencyTTL))
	}

	adm := user.Group("", middleware.RequireAdmin())

	h.Admin.Register(public)
	h.Wallet.Register(user, adm)
	h.Gifts.Register(user)
	h.Payments.Register(public, user, adm)
	h.Verification.Register(user, adm)

	return r
}
