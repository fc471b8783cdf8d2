// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: хранилище, сервисы, наблюдатели платежей,
// HTTP-роутер и планировщик.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/cache"
	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/config"
	"serotonyl.ru/gift-ledger/internal/db/memory"
	"serotonyl.ru/gift-ledger/internal/db/postgres"
	"serotonyl.ru/gift-ledger/internal/features/admin"
	"serotonyl.ru/gift-ledger/internal/features/gifts"
	"serotonyl.ru/gift-ledger/internal/features/members"
	"serotonyl.ru/gift-ledger/internal/features/payments"
	"serotonyl.ru/gift-ledger/internal/features/verification"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
	"serotonyl.ru/gift-ledger/internal/jobs"
	"serotonyl.ru/gift-ledger/internal/notify"
	"serotonyl.ru/gift-ledger/internal/server"
	"serotonyl.ru/gift-ledger/internal/server/middleware"
)

// App содержит все компоненты приложения.
type App struct {
	Server    *server.Server
	Scheduler *jobs.Scheduler

	limiter *middleware.RateLimiter
	db      *pgxpool.Pool
	redis   redis.UniversalClient
}

// stores — репозитории выбранного драйвера.
type stores struct {
	members      members.Store
	wallets      wallet.Store
	gifts        gifts.Store
	payments     payments.Store
	verification verification.Store
	admin        admin.Store
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	// === 1. Хранилище ===
	st, err := a.openStores(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	// === 2. Сервисы ===
	memberService := members.NewService(st.members)
	if err := memberService.SeedUsers(ctx, cfg.DevSeedUsers); err != nil {
		a.Close()
		return nil, fmt.Errorf("ошибка регистрации DEV_SEED_USERS: %w", err)
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	walletService := wallet.NewService(st.wallets, memberService)
	giftService := gifts.NewService(st.gifts, memberService,
		gifts.NewCalculator(cfg.GiftCommissionRate, cfg.GiftMaxQuantity))
	paymentService := payments.NewService(st.payments, memberService, cfg.PaymentExpiry)
	verificationService := verification.NewService(st.verification, st.payments, memberService, cfg.VerificationAutoApprove)
	adminService := admin.NewService(st.admin, cfg, cfg.AdminPasswordHash, tokens)

	// === 3. Наблюдатели платежей ===
	paymentService.AddObserver(verificationService)
	if cfg.TelegramBotToken != "" {
		bot, err := notify.NewBot(cfg.TelegramBotToken, cfg.AppEnv == "development")
		if err != nil {
			a.Close()
			return nil, err
		}
		paymentService.AddObserver(notify.NewTelegram(bot, cfg.TelegramAdminChatIDs, common.LoadLocation(cfg.AppTimezone)))
	}

	// === 4. HTTP ===
	opts := server.Options{
		Tokens:         tokens,
		Limiter:        middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
	a.limiter = opts.Limiter
	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rdb
		opts.Idempotency = cache.NewIdempotency(rdb)
	} else {
		log.Warn("REDIS_ADDR не задан — Idempotency-Key игнорируется")
	}

	router := server.NewRouter(server.Handlers{
		Wallet:       wallet.NewHandler(walletService),
		Gifts:        gifts.NewHandler(giftService),
		Payments:     payments.NewHandler(paymentService, cfg.PaymentWebhookSecret),
		Verification: verification.NewHandler(verificationService),
		Admin:        admin.NewHandler(adminService),
	}, opts)
	a.Server = server.New(cfg.HTTPAddr, router, cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout)

	// === 5. Планировщик задач ===
	a.Scheduler = jobs.NewScheduler(paymentService, verificationService, jobs.Schedule{
		ExpirePayments: cfg.CronExpirePayments,
		ExpireBadges:   cfg.CronExpireBadges,
		Reconcile:      cfg.CronReconcile,
	}, common.LoadLocation(cfg.AppTimezone))

	return a, nil
}

func (a *App) openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Warn("STORAGE_DRIVER=memory — данные живут до рестарта")
		mem := memory.New()
		mem.SeedDefaults()
		return &stores{
			members:      mem.Members(),
			wallets:      mem.Wallets(),
			gifts:        mem.Gifts(),
			payments:     mem.Payments(),
			verification: mem.Verification(),
			admin:        mem.Admin(),
		}, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		a.db = pool
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		return &stores{
			members:      members.NewRepository(pool),
			wallets:      wallet.NewRepository(pool),
			gifts:        gifts.NewRepository(pool),
			payments:     payments.NewRepository(pool),
			verification: verification.NewRepository(pool),
			admin:        admin.NewRepository(pool),
		}, nil
	}
}

// Close освобождает соединения. Безопасен для частично собранного App.
func (a *App) Close() {
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
