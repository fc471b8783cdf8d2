// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Драйверы хранилища
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- HTTP ---
	HTTPAddr         string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`

	// --- Storage ---
	// memory — только для локальной разработки и тестов, данные живут до рестарта.
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	// Имена пользователей, которые создаются при STORAGE_DRIVER=memory.
	DevSeedUsersRaw string   `envconfig:"DEV_SEED_USERS" default:""`
	DevSeedUsers    []string `envconfig:"-"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт "postgres" (имя сервиса в docker-compose), для локалки DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"ledger"`
	DBPassword string `envconfig:"DB_PASSWORD" default:""`
	DBName     string `envconfig:"DB_NAME" default:"gift_ledger"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Auth ---
	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer string        `envconfig:"JWT_ISSUER" default:"gift-ledger"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"12h"`

	// --- Admin ---
	AdminIDsRaw string  `envconfig:"ADMIN_IDS" default:""`
	AdminIDs    []int64 `envconfig:"-"`
	// Argon2id-хеш, см. scripts/generate_hash.go. Пустой — вход в админку выключен.
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" default:""`

	// --- Gifts ---
	GiftCommissionRate decimal.Decimal `envconfig:"GIFT_COMMISSION_RATE" default:"0.40"`
	GiftMaxQuantity    int             `envconfig:"GIFT_MAX_QUANTITY" default:"999"`

	// --- Payments ---
	PaymentExpiry        time.Duration `envconfig:"PAYMENT_EXPIRY" default:"30m"`
	PaymentWebhookSecret string        `envconfig:"PAYMENT_WEBHOOK_SECRET" default:""`

	// --- Verification ---
	VerificationAutoApprove bool `envconfig:"VERIFICATION_AUTO_APPROVE" default:"true"`

	// --- Redis (ключи идемпотентности). Пустой адрес — идемпотентность выключена ---
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:""`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	// --- Telegram (уведомления админам о ручной проверке). Пустой токен — выключено ---
	TelegramBotToken        string  `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramAdminChatIDsRaw string  `envconfig:"TELEGRAM_ADMIN_CHAT_IDS" default:""`
	TelegramAdminChatIDs    []int64 `envconfig:"-"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"120"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Cron ---
	CronExpirePayments string `envconfig:"CRON_EXPIRE_PAYMENTS" default:"*/5 * * * *"`
	CronExpireBadges   string `envconfig:"CRON_EXPIRE_BADGES" default:"0 * * * *"`
	CronReconcile      string `envconfig:"CRON_RECONCILE" default:"*/10 * * * *"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsAdmin сообщает, входит ли пользователь в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET не может быть пустым")
	}
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD обязателен для STORAGE_DRIVER=postgres")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("неизвестный STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.GiftCommissionRate.IsNegative() {
		return fmt.Errorf("GIFT_COMMISSION_RATE не может быть отрицательным")
	}
	if c.GiftMaxQuantity <= 0 {
		return fmt.Errorf("GIFT_MAX_QUANTITY должен быть > 0")
	}
	if c.PaymentExpiry <= 0 {
		return fmt.Errorf("PAYMENT_EXPIRY должен быть > 0")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS/RATE_LIMIT_WINDOW должны быть > 0")
	}
	if c.TelegramBotToken != "" && len(c.TelegramAdminChatIDs) == 0 {
		return fmt.Errorf("TELEGRAM_ADMIN_CHAT_IDS обязателен, если задан TELEGRAM_BOT_TOKEN")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	chats, err := parseInt64CSV(cfg.TelegramAdminChatIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_ADMIN_CHAT_IDS parse: %w", err)
	}
	cfg.TelegramAdminChatIDs = chats
	cfg.DevSeedUsers = parseCSV(cfg.DevSeedUsersRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	parts := parseCSV(s)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
