// Package postgres — migrations.go содержит схему БД сервиса.
// Каждая миграция применяется ровно один раз (см. ExecMigrationSQL).
package postgres

type migration struct {
	version int
	sql     string
}

// migrations — упорядоченный список. Новые миграции только дописываются в конец.
var migrations = []migration{
	{1, `
		-- Пользователи и комнаты принадлежат внешним сервисам;
		-- ядро читает id/username/owner_id и пишет только колонки верификации.
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(64) NOT NULL,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			verified_at TIMESTAMPTZ,
			verified_by VARCHAR(64),
			verification_expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users (LOWER(username));

		CREATE TABLE IF NOT EXISTS rooms (
			id BIGSERIAL PRIMARY KEY,
			owner_id BIGINT NOT NULL REFERENCES users(id),
			name VARCHAR(128) NOT NULL,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			verified_at TIMESTAMPTZ,
			verified_by VARCHAR(64),
			verification_expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`},
	{2, `
		CREATE TABLE IF NOT EXISTS wallets (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL UNIQUE REFERENCES users(id),
			coins BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0),
			diamonds BIGINT NOT NULL DEFAULT 0 CHECK (diamonds >= 0),
			total_coins_earned BIGINT NOT NULL DEFAULT 0,
			total_coins_spent BIGINT NOT NULL DEFAULT 0,
			total_diamonds_earned BIGINT NOT NULL DEFAULT 0,
			total_diamonds_spent BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		-- Журнал изменений баланса: одна строка на успешный adjust
		CREATE TABLE IF NOT EXISTS wallet_entries (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id),
			currency VARCHAR(16) NOT NULL,
			delta BIGINT NOT NULL CHECK (delta <> 0),
			balance_after BIGINT NOT NULL,
			reason VARCHAR(32) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_wallet_entries_user ON wallet_entries (user_id, id DESC);
	`},
	{3, `
		CREATE TABLE IF NOT EXISTS gifts (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(64) NOT NULL,
			price BIGINT NOT NULL CHECK (price > 0),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS gift_transfers (
			id BIGSERIAL PRIMARY KEY,
			sender_id BIGINT NOT NULL REFERENCES users(id),
			recipient_id BIGINT NOT NULL REFERENCES users(id),
			gift_id BIGINT NOT NULL REFERENCES gifts(id),
			quantity INTEGER NOT NULL CHECK (quantity >= 1),
			total_value BIGINT NOT NULL,
			commission BIGINT NOT NULL,
			actual_cost BIGINT NOT NULL,
			message TEXT,
			room_id BIGINT REFERENCES rooms(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (sender_id <> recipient_id)
		);
		CREATE INDEX IF NOT EXISTS idx_gift_transfers_sender ON gift_transfers (sender_id, id DESC);
		CREATE INDEX IF NOT EXISTS idx_gift_transfers_recipient ON gift_transfers (recipient_id, id DESC);
	`},
	{4, `
		CREATE TABLE IF NOT EXISTS payment_gateways (
			id BIGSERIAL PRIMARY KEY,
			code VARCHAR(32) NOT NULL UNIQUE,
			name VARCHAR(64) NOT NULL,
			type VARCHAR(16) NOT NULL CHECK (type IN ('manual', 'automated')),
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE TABLE IF NOT EXISTS pricing_plans (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(64) NOT NULL,
			kind VARCHAR(16) NOT NULL CHECK (kind IN ('verification', 'diamonds')),
			tier VARCHAR(16) NOT NULL DEFAULT 'monthly',
			target_type VARCHAR(8) NOT NULL DEFAULT 'user' CHECK (target_type IN ('user', 'room')),
			price BIGINT NOT NULL CHECK (price > 0),
			currency VARCHAR(8) NOT NULL,
			duration_days INTEGER CHECK (duration_days > 0),
			diamonds_amount BIGINT NOT NULL DEFAULT 0 CHECK (diamonds_amount >= 0),
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE TABLE IF NOT EXISTS payment_transactions (
			id BIGSERIAL PRIMARY KEY,
			transaction_id VARCHAR(64) NOT NULL UNIQUE,
			user_id BIGINT NOT NULL REFERENCES users(id),
			gateway_id BIGINT NOT NULL REFERENCES payment_gateways(id),
			plan_id BIGINT NOT NULL REFERENCES pricing_plans(id),
			amount BIGINT NOT NULL CHECK (amount > 0),
			currency VARCHAR(8) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			refunded_amount BIGINT NOT NULL DEFAULT 0,
			gateway_transaction_id VARCHAR(128),
			failure_reason TEXT,
			verification_notes TEXT,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			target_type VARCHAR(8),
			target_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ,
			refunded_at TIMESTAMPTZ,
			CHECK (refunded_amount = 0 OR refunded_amount = amount)
		);
		CREATE INDEX IF NOT EXISTS idx_payment_transactions_status ON payment_transactions (status, created_at);
		CREATE INDEX IF NOT EXISTS idx_payment_transactions_user ON payment_transactions (user_id, id DESC);
	`},
	{5, `
		CREATE TABLE IF NOT EXISTS verification_requests (
			id BIGSERIAL PRIMARY KEY,
			payment_transaction_id BIGINT NOT NULL UNIQUE REFERENCES payment_transactions(id),
			requester_id BIGINT NOT NULL REFERENCES users(id),
			target_type VARCHAR(8) NOT NULL CHECK (target_type IN ('user', 'room')),
			target_id BIGINT NOT NULL,
			plan_id BIGINT NOT NULL REFERENCES pricing_plans(id),
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			admin_feedback TEXT NOT NULL DEFAULT '',
			internal_notes TEXT NOT NULL DEFAULT '',
			reviewed_by VARCHAR(64),
			reviewed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_verification_requests_status ON verification_requests (status, target_type);
	`},
	{6, `
		-- Попытки входа в админку (брутфорс-защита)
		CREATE TABLE IF NOT EXISTS admin_login_attempts (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			success BOOLEAN NOT NULL,
			attempted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_admin_login_attempts_user ON admin_login_attempts (user_id, attempted_at);
	`},
	{7, `
		-- Стартовый каталог: подарки, шлюзы, тарифы
		INSERT INTO gifts (name, price) VALUES
			('Rose', 10), ('Heart', 50), ('Crown', 100), ('Rocket', 500);

		INSERT INTO payment_gateways (code, name, type) VALUES
			('bank_transfer', 'Bank transfer', 'manual'),
			('card', 'Card processing', 'automated')
		ON CONFLICT (code) DO NOTHING;

		INSERT INTO pricing_plans (name, kind, tier, target_type, price, currency, diamonds_amount) VALUES
			('User badge, monthly', 'verification', 'monthly', 'user', 500, 'USD', 0),
			('User badge, yearly', 'verification', 'yearly', 'user', 5000, 'USD', 0),
			('Room badge, monthly', 'verification', 'monthly', 'room', 1000, 'USD', 0),
			('Room badge, lifetime', 'verification', 'lifetime', 'room', 20000, 'USD', 0),
			('Diamond pack 1000', 'diamonds', 'monthly', 'user', 999, 'USD', 1000);
	`},
}
