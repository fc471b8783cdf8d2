// Package wallet — repository.go выполняет операции с таблицами wallets и wallet_entries.
// Единственный способ изменить баланс — AdjustTx: условный UPDATE, который
// не даёт балансу уйти в минус, плюс запись журнала в той же транзакции.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/db/postgres"
)

// Store — хранилище кошельков. Реализации: Repository и memory.Store.
type Store interface {
	GetOrCreate(ctx context.Context, userID int64) (*Wallet, error)
	Adjust(ctx context.Context, userID int64, c Currency, delta int64, reason Reason) (*Wallet, error)
	Entries(ctx context.Context, userID int64, limit int) ([]*Entry, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const walletColumns = `id, user_id, coins, diamonds,
	total_coins_earned, total_coins_spent, total_diamonds_earned, total_diamonds_spent,
	created_at, updated_at`

func scanWallet(row pgx.Row) (*Wallet, error) {
	var w Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Coins, &w.Diamonds,
		&w.TotalCoinsEarned, &w.TotalCoinsSpent, &w.TotalDiamondsEarned, &w.TotalDiamondsSpent,
		&w.CreatedAt, &w.UpdatedAt,
	)
	return &w, err
}

// adjustQueries — заранее собранные UPDATE для каждой валюты.
// Имя колонки никогда не приходит из запроса.
var adjustQueries = map[Currency]string{
	Coins:    adjustQuery("coins"),
	Diamonds: adjustQuery("diamonds"),
}

func adjustQuery(col string) string {
	// Строка блокируется UPDATE; условие WHERE перепроверяется после получения
	// блокировки, поэтому параллельные списания не теряют обновления.
	return fmt.Sprintf(`
		UPDATE wallets
		SET %[1]s = %[1]s + $2::BIGINT,
		    total_%[1]s_earned = total_%[1]s_earned + GREATEST($2::BIGINT, 0),
		    total_%[1]s_spent = total_%[1]s_spent + GREATEST(-$2::BIGINT, 0),
		    updated_at = NOW()
		WHERE user_id = $1 AND %[1]s + $2::BIGINT >= 0
		RETURNING `+walletColumns, col)
}

// GetOrCreate возвращает кошелёк, создавая его при первом обращении.
func (r *Repository) GetOrCreate(ctx context.Context, userID int64) (*Wallet, error) {
	return GetOrCreateTx(ctx, r.db, userID)
}

// GetOrCreateTx — upsert по UNIQUE(user_id), затем чтение. Без read-then-insert,
// поэтому два параллельных первых обращения не создадут два кошелька.
func GetOrCreateTx(ctx context.Context, q postgres.DBTX, userID int64) (*Wallet, error) {
	if err := ensure(ctx, q, userID); err != nil {
		return nil, err
	}
	w, err := scanWallet(q.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения кошелька (user_id=%d): %w", userID, err)
	}
	return w, nil
}

func ensure(ctx context.Context, q postgres.DBTX, userID int64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO wallets (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("кошелёк user_id=%d: %w", userID, common.ErrUserNotFound)
		}
		return fmt.Errorf("ошибка создания кошелька: %w", err)
	}
	return nil
}

// Adjust применяет delta в собственной транзакции.
func (r *Repository) Adjust(ctx context.Context, userID int64, c Currency, delta int64, reason Reason) (*Wallet, error) {
	var out *Wallet
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		w, err := AdjustTx(ctx, tx, userID, c, delta, reason)
		out = w
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdjustTx меняет баланс внутри чужой транзакции q.
// Используется подарками и платежами, чтобы списание и запись их собственной
// строки были одной атомарной единицей.
//
// Параметры:
//   - q: транзакция (pgx.Tx) или пул
//   - userID: чей кошелёк
//   - c: валюта
//   - delta: > 0 — начисление, < 0 — списание
//   - reason: причина для журнала
//
// При нехватке средств возвращает *common.InsufficientFundsError и ничего не меняет.
func AdjustTx(ctx context.Context, q postgres.DBTX, userID int64, c Currency, delta int64, reason Reason) (*Wallet, error) {
	if err := ValidateDelta(c, delta); err != nil {
		return nil, err
	}
	if err := ensure(ctx, q, userID); err != nil {
		return nil, err
	}

	w, err := scanWallet(q.QueryRow(ctx, adjustQueries[c], userID, delta))
	if errors.Is(err, pgx.ErrNoRows) {
		// Условие не выполнено — средств не хватает. Строка не изменилась.
		var available int64
		if err := q.QueryRow(ctx,
			fmt.Sprintf(`SELECT %s FROM wallets WHERE user_id = $1`, c), userID,
		).Scan(&available); err != nil {
			return nil, fmt.Errorf("ошибка чтения баланса: %w", err)
		}
		return nil, &common.InsufficientFundsError{Currency: string(c), Required: -delta, Available: available}
	}
	if postgres.IsNumericOutOfRange(err) {
		return nil, common.Invalid("amount", "balance would overflow", common.ErrInvalidAmount)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка изменения баланса: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO wallet_entries (user_id, currency, delta, balance_after, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, c, delta, w.Balance(c), reason)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи журнала: %w", err)
	}
	return w, nil
}

// Entries возвращает последние записи журнала пользователя.
func (r *Repository) Entries(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, currency, delta, balance_after, reason, created_at
		FROM wallet_entries
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Currency, &e.Delta, &e.BalanceAfter, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}
