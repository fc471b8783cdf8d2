// Package payments — repository.go выполняет операции с таблицами
// payment_gateways, pricing_plans и payment_transactions.
// Переход состояния выполняется под блокировкой строки транзакции (FOR UPDATE).
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/db/postgres"
	"serotonyl.ru/gift-ledger/internal/features/members"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
)

// Store — хранилище платежей. Реализации: Repository и memory.Store.
type Store interface {
	Gateway(ctx context.Context, id int64) (*Gateway, error)
	Plan(ctx context.Context, id int64) (*Plan, error)
	Create(ctx context.Context, t *Transaction) (*Transaction, error)
	Get(ctx context.Context, id int64) (*Transaction, error)
	GetByExternalID(ctx context.Context, transactionID string) (*Transaction, error)
	List(ctx context.Context, f Filter) ([]*Transaction, error)
	// Transition атомарно проверяет переход, применяет Grant и сохраняет результат.
	Transition(ctx context.Context, id int64, ch Change) (*Transaction, error)
	// Stale — pending-транзакции, созданные раньше before.
	Stale(ctx context.Context, before time.Time, limit int) ([]*Transaction, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Gateway(ctx context.Context, id int64) (*Gateway, error) {
	var g Gateway
	err := r.db.QueryRow(ctx,
		`SELECT id, code, name, type, is_active FROM payment_gateways WHERE id = $1`, id,
	).Scan(&g.ID, &g.Code, &g.Name, &g.Type, &g.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("шлюз id=%d: %w", id, common.ErrGatewayNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения шлюза: %w", err)
	}
	return &g, nil
}

func (r *Repository) Plan(ctx context.Context, id int64) (*Plan, error) {
	var p Plan
	err := r.db.QueryRow(ctx, `
		SELECT id, name, kind, tier, target_type, price, currency, duration_days, diamonds_amount, is_active
		FROM pricing_plans
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Kind, &p.Tier, &p.TargetType, &p.Price, &p.Currency,
		&p.DurationDays, &p.DiamondsAmount, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("тариф id=%d: %w", id, common.ErrPlanNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения тарифа: %w", err)
	}
	return &p, nil
}

const txColumns = `id, transaction_id, user_id, gateway_id, plan_id, amount, currency, status,
	refunded_amount, COALESCE(gateway_transaction_id, ''), COALESCE(failure_reason, ''),
	COALESCE(verification_notes, ''), metadata, target_type, target_id,
	created_at, updated_at, completed_at, refunded_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		t          Transaction
		targetType *string
		targetID   *int64
	)
	err := row.Scan(&t.ID, &t.TransactionID, &t.UserID, &t.GatewayID, &t.PlanID, &t.Amount,
		&t.Currency, &t.Status, &t.RefundedAmount, &t.GatewayTransactionID, &t.FailureReason,
		&t.VerificationNotes, &t.Metadata, &targetType, &targetID,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt, &t.RefundedAt,
	)
	if err != nil {
		return nil, err
	}
	if targetType != nil && targetID != nil {
		t.Target = &Target{Type: members.TargetType(*targetType), ID: *targetID}
	}
	return &t, nil
}

func (r *Repository) getOne(ctx context.Context, q postgres.DBTX, where string, arg any) (*Transaction, error) {
	t, err := scanTransaction(q.QueryRow(ctx, `SELECT `+txColumns+` FROM payment_transactions WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("транзакция %v: %w", arg, common.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения транзакции: %w", err)
	}
	return t, nil
}

func (r *Repository) Create(ctx context.Context, t *Transaction) (*Transaction, error) {
	var (
		targetType *string
		targetID   *int64
	)
	if t.Target != nil {
		tt := string(t.Target.Type)
		targetType, targetID = &tt, &t.Target.ID
	}
	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO payment_transactions
			(transaction_id, user_id, gateway_id, plan_id, amount, currency, status, metadata, target_type, target_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, t.TransactionID, t.UserID, t.GatewayID, t.PlanID, t.Amount, t.Currency, t.Status,
		metadata, targetType, targetID,
	).Scan(&id)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("ошибка создания транзакции: %w", common.ErrUserNotFound)
		}
		return nil, fmt.Errorf("ошибка создания транзакции: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *Repository) Get(ctx context.Context, id int64) (*Transaction, error) {
	return r.getOne(ctx, r.db, "id = $1", id)
}

func (r *Repository) GetByExternalID(ctx context.Context, transactionID string) (*Transaction, error) {
	return r.getOne(ctx, r.db, "transaction_id = $1", transactionID)
}

func (r *Repository) List(ctx context.Context, f Filter) ([]*Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.UserID > 0 {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	query := `SELECT ` + txColumns + ` FROM payment_transactions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args))
	return r.queryMany(ctx, query, args...)
}

func (r *Repository) Stale(ctx context.Context, before time.Time, limit int) ([]*Transaction, error) {
	return r.queryMany(ctx, `
		SELECT `+txColumns+` FROM payment_transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY id
		LIMIT $2
	`, before, limit)
}

func (r *Repository) queryMany(ctx context.Context, query string, args ...any) ([]*Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса транзакций: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// Transition: блокировка строки, проверка графа, изменение кошелька, запись.
// Два параллельных перехода одной транзакции выполняются строго по очереди;
// второй видит уже новый статус и получает TransitionError.
func (r *Repository) Transition(ctx context.Context, id int64, ch Change) (*Transaction, error) {
	var out *Transaction
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		cur, err := r.getOne(ctx, tx, "id = $1 FOR UPDATE", id)
		if err != nil {
			return err
		}
		if err := CheckTransition(cur, ch); err != nil {
			return err
		}
		if g := ch.Grant; g != nil {
			if _, err := wallet.AdjustTx(ctx, tx, g.UserID, g.Currency, g.Delta, g.Reason); err != nil {
				return err
			}
		}

		next := *cur
		ApplyChange(&next, ch, time.Now().UTC())
		_, err = tx.Exec(ctx, `
			UPDATE payment_transactions
			SET status = $2,
			    refunded_amount = $3,
			    gateway_transaction_id = NULLIF($4, ''),
			    failure_reason = NULLIF($5, ''),
			    verification_notes = NULLIF($6, ''),
			    updated_at = $7,
			    completed_at = $8,
			    refunded_at = $9
			WHERE id = $1
		`, id, next.Status, next.RefundedAmount, next.GatewayTransactionID, next.FailureReason,
			next.VerificationNotes, next.UpdatedAt, next.CompletedAt, next.RefundedAt)
		if err != nil {
			return fmt.Errorf("ошибка сохранения перехода: %w", err)
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
