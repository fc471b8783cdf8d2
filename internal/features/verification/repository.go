// Package verification — repository.go выполняет операции с verification_requests
// и колонками значка в users/rooms.
package verification

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
)

// Store — хранилище заявок и значков. Реализации: Repository и memory.Store.
type Store interface {
	// CreateRequest идемпотентен по PaymentTransactionID: повтор вернёт существующую заявку.
	CreateRequest(ctx context.Context, r *Request) (*Request, error)
	Request(ctx context.Context, id int64) (*Request, error)
	RequestByPayment(ctx context.Context, paymentID int64) (*Request, error)
	ListRequests(ctx context.Context, f ListFilter) ([]*Request, error)
	Review(ctx context.Context, id int64, r Review) (*Request, error)
	// Approve меняет статус и выдаёт значок одной транзакцией.
	Approve(ctx context.Context, id int64, r Review, g Grant) (*Request, members.Badge, error)
	ApplyBadge(ctx context.Context, g Grant) (members.Badge, error)
	// AwaitingGate — ID оплаченных транзакций верификации, заявка которых
	// отсутствует или всё ещё pending.
	AwaitingGate(ctx context.Context, limit int) ([]int64, error)
	ExpireBadges(ctx context.Context, now time.Time) (int, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// badgeTables — имя таблицы никогда не приходит из запроса.
var badgeTables = map[members.TargetType]string{
	members.TargetUser: "users",
	members.TargetRoom: "rooms",
}

const requestColumns = `id, payment_transaction_id, requester_id, target_type, target_id, plan_id,
	status, admin_feedback, internal_notes, COALESCE(reviewed_by, ''), reviewed_at, created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.PaymentTransactionID, &r.RequesterID, &r.TargetType, &r.TargetID,
		&r.PlanID, &r.Status, &r.AdminFeedback, &r.InternalNotes, &r.ReviewedBy, &r.ReviewedAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	return &r, err
}

func getRequest(ctx context.Context, q postgres.DBTX, where string, arg any) (*Request, error) {
	r, err := scanRequest(q.QueryRow(ctx, `SELECT `+requestColumns+` FROM verification_requests WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("заявка %v: %w", arg, common.ErrVerificationRequestNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения заявки: %w", err)
	}
	return r, nil
}

func (r *Repository) CreateRequest(ctx context.Context, req *Request) (*Request, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO verification_requests
			(payment_transaction_id, requester_id, target_type, target_id, plan_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_transaction_id) DO NOTHING
	`, req.PaymentTransactionID, req.RequesterID, req.TargetType, req.TargetID, req.PlanID, req.Status)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return r.RequestByPayment(ctx, req.PaymentTransactionID)
}

func (r *Repository) Request(ctx context.Context, id int64) (*Request, error) {
	return getRequest(ctx, r.db, "id = $1", id)
}

func (r *Repository) RequestByPayment(ctx context.Context, paymentID int64) (*Request, error) {
	return getRequest(ctx, r.db, "payment_transaction_id = $1", paymentID)
}

func (r *Repository) ListRequests(ctx context.Context, f ListFilter) ([]*Request, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.TargetType != "" {
		args = append(args, f.TargetType)
		conds = append(conds, fmt.Sprintf("target_type = $%d", len(args)))
	}
	query := `SELECT ` + requestColumns + ` FROM verification_requests`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заявок: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *Repository) Review(ctx context.Context, id int64, rv Review) (*Request, error) {
	var out *Request
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		req, err := review(ctx, tx, id, rv)
		out = req
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) Approve(ctx context.Context, id int64, rv Review, g Grant) (*Request, members.Badge, error) {
	var (
		out   *Request
		badge members.Badge
	)
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		req, err := review(ctx, tx, id, rv)
		if err != nil {
			return err
		}
		b, err := applyBadge(ctx, tx, g)
		if err != nil {
			return err
		}
		out, badge = req, b
		return nil
	})
	if err != nil {
		return nil, members.Badge{}, err
	}
	return out, badge, nil
}

// review — SELECT ... FOR UPDATE, проверка графа, UPDATE.
func review(ctx context.Context, tx pgx.Tx, id int64, rv Review) (*Request, error) {
	cur, err := getRequest(ctx, tx, "id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, err
	}
	if err := CheckReview(cur, rv); err != nil {
		return nil, err
	}
	next := *cur
	ApplyReview(&next, rv, time.Now().UTC())
	_, err = tx.Exec(ctx, `
		UPDATE verification_requests
		SET status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4,
		    admin_feedback = $5, internal_notes = $6
		WHERE id = $1
	`, id, next.Status, next.ReviewedBy, next.ReviewedAt, next.AdminFeedback, next.InternalNotes)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления заявки: %w", err)
	}
	return &next, nil
}

func (r *Repository) ApplyBadge(ctx context.Context, g Grant) (members.Badge, error) {
	return applyBadge(ctx, r.db, g)
}

// applyBadge продлевает значок: срок = max(текущий срок, now) + duration.
func applyBadge(ctx context.Context, q postgres.DBTX, g Grant) (members.Badge, error) {
	table, ok := badgeTables[g.TargetType]
	if !ok {
		return members.Badge{}, common.Invalid("targetType", "unknown target type", common.ErrInvalidStatus)
	}
	var b members.Badge
	err := q.QueryRow(ctx, `
		UPDATE `+table+`
		SET is_verified = TRUE,
		    verified_at = $3,
		    verified_by = $2,
		    verification_expires_at = GREATEST(COALESCE(verification_expires_at, $3), $3)
		                              + make_interval(secs => $4::DOUBLE PRECISION)
		WHERE id = $1
		RETURNING is_verified, verified_at, COALESCE(verified_by, ''), verification_expires_at
	`, g.TargetID, g.VerifiedBy, time.Now().UTC(), g.Duration.Seconds(),
	).Scan(&b.IsVerified, &b.VerifiedAt, &b.VerifiedBy, &b.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if g.TargetType == members.TargetRoom {
				return members.Badge{}, fmt.Errorf("комната id=%d: %w", g.TargetID, common.ErrRoomNotFound)
			}
			return members.Badge{}, fmt.Errorf("пользователь id=%d: %w", g.TargetID, common.ErrUserNotFound)
		}
		return members.Badge{}, fmt.Errorf("ошибка выдачи значка: %w", err)
	}
	return b, nil
}

func (r *Repository) AwaitingGate(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT pt.id
		FROM payment_transactions pt
		JOIN pricing_plans pp ON pp.id = pt.plan_id
		LEFT JOIN verification_requests vr ON vr.payment_transaction_id = pt.id
		WHERE pt.status = 'completed'
		  AND pp.kind = 'verification'
		  AND (vr.id IS NULL OR vr.status = 'pending')
		ORDER BY pt.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска неразобранных оплат: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExpireBadges снимает значки, срок которых истёк.
func (r *Repository) ExpireBadges(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for _, table := range []string{"users", "rooms"} {
		tag, err := r.db.Exec(ctx, `
			UPDATE `+table+`
			SET is_verified = FALSE
			WHERE is_verified AND verification_expires_at <= $1
		`, now)
		if err != nil {
			return total, fmt.Errorf("ошибка снятия значков (%s): %w", table, err)
		}
		total += int(tag.RowsAffected())
	}
	return total, nil
}
