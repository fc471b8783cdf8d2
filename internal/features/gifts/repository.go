// Package gifts — repository.go выполняет операции с таблицами gifts и gift_transfers.
package gifts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
)

// Store — хранилище подарков. Реализации: Repository и memory.Store.
type Store interface {
	Gift(ctx context.Context, id int64) (*Gift, error)
	ActiveGifts(ctx context.Context) ([]*Gift, error)
	// CreateTransfer атомарно списывает ActualCost алмазов с отправителя,
	// создаёт кошелёк получателя и записывает подарок. При нехватке средств
	// не меняется ничего.
	CreateTransfer(ctx context.Context, t *Transfer) (*Transfer, error)
	Transfers(ctx context.Context, userID int64, dir Direction, limit int) ([]*Transfer, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Gift(ctx context.Context, id int64) (*Gift, error) {
	var g Gift
	err := r.db.QueryRow(ctx,
		`SELECT id, name, price, is_active, created_at FROM gifts WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.Price, &g.IsActive, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("подарок id=%d: %w", id, common.ErrGiftNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения подарка: %w", err)
	}
	return &g, nil
}

func (r *Repository) ActiveGifts(ctx context.Context) ([]*Gift, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, price, is_active, created_at FROM gifts WHERE is_active ORDER BY price, id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каталога: %w", err)
	}
	defer rows.Close()

	var out []*Gift
	for rows.Next() {
		var g Gift
		if err := rows.Scan(&g.ID, &g.Name, &g.Price, &g.IsActive, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

// CreateTransfer — списание и запись в одной транзакции БД.
// Блокируется только строка кошелька отправителя; кошелёк получателя
// лишь создаётся при отсутствии, поэтому взаимной блокировки двух
// встречных подарков не бывает.
func (r *Repository) CreateTransfer(ctx context.Context, t *Transfer) (*Transfer, error) {
	out := *t
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := wallet.AdjustTx(ctx, tx, t.SenderID, wallet.Diamonds, -t.ActualCost, wallet.ReasonGiftSent); err != nil {
			return err
		}
		if _, err := wallet.GetOrCreateTx(ctx, tx, t.RecipientID); err != nil {
			return err
		}

		var message *string
		if t.Message != "" {
			message = &t.Message
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO gift_transfers
				(sender_id, recipient_id, gift_id, quantity, total_value, commission, actual_cost, message, room_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, created_at
		`, t.SenderID, t.RecipientID, t.GiftID, t.Quantity, t.TotalValue, t.Commission, t.ActualCost,
			message, roomIDOf(t.Destination),
		).Scan(&out.ID, &out.CreatedAt)
		if err != nil {
			return fmt.Errorf("ошибка записи подарка: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repository) Transfers(ctx context.Context, userID int64, dir Direction, limit int) ([]*Transfer, error) {
	column := "sender_id"
	if dir == Received {
		column = "recipient_id"
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, sender_id, recipient_id, gift_id, quantity, total_value, commission, actual_cost,
		       COALESCE(message, ''), room_id, created_at
		FROM gift_transfers
		WHERE `+column+` = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории подарков: %w", err)
	}
	defer rows.Close()

	var out []*Transfer
	for rows.Next() {
		var (
			t      Transfer
			roomID *int64
		)
		if err := rows.Scan(&t.ID, &t.SenderID, &t.RecipientID, &t.GiftID, &t.Quantity,
			&t.TotalValue, &t.Commission, &t.ActualCost, &t.Message, &roomID, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		t.Destination = destinationOf(roomID)
		out = append(out, &t)
	}
	return out, rows.Err()
}
