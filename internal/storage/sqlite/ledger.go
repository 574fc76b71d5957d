package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/users"
)

type userRow struct {
	ID         int64           `db:"id"`
	TelegramID int64           `db:"telegram_id"`
	Username   string          `db:"username"`
	Balance    decimal.Decimal `db:"balance"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

const userCols = `id, telegram_id, username, balance, created_at, updated_at`

type ledgerRepo struct{ db *sqlx.DB }

func (r *ledgerRepo) Get(ctx context.Context, tgID int64) (*users.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, `SELECT `+userCols+` FROM users WHERE telegram_id = ?`, tgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &users.User{
		ID: row.ID, TelegramID: row.TelegramID, Username: row.Username, Balance: row.Balance,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}, nil
}

func (r *ledgerRepo) Ensure(ctx context.Context, tgID int64, username string) (*users.User, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, username) VALUES (?,?)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username   = CASE WHEN excluded.username <> '' THEN excluded.username ELSE users.username END,
			updated_at = CURRENT_TIMESTAMP
	`, tgID, username); err != nil {
		return nil, err
	}
	return r.Get(ctx, tgID)
}

func (r *ledgerRepo) Credit(ctx context.Context, tgID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { _ = tx.Rollback() }()

	bal, err := creditTx(ctx, tx, tgID, amount)
	if err != nil {
		return decimal.Zero, err
	}
	return bal, tx.Commit()
}

func (r *ledgerRepo) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `SELECT telegram_id FROM users ORDER BY id`)
	return ids, err
}

// Баланс хранится текстом, поэтому арифметика в Go; транзакция IMMEDIATE не даёт гонок.

func creditTx(ctx context.Context, tx *sqlx.Tx, tgID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("users: credit amount must be > 0, got %s", amount)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (telegram_id) VALUES (?) ON CONFLICT (telegram_id) DO NOTHING
	`, tgID); err != nil {
		return decimal.Zero, err
	}
	var bal decimal.Decimal
	if err := tx.GetContext(ctx, &bal, `SELECT balance FROM users WHERE telegram_id = ?`, tgID); err != nil {
		return decimal.Zero, err
	}
	bal = bal.Add(amount)
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET balance = ?, updated_at = CURRENT_TIMESTAMP WHERE telegram_id = ?
	`, bal, tgID); err != nil {
		return decimal.Zero, err
	}
	return bal, nil
}

func debitTx(ctx context.Context, tx *sqlx.Tx, tgID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := tx.GetContext(ctx, &bal, `SELECT balance FROM users WHERE telegram_id = ?`, tgID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, users.ErrInsufficientFunds
	}
	if err != nil {
		return decimal.Zero, err
	}
	if bal.LessThan(amount) {
		return decimal.Zero, users.ErrInsufficientFunds
	}
	bal = bal.Sub(amount)
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET balance = ?, updated_at = CURRENT_TIMESTAMP WHERE telegram_id = ?
	`, bal, tgID); err != nil {
		return decimal.Zero, err
	}
	return bal, nil
}
