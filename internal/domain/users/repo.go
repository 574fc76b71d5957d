package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const userCols = `id, telegram_id, username, balance, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.Balance, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repo) Get(ctx context.Context, tgID int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE telegram_id = $1`, tgID))
}

// Ensure заводит пользователя с нулевым балансом; у существующего обновляет только username.
func (r *Repo) Ensure(ctx context.Context, tgID int64, username string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (telegram_id, username)
		VALUES ($1,$2)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username   = CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE users.username END,
			updated_at = now()
		RETURNING `+userCols,
		tgID, username))
}

// Credit зачисляет amount (> 0), создавая пользователя при необходимости. Возвращает новый баланс.
func (r *Repo) Credit(ctx context.Context, tgID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	bal, err := CreditTx(ctx, tx, tgID, amount)
	if err != nil {
		return decimal.Zero, err
	}
	return bal, tx.Commit(ctx)
}

func CreditTx(ctx context.Context, tx pgx.Tx, tgID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("users: credit amount must be > 0, got %s", amount)
	}
	var bal decimal.Decimal
	err := tx.QueryRow(ctx, `
		INSERT INTO users (telegram_id, balance)
		VALUES ($1,$2)
		ON CONFLICT (telegram_id) DO UPDATE SET
			balance    = users.balance + EXCLUDED.balance,
			updated_at = now()
		RETURNING balance
	`, tgID, amount).Scan(&bal)
	return bal, err
}

// DebitTx списывает amount только если хватает средств; иначе ErrInsufficientFunds
// (в том числе для незнакомого пользователя). Баланс в минус не уходит.
func DebitTx(ctx context.Context, tx pgx.Tx, tgID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE users SET balance = balance - $2, updated_at = now()
		WHERE telegram_id = $1 AND balance >= $2
		RETURNING balance
	`, tgID, amount).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrInsufficientFunds
	}
	return bal, err
}

func (r *Repo) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT telegram_id FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
