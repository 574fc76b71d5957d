package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/temny-shop/internal/domain/products"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// Add кладёт пачку в пул товара и поднимает его остаток на число реально добавленных строк.
// Логин, уже лежащий в пуле этого товара, повторно не добавляется.
func (r *Repo) Add(ctx context.Context, productName string, creds []Credentials) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var productID int64
	err = tx.QueryRow(ctx, `SELECT id FROM products WHERE name = $1 FOR UPDATE`, productName).Scan(&productID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, products.ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	added := 0
	for _, c := range creds {
		ct, err := tx.Exec(ctx, `
			INSERT INTO accounts (product_id, login, password)
			VALUES ($1,$2,$3)
			ON CONFLICT (product_id, login) DO NOTHING
		`, productID, c.Login, c.Password)
		if err != nil {
			return 0, fmt.Errorf("insert account: %w", err)
		}
		added += int(ct.RowsAffected())
	}

	if added > 0 {
		if _, err = tx.Exec(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1
		`, productID, added); err != nil {
			return 0, err
		}
	}

	return added, tx.Commit(ctx)
}

func (r *Repo) CountUnused(ctx context.Context, productID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM accounts WHERE product_id = $1 AND NOT used
	`, productID).Scan(&n)
	return n, err
}

// Reserve выдаёт одну свободную запись товара вне покупки: отдельная транзакция,
// строка помечается использованной, остаток уменьшается (не ниже нуля).
func (r *Repo) Reserve(ctx context.Context, productName string) (*Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var productID int64
	err = tx.QueryRow(ctx, `SELECT id FROM products WHERE name = $1`, productName).Scan(&productID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, products.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	acc, err := ReserveTx(ctx, tx, productID, nil)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return acc, nil
}

// ReserveTx захватывает свободную запись внутри чужой транзакции.
// SKIP LOCKED: параллельные покупатели не ждут друг друга и никогда не получают одну строку.
func ReserveTx(ctx context.Context, tx pgx.Tx, productID int64, orderID *int64) (*Account, error) {
	var a Account
	err := tx.QueryRow(ctx, `
		SELECT id, product_id, login, password, created_at
		FROM accounts
		WHERE product_id = $1 AND NOT used
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, productID).Scan(&a.ID, &a.ProductID, &a.Login, &a.Password, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, err
	}

	if err = tx.QueryRow(ctx, `
		UPDATE accounts SET used = true, used_at = now(), order_id = $2
		WHERE id = $1 AND NOT used
		RETURNING used_at
	`, a.ID, orderID).Scan(&a.UsedAt); err != nil {
		return nil, fmt.Errorf("mark used: %w", err)
	}
	a.Used = true
	a.OrderID = orderID

	if _, err = tx.Exec(ctx, `
		UPDATE products SET stock = GREATEST(stock - 1, 0), updated_at = now() WHERE id = $1
	`, productID); err != nil {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}
	return &a, nil
}
