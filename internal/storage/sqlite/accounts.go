package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Spok95/temny-shop/internal/domain/accounts"
	"github.com/Spok95/temny-shop/internal/domain/products"
)

type accountsRepo struct{ db *sqlx.DB }

func productIDByName(ctx context.Context, tx *sqlx.Tx, name string) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `SELECT id FROM products WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, products.ErrNotFound
	}
	return id, err
}

func (r *accountsRepo) Add(ctx context.Context, productName string, creds []accounts.Credentials) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	productID, err := productIDByName(ctx, tx, productName)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, c := range creds {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (product_id, login, password) VALUES (?,?,?)
			ON CONFLICT (product_id, login) DO NOTHING
		`, productID, c.Login, c.Password)
		if err != nil {
			return 0, fmt.Errorf("insert account: %w", err)
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}
	if added > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, added, productID); err != nil {
			return 0, err
		}
	}
	return added, tx.Commit()
}

func (r *accountsRepo) CountUnused(ctx context.Context, productID int64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM accounts WHERE product_id = ? AND used = 0`, productID)
	return n, err
}

func (r *accountsRepo) Reserve(ctx context.Context, productName string) (*accounts.Account, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	productID, err := productIDByName(ctx, tx, productName)
	if err != nil {
		return nil, err
	}
	acc, err := reserveTx(ctx, tx, productID, nil)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return acc, nil
}

type accountRow struct {
	ID        int64     `db:"id"`
	ProductID int64     `db:"product_id"`
	Login     string    `db:"login"`
	Password  string    `db:"password"`
	CreatedAt time.Time `db:"created_at"`
}

// reserveTx помечает первую свободную учётку товара использованной и уменьшает остаток.
// Транзакция уже держит RESERVED-блокировку файла, так что строку никто не перехватит.
func reserveTx(ctx context.Context, tx *sqlx.Tx, productID int64, orderID *int64) (*accounts.Account, error) {
	var row accountRow
	err := tx.GetContext(ctx, &row, `
		SELECT id, product_id, login, password, created_at
		FROM accounts
		WHERE product_id = ? AND used = 0
		ORDER BY id
		LIMIT 1
	`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accounts.ErrUnavailable
	}
	if err != nil {
		return nil, err
	}

	usedAt := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts SET used = 1, used_at = ?, order_id = ? WHERE id = ? AND used = 0
	`, usedAt, orderID, row.ID)
	if err != nil {
		return nil, fmt.Errorf("mark used: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, accounts.ErrUnavailable
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = MAX(stock - 1, 0), updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, productID); err != nil {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	return &accounts.Account{
		ID:        row.ID,
		ProductID: row.ProductID,
		Login:     row.Login,
		Password:  row.Password,
		Used:      true,
		UsedAt:    &usedAt,
		OrderID:   orderID,
		CreatedAt: row.CreatedAt,
	}, nil
}
