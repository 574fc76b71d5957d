package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/products"
)

type productRow struct {
	ID        int64           `db:"id"`
	Name      string          `db:"name"`
	Price     decimal.Decimal `db:"price"`
	Stock     int             `db:"stock"`
	Category  string          `db:"category"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (r productRow) toDomain() products.Product {
	return products.Product{
		ID: r.ID, Name: r.Name, Price: r.Price, Stock: r.Stock, Category: r.Category,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const productCols = `id, name, price, stock, category, created_at, updated_at`

type catalogRepo struct{ db *sqlx.DB }

func getProduct(ctx context.Context, q sqlx.QueryerContext, where string, arg any) (*products.Product, error) {
	var row productRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+productCols+` FROM products WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := row.toDomain()
	return &p, nil
}

func (r *catalogRepo) List(ctx context.Context) ([]products.Product, error) {
	var rows []productRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+productCols+` FROM products ORDER BY category, name`); err != nil {
		return nil, err
	}
	out := make([]products.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *catalogRepo) GetByName(ctx context.Context, name string) (*products.Product, error) {
	return getProduct(ctx, r.db, "name = ?", name)
}

func (r *catalogRepo) GetByID(ctx context.Context, id int64) (*products.Product, error) {
	return getProduct(ctx, r.db, "id = ?", id)
}

func (r *catalogRepo) Save(ctx context.Context, p products.Product) (*products.Product, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (name, price, stock, category)
		VALUES (?,?,?,?)
		ON CONFLICT (name) DO UPDATE SET
			price      = excluded.price,
			stock      = excluded.stock,
			category   = excluded.category,
			updated_at = CURRENT_TIMESTAMP
	`, p.Name, p.Price, p.Stock, p.Category); err != nil {
		return nil, err
	}
	return r.GetByName(ctx, p.Name)
}

func (r *catalogRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return products.ErrNotFound
	}
	return nil
}

func (r *catalogRepo) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error {
	return r.exec(ctx, `UPDATE products SET price = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, price, id)
}

func (r *catalogRepo) UpdateCategory(ctx context.Context, id int64, category string) error {
	return r.exec(ctx, `UPDATE products SET category = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, category, id)
}

func (r *catalogRepo) AddStock(ctx context.Context, id int64, delta int) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = MAX(stock + ?, 0), updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, delta, id)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, products.ErrNotFound
	}
	var stock int
	if err := tx.GetContext(ctx, &stock, `SELECT stock FROM products WHERE id = ?`, id); err != nil {
		return 0, err
	}
	return stock, tx.Commit()
}

func (r *catalogRepo) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, `DELETE FROM products WHERE id = ?`, id)
}
