package products

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const productCols = `id, name, price, stock, category, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Category, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Category, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) GetByName(ctx context.Context, name string) (*Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE name = $1`, name))
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
}

// Save создаёт товар или перезаписывает цену/остаток/категорию существующего с тем же именем.
func (r *Repo) Save(ctx context.Context, p Product) (*Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `
		INSERT INTO products (name, price, stock, category)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (name) DO UPDATE SET
			price      = EXCLUDED.price,
			stock      = EXCLUDED.stock,
			category   = EXCLUDED.category,
			updated_at = now()
		RETURNING `+productCols,
		p.Name, p.Price, p.Stock, p.Category))
}

func (r *Repo) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error {
	ct, err := r.pool.Exec(ctx, `UPDATE products SET price = $2, updated_at = now() WHERE id = $1`, id, price)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) UpdateCategory(ctx context.Context, id int64, category string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE products SET category = $2, updated_at = now() WHERE id = $1`, id, category)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddStock двигает остаток на delta, не опуская его ниже нуля. Возвращает новый остаток.
func (r *Repo) AddStock(ctx context.Context, id int64, delta int) (int, error) {
	var stock int
	err := r.pool.QueryRow(ctx, `
		UPDATE products SET stock = GREATEST(stock + $2, 0), updated_at = now()
		WHERE id = $1
		RETURNING stock
	`, id, delta).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return stock, err
}

func (r *Repo) Delete(ctx context.Context, id int64) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
