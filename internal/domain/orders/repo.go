package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/accounts"
	"github.com/Spok95/temny-shop/internal/domain/products"
	"github.com/Spok95/temny-shop/internal/domain/users"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// Purchase одной транзакцией: заказ по request_id, проверка цены, списание баланса,
// захват учётки, остаток -1. Любая ошибка откатывает всё целиком.
func (r *Repo) Purchase(ctx context.Context, req Request) (*Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o := Order{
		RequestID:   req.RequestID,
		TelegramID:  req.TelegramID,
		ProductName: req.ProductName,
		Status:      StatusPending,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (request_id, telegram_id, product_name, price)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (request_id) DO NOTHING
		RETURNING id, created_at
	`, req.RequestID, req.TelegramID, req.ProductName, req.Price).Scan(&o.ID, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return r.replay(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	var productID int64
	err = tx.QueryRow(ctx, `SELECT id, price FROM products WHERE name = $1`, req.ProductName).
		Scan(&productID, &o.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, products.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !o.Price.Equal(req.Price) {
		return nil, products.ErrPriceChanged
	}
	o.ProductID = &productID

	if o.Balance, err = users.DebitTx(ctx, tx, req.TelegramID, o.Price); err != nil {
		return nil, err
	}

	acc, err := accounts.ReserveTx(ctx, tx, productID, &o.ID)
	if err != nil {
		return nil, err
	}
	o.AccountID, o.Login, o.Password = &acc.ID, acc.Login, acc.Password

	if _, err = tx.Exec(ctx, `
		UPDATE orders SET product_id = $2, price = $3, status = 'paid', updated_at = now()
		WHERE id = $1
	`, o.ID, productID, o.Price); err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}
	o.Status = StatusPaid

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) replay(ctx context.Context, req Request) (*Order, error) {
	o, err := r.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("orders: request %s vanished during replay", req.RequestID)
	}
	if o.TelegramID != req.TelegramID {
		return nil, ErrRequestIDReused
	}
	o.Replayed = true
	return o, nil
}

const orderSelect = `
	SELECT o.id, o.request_id, o.telegram_id, o.product_id, o.product_name, o.price, o.status,
	       a.id, COALESCE(a.login, ''), COALESCE(a.password, ''), o.created_at
	FROM orders o
	LEFT JOIN accounts a ON a.order_id = o.id`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	if err := row.Scan(&o.ID, &o.RequestID, &o.TelegramID, &o.ProductID, &o.ProductName, &o.Price, &o.Status,
		&o.AccountID, &o.Login, &o.Password, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *Repo) GetByRequestID(ctx context.Context, requestID string) (*Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE o.request_id = $1`, requestID))
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE o.id = $1`, id))
}

// Refund возвращает деньги за оплаченный заказ. Учётка остаётся использованной.
func (r *Repo) Refund(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		tgID  int64
		price decimal.Decimal
	)
	err = tx.QueryRow(ctx, `
		UPDATE orders SET status = 'refunded', updated_at = now()
		WHERE id = $1 AND status = 'paid'
		RETURNING telegram_id, price
	`, orderID).Scan(&tgID, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrNotRefundable
	}
	if err != nil {
		return decimal.Zero, err
	}

	bal := decimal.Zero
	if price.IsPositive() {
		if bal, err = users.CreditTx(ctx, tx, tgID, price); err != nil {
			return decimal.Zero, err
		}
	}
	return bal, tx.Commit(ctx)
}

func (r *Repo) ListByUser(ctx context.Context, tgID int64, limit int) ([]Order, error) {
	rows, err := r.pool.Query(ctx, orderSelect+`
		WHERE o.telegram_id = $1 AND o.status <> 'pending'
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2
	`, tgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}
