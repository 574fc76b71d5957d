package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/orders"
	"github.com/Spok95/temny-shop/internal/domain/products"
)

type orderRow struct {
	ID          int64           `db:"id"`
	RequestID   string          `db:"request_id"`
	TelegramID  int64           `db:"telegram_id"`
	ProductID   *int64          `db:"product_id"`
	ProductName string          `db:"product_name"`
	Price       decimal.Decimal `db:"price"`
	Status      string          `db:"status"`
	AccountID   *int64          `db:"account_id"`
	Login       string          `db:"login"`
	Password    string          `db:"password"`
	CreatedAt   time.Time       `db:"created_at"`
}

func (r orderRow) toDomain() orders.Order {
	return orders.Order{
		ID: r.ID, RequestID: r.RequestID, TelegramID: r.TelegramID, ProductID: r.ProductID,
		ProductName: r.ProductName, Price: r.Price, Status: orders.Status(r.Status),
		AccountID: r.AccountID, Login: r.Login, Password: r.Password, CreatedAt: r.CreatedAt,
	}
}

const orderSelect = `
	SELECT o.id, o.request_id, o.telegram_id, o.product_id, o.product_name, o.price, o.status,
	       a.id AS account_id, COALESCE(a.login, '') AS login, COALESCE(a.password, '') AS password,
	       o.created_at
	FROM orders o
	LEFT JOIN accounts a ON a.order_id = o.id`

type ordersRepo struct{ db *sqlx.DB }

func getOrder(ctx context.Context, q sqlx.QueryerContext, where string, arg any) (*orders.Order, error) {
	var row orderRow
	err := sqlx.GetContext(ctx, q, &row, orderSelect+` WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o := row.toDomain()
	return &o, nil
}

func (r *ordersRepo) Purchase(ctx context.Context, req orders.Request) (*orders.Order, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getOrder(ctx, tx, "o.request_id = ?", req.RequestID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.TelegramID != req.TelegramID {
			return nil, orders.ErrRequestIDReused
		}
		existing.Replayed = true
		return existing, nil
	}

	createdAt := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (request_id, telegram_id, product_name, price, created_at, updated_at)
		VALUES (?,?,?,?,?,?)
	`, req.RequestID, req.TelegramID, req.ProductName, req.Price, createdAt, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	o := orders.Order{
		ID:          orderID,
		RequestID:   req.RequestID,
		TelegramID:  req.TelegramID,
		ProductName: req.ProductName,
		Status:      orders.StatusPending,
		CreatedAt:   createdAt,
	}

	var prod struct {
		ID    int64           `db:"id"`
		Price decimal.Decimal `db:"price"`
	}
	err = tx.GetContext(ctx, &prod, `SELECT id, price FROM products WHERE name = ?`, req.ProductName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, products.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !prod.Price.Equal(req.Price) {
		return nil, products.ErrPriceChanged
	}
	o.ProductID, o.Price = &prod.ID, prod.Price

	if o.Balance, err = debitTx(ctx, tx, req.TelegramID, prod.Price); err != nil {
		return nil, err
	}

	acc, err := reserveTx(ctx, tx, prod.ID, &orderID)
	if err != nil {
		return nil, err
	}
	o.AccountID, o.Login, o.Password = &acc.ID, acc.Login, acc.Password

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET product_id = ?, price = ?, status = 'paid', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, prod.ID, prod.Price, orderID); err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}
	o.Status = orders.StatusPaid

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *ordersRepo) Refund(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { _ = tx.Rollback() }()

	var o struct {
		TelegramID int64           `db:"telegram_id"`
		Price      decimal.Decimal `db:"price"`
	}
	err = tx.GetContext(ctx, &o, `SELECT telegram_id, price FROM orders WHERE id = ? AND status = 'paid'`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, orders.ErrNotRefundable
	}
	if err != nil {
		return decimal.Zero, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = 'refunded', updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, orderID); err != nil {
		return decimal.Zero, err
	}

	bal := decimal.Zero
	if o.Price.IsPositive() {
		if bal, err = creditTx(ctx, tx, o.TelegramID, o.Price); err != nil {
			return decimal.Zero, err
		}
	}
	return bal, tx.Commit()
}

func (r *ordersRepo) GetByID(ctx context.Context, id int64) (*orders.Order, error) {
	return getOrder(ctx, r.db, "o.id = ?", id)
}

func (r *ordersRepo) ListByUser(ctx context.Context, tgID int64, limit int) ([]orders.Order, error) {
	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, orderSelect+`
		WHERE o.telegram_id = ? AND o.status <> 'pending'
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT ?
	`, tgID, limit); err != nil {
		return nil, err
	}
	out := make([]orders.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
