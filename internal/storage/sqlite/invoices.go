package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/invoices"
)

type invoiceRow struct {
	ID         int64           `db:"id"`
	TelegramID int64           `db:"telegram_id"`
	Amount     decimal.Decimal `db:"amount"`
	Provider   string          `db:"provider"`
	ExternalID string          `db:"external_id"`
	Status     string          `db:"status"`
	CreatedAt  time.Time       `db:"created_at"`
	PaidAt     *time.Time      `db:"paid_at"`
}

func (r invoiceRow) toDomain() invoices.Invoice {
	return invoices.Invoice{
		ID: r.ID, TelegramID: r.TelegramID, Amount: r.Amount, Provider: r.Provider,
		ExternalID: r.ExternalID, Status: invoices.Status(r.Status), CreatedAt: r.CreatedAt, PaidAt: r.PaidAt,
	}
}

const invoiceCols = `id, telegram_id, amount, provider, external_id, status, created_at, paid_at`

type invoicesRepo struct{ db *sqlx.DB }

func getInvoice(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) (*invoices.Invoice, error) {
	var row invoiceRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+invoiceCols+` FROM invoices WHERE `+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inv := row.toDomain()
	return &inv, nil
}

func (r *invoicesRepo) Create(ctx context.Context, tgID int64, amount decimal.Decimal, provider string) (*invoices.Invoice, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("invoices: amount must be > 0, got %s", amount)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO invoices (telegram_id, amount, provider, external_id) VALUES (?,?,?,?)
	`, tgID, amount, provider, uuid.NewString())
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *invoicesRepo) Get(ctx context.Context, id int64) (*invoices.Invoice, error) {
	return getInvoice(ctx, r.db, "id = ?", id)
}

func (r *invoicesRepo) MarkPaid(ctx context.Context, id int64) (*invoices.Settlement, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	inv, err := getInvoice(ctx, tx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoices.ErrNotFound
	}
	if inv.Status == invoices.StatusPaid {
		return &invoices.Settlement{Invoice: *inv}, nil
	}

	paidAt := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE invoices SET status = 'paid', paid_at = ? WHERE id = ?`, paidAt, id); err != nil {
		return nil, err
	}
	inv.Status, inv.PaidAt = invoices.StatusPaid, &paidAt

	bal, err := creditTx(ctx, tx, inv.TelegramID, inv.Amount)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &invoices.Settlement{Invoice: *inv, Balance: bal, Credited: true}, nil
}

func (r *invoicesRepo) CreditExternal(ctx context.Context, n invoices.Notification) (*invoices.Settlement, error) {
	if !n.Amount.IsPositive() {
		return nil, fmt.Errorf("invoices: amount must be > 0, got %s", n.Amount)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getInvoice(ctx, tx, "provider = ? AND external_id = ?", n.Provider, n.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &invoices.Settlement{Invoice: *existing}, nil
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO invoices (telegram_id, amount, provider, external_id, status, created_at, paid_at)
		VALUES (?,?,?,?,'paid',?,?)
	`, n.TelegramID, n.Amount, n.Provider, n.ExternalID, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	bal, err := creditTx(ctx, tx, n.TelegramID, n.Amount)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	inv := invoices.Invoice{
		ID: id, TelegramID: n.TelegramID, Amount: n.Amount, Provider: n.Provider,
		ExternalID: n.ExternalID, Status: invoices.StatusPaid, CreatedAt: now, PaidAt: &now,
	}
	return &invoices.Settlement{Invoice: inv, Balance: bal, Credited: true}, nil
}
