package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/users"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const invoiceCols = `id, telegram_id, amount, provider, external_id, status, created_at, paid_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	if err := row.Scan(&inv.ID, &inv.TelegramID, &inv.Amount, &inv.Provider, &inv.ExternalID,
		&inv.Status, &inv.CreatedAt, &inv.PaidAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

func (r *Repo) Create(ctx context.Context, tgID int64, amount decimal.Decimal, provider string) (*Invoice, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("invoices: amount must be > 0, got %s", amount)
	}
	return scanInvoice(r.pool.QueryRow(ctx, `
		INSERT INTO invoices (telegram_id, amount, provider, external_id)
		VALUES ($1,$2,$3,$4)
		RETURNING `+invoiceCols,
		tgID, amount, provider, uuid.NewString()))
}

func (r *Repo) Get(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = $1`, id))
}

// MarkPaid переводит pending -> paid и зачисляет сумму. Повторный вызов ничего не зачисляет.
func (r *Repo) MarkPaid(ctx context.Context, id int64) (*Settlement, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inv, err := scanInvoice(tx.QueryRow(ctx, `
		UPDATE invoices SET status = 'paid', paid_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+invoiceCols, id))
	if err != nil {
		return nil, err
	}
	if inv == nil {
		existing, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrNotFound
		}
		return &Settlement{Invoice: *existing}, nil
	}

	bal, err := users.CreditTx(ctx, tx, inv.TelegramID, inv.Amount)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &Settlement{Invoice: *inv, Balance: bal, Credited: true}, nil
}

// CreditExternal учитывает уведомление внешнего провайдера ровно один раз.
func (r *Repo) CreditExternal(ctx context.Context, n Notification) (*Settlement, error) {
	if !n.Amount.IsPositive() {
		return nil, fmt.Errorf("invoices: amount must be > 0, got %s", n.Amount)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inv, err := scanInvoice(tx.QueryRow(ctx, `
		INSERT INTO invoices (telegram_id, amount, provider, external_id, status, paid_at)
		VALUES ($1,$2,$3,$4,'paid',now())
		ON CONFLICT (provider, external_id) DO NOTHING
		RETURNING `+invoiceCols,
		n.TelegramID, n.Amount, n.Provider, n.ExternalID))
	if err != nil {
		return nil, err
	}
	if inv == nil {
		existing, err := scanInvoice(r.pool.QueryRow(ctx, `
			SELECT `+invoiceCols+` FROM invoices WHERE provider = $1 AND external_id = $2
		`, n.Provider, n.ExternalID))
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrNotFound
		}
		return &Settlement{Invoice: *existing}, nil
	}

	bal, err := users.CreditTx(ctx, tx, inv.TelegramID, inv.Amount)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &Settlement{Invoice: *inv, Balance: bal, Credited: true}, nil
}
