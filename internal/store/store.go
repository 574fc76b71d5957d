// Package store описывает хранилище магазина независимо от бэкенда (Postgres, SQLite).
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/accounts"
	"github.com/Spok95/temny-shop/internal/domain/invoices"
	"github.com/Spok95/temny-shop/internal/domain/orders"
	"github.com/Spok95/temny-shop/internal/domain/products"
	"github.com/Spok95/temny-shop/internal/domain/users"
)

type Catalog interface {
	List(ctx context.Context) ([]products.Product, error)
	GetByName(ctx context.Context, name string) (*products.Product, error)
	GetByID(ctx context.Context, id int64) (*products.Product, error)
	Save(ctx context.Context, p products.Product) (*products.Product, error)
	UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error
	UpdateCategory(ctx context.Context, id int64, category string) error
	AddStock(ctx context.Context, id int64, delta int) (int, error)
	Delete(ctx context.Context, id int64) error
}

type Accounts interface {
	Add(ctx context.Context, productName string, creds []accounts.Credentials) (int, error)
	CountUnused(ctx context.Context, productID int64) (int, error)
	Reserve(ctx context.Context, productName string) (*accounts.Account, error)
}

type Ledger interface {
	Get(ctx context.Context, tgID int64) (*users.User, error)
	Ensure(ctx context.Context, tgID int64, username string) (*users.User, error)
	Credit(ctx context.Context, tgID int64, amount decimal.Decimal) (decimal.Decimal, error)
	ListTelegramIDs(ctx context.Context) ([]int64, error)
}

type Orders interface {
	Purchase(ctx context.Context, req orders.Request) (*orders.Order, error)
	Refund(ctx context.Context, orderID int64) (decimal.Decimal, error)
	GetByID(ctx context.Context, id int64) (*orders.Order, error)
	ListByUser(ctx context.Context, tgID int64, limit int) ([]orders.Order, error)
}

type Invoices interface {
	Create(ctx context.Context, tgID int64, amount decimal.Decimal, provider string) (*invoices.Invoice, error)
	Get(ctx context.Context, id int64) (*invoices.Invoice, error)
	MarkPaid(ctx context.Context, id int64) (*invoices.Settlement, error)
	CreditExternal(ctx context.Context, n invoices.Notification) (*invoices.Settlement, error)
}

type Store struct {
	Catalog  Catalog
	Accounts Accounts
	Ledger   Ledger
	Orders   Orders
	Invoices Invoices

	closeFn func()
}

func New(c Catalog, a Accounts, l Ledger, o Orders, i Invoices, closeFn func()) *Store {
	return &Store{Catalog: c, Accounts: a, Ledger: l, Orders: o, Invoices: i, closeFn: closeFn}
}

func (s *Store) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

// NewPostgres собирает хранилище поверх pgx-репозиториев. Пул закрывается вместе со Store.
func NewPostgres(pool *pgxpool.Pool) *Store {
	return New(
		products.NewRepo(pool),
		accounts.NewRepo(pool),
		users.NewRepo(pool),
		orders.NewRepo(pool),
		invoices.NewRepo(pool),
		pool.Close,
	)
}
