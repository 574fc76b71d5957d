// Package sqlite второй бэкенд хранилища: один файл, одно соединение.
// SKIP LOCKED в SQLite нет, поэтому записи сериализуются транзакциями BEGIN IMMEDIATE
// и единственным соединением пула; инварианты те же, что у Postgres.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/Spok95/temny-shop/internal/infra/db"
	"github.com/Spok95/temny-shop/internal/store"
)

// Open открывает (создаёт) файл базы, применяет миграции и собирает Store.
func Open(ctx context.Context, path string, log *slog.Logger) (*store.Store, error) {
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", "5000")
	dsn := fmt.Sprintf("file:%s?%s", path, q.Encode())

	conn, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := db.Migrate(ctx, goose.DialectSQLite3, conn.DB, "sqlite", log); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return store.New(
		&catalogRepo{db: conn},
		&accountsRepo{db: conn},
		&ledgerRepo{db: conn},
		&ordersRepo{db: conn},
		&invoicesRepo{db: conn},
		func() { _ = conn.Close() },
	), nil
}
