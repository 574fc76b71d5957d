package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/accounts"
	"github.com/Spok95/temny-shop/internal/domain/invoices"
	"github.com/Spok95/temny-shop/internal/domain/orders"
	"github.com/Spok95/temny-shop/internal/domain/products"
	"github.com/Spok95/temny-shop/internal/domain/users"
	"github.com/Spok95/temny-shop/internal/infra/db"
)

// Интеграционные тесты Postgres: TEST_POSTGRES_DSN=postgres://... go test ./internal/store
func newPostgres(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN is not set")
	}
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := db.MigratePostgres(ctx, dsn, log); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := db.Connect(ctx, dsn, 30)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`TRUNCATE accounts, orders, invoices, users, products RESTART IDENTITY CASCADE`); err != nil {
		pool.Close()
		t.Fatalf("truncate: %v", err)
	}
	st := NewPostgres(pool)
	t.Cleanup(st.Close)
	return st
}

func seed(t *testing.T, st *Store, name, price string, creds int) *products.Product {
	t.Helper()
	ctx := context.Background()
	p, err := st.Catalog.Save(ctx, products.Product{Name: name, Price: decimal.RequireFromString(price), Category: "test"})
	if err != nil {
		t.Fatal(err)
	}
	batch := make([]accounts.Credentials, 0, creds)
	for i := 0; i < creds; i++ {
		batch = append(batch, accounts.Credentials{Login: fmt.Sprintf("%s-%d", name, i), Password: "pw"})
	}
	if creds > 0 {
		if _, err := st.Accounts.Add(ctx, name, batch); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func TestPostgresPurchaseAndReplay(t *testing.T) {
	st := newPostgres(t)
	ctx := context.Background()
	p := seed(t, st, "VPN", "99.90", 2)
	if _, err := st.Ledger.Credit(ctx, 1, decimal.NewFromInt(150)); err != nil {
		t.Fatal(err)
	}

	req := orders.Request{RequestID: "r1", TelegramID: 1, ProductName: "VPN", Price: decimal.RequireFromString("99.9")}
	o, err := st.Orders.Purchase(ctx, req)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if o.Status != orders.StatusPaid || o.Login != "VPN-0" || !o.Balance.Equal(decimal.RequireFromString("50.1")) {
		t.Fatalf("order = %+v", o)
	}

	again, err := st.Orders.Purchase(ctx, req)
	if err != nil || !again.Replayed || again.ID != o.ID || again.Login != o.Login {
		t.Fatalf("replay = %+v, %v", again, err)
	}
	if _, err := st.Orders.Purchase(ctx, orders.Request{RequestID: "r1", TelegramID: 2, ProductName: "VPN", Price: req.Price}); !errors.Is(err, orders.ErrRequestIDReused) {
		t.Fatalf("foreign replay err = %v", err)
	}

	_, err = st.Orders.Purchase(ctx, orders.Request{RequestID: "r2", TelegramID: 1, ProductName: "VPN", Price: req.Price})
	if !errors.Is(err, users.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want insufficient funds", err)
	}
	cur, _ := st.Catalog.GetByID(ctx, p.ID)
	if n, _ := st.Accounts.CountUnused(ctx, p.ID); n != 1 || cur.Stock != 1 {
		t.Fatalf("failed purchase changed pool: unused=%d stock=%d", n, cur.Stock)
	}

	bal, err := st.Orders.Refund(ctx, o.ID)
	if err != nil || !bal.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("refund = %s, %v", bal, err)
	}
	if _, err := st.Orders.Refund(ctx, o.ID); !errors.Is(err, orders.ErrNotRefundable) {
		t.Fatalf("second refund err = %v", err)
	}
}

func TestPostgresConcurrentDuplicatePurchase(t *testing.T) {
	st := newPostgres(t)
	ctx := context.Background()
	p := seed(t, st, "VPN", "100", 5)
	if _, err := st.Ledger.Credit(ctx, 7, decimal.NewFromInt(1000)); err != nil {
		t.Fatal(err)
	}

	const n = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		fresh    int
		replayed int
		ids      = map[int64]bool{}
		logins   = map[string]bool{}
		errs     []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := st.Orders.Purchase(ctx, orders.Request{
				RequestID: "dup", TelegramID: 7, ProductName: "VPN", Price: decimal.NewFromInt(100),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if o.Replayed {
				replayed++
			} else {
				fresh++
			}
			ids[o.ID], logins[o.Login] = true, true
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if fresh != 1 || replayed != n-1 || len(ids) != 1 || len(logins) != 1 {
		t.Fatalf("fresh=%d replayed=%d orders=%v logins=%v", fresh, replayed, ids, logins)
	}
	u, _ := st.Ledger.Get(ctx, 7)
	if !u.Balance.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("balance = %s, want 900", u.Balance)
	}
	cur, _ := st.Catalog.GetByID(ctx, p.ID)
	if unused, _ := st.Accounts.CountUnused(ctx, p.ID); cur.Stock != 4 || unused != 4 {
		t.Fatalf("stock=%d unused=%d, want 4/4", cur.Stock, unused)
	}
}

func TestPostgresPurchaseRollbacks(t *testing.T) {
	st := newPostgres(t)
	ctx := context.Background()
	seed(t, st, "VPN", "10", 1)
	seed(t, st, "Empty", "10", 0)
	if _, err := st.Ledger.Credit(ctx, 1, decimal.NewFromInt(100)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		product string
		price   string
		want    error
	}{
		{"Nope", "10", products.ErrNotFound},
		{"VPN", "9", products.ErrPriceChanged},
		{"Empty", "10", accounts.ErrUnavailable},
	}
	for i, tt := range tests {
		_, err := st.Orders.Purchase(ctx, orders.Request{
			RequestID: fmt.Sprintf("x%d", i), TelegramID: 1, ProductName: tt.product, Price: decimal.RequireFromString(tt.price),
		})
		if !errors.Is(err, tt.want) {
			t.Fatalf("%s: err = %v, want %v", tt.product, err, tt.want)
		}
	}
	u, _ := st.Ledger.Get(ctx, 1)
	if !u.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance = %s, failed purchases must not debit", u.Balance)
	}
	if list, _ := st.Orders.ListByUser(ctx, 1, 10); len(list) != 0 {
		t.Fatalf("orders = %+v", list)
	}
}

// Конкурентные покупатели: каждая учётка выдаётся ровно одному, лишние получают ErrUnavailable.
func TestPostgresConcurrentPurchasesSkipLocked(t *testing.T) {
	st := newPostgres(t)
	ctx := context.Background()
	const creds, buyers = 7, 20
	p := seed(t, st, "VPN", "5", creds)
	for i := 1; i <= buyers; i++ {
		if _, err := st.Ledger.Credit(ctx, int64(i), decimal.NewFromInt(5)); err != nil {
			t.Fatal(err)
		}
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		logins = map[string]int64{}
		sold   int
		empty  int
		other  []error
	)
	for i := 1; i <= buyers; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			o, err := st.Orders.Purchase(ctx, orders.Request{
				RequestID: fmt.Sprintf("c%d", id), TelegramID: id, ProductName: "VPN", Price: decimal.NewFromInt(5),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold++
				if prev, dup := logins[o.Login]; dup {
					other = append(other, fmt.Errorf("login %s sold to %d and %d", o.Login, prev, id))
				}
				logins[o.Login] = id
			case errors.Is(err, accounts.ErrUnavailable):
				empty++
			default:
				other = append(other, err)
			}
		}(int64(i))
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if sold != creds || empty != buyers-creds {
		t.Fatalf("sold=%d empty=%d", sold, empty)
	}
	cur, _ := st.Catalog.GetByID(ctx, p.ID)
	if cur.Stock != 0 {
		t.Fatalf("stock = %d", cur.Stock)
	}
}

func TestPostgresInvoicesIdempotent(t *testing.T) {
	st := newPostgres(t)
	ctx := context.Background()

	inv, err := st.Invoices.Create(ctx, 3, decimal.NewFromInt(200), invoices.ProviderTest)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []bool{true, false} {
		s, err := st.Invoices.MarkPaid(ctx, inv.ID)
		if err != nil || s.Credited != want {
			t.Fatalf("MarkPaid #%d = %+v, %v", i, s, err)
		}
	}

	n := invoices.Notification{Provider: "tribute", ExternalID: "981", TelegramID: 3, Amount: decimal.NewFromInt(50)}
	for i, want := range []bool{true, false} {
		s, err := st.Invoices.CreditExternal(ctx, n)
		if err != nil || s.Credited != want {
			t.Fatalf("CreditExternal #%d = %+v, %v", i, s, err)
		}
	}
	u, _ := st.Ledger.Get(ctx, 3)
	if !u.Balance.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("balance = %s", u.Balance)
	}
	if _, err := st.Invoices.MarkPaid(ctx, 9999); !errors.Is(err, invoices.ErrNotFound) {
		t.Fatalf("missing invoice err = %v", err)
	}

	ids, err := st.Ledger.ListTelegramIDs(ctx)
	if err != nil || !strings.Contains(fmt.Sprint(ids), "3") {
		t.Fatalf("ids = %v, %v", ids, err)
	}
}
