package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/accounts"
	"github.com/Spok95/temny-shop/internal/domain/invoices"
	"github.com/Spok95/temny-shop/internal/domain/orders"
	"github.com/Spok95/temny-shop/internal/domain/products"
	"github.com/Spok95/temny-shop/internal/domain/users"
	"github.com/Spok95/temny-shop/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "shop.db"), log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seed заводит товар с n учётками и пользователя с балансом.
func seed(t *testing.T, st *store.Store, name, price string, n int, tgID int64, balance string) *products.Product {
	t.Helper()
	ctx := context.Background()
	p, err := st.Catalog.Save(ctx, products.Product{Name: name, Price: dec(price), Category: "test"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	creds := make([]accounts.Credentials, n)
	for i := range creds {
		creds[i] = accounts.Credentials{Login: fmt.Sprintf("%s-user%d", name, i), Password: "pw"}
	}
	if n > 0 {
		if _, err := st.Accounts.Add(ctx, name, creds); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if balance != "" {
		if _, err := st.Ledger.Credit(ctx, tgID, dec(balance)); err != nil {
			t.Fatalf("Credit: %v", err)
		}
	}
	return p
}

func balanceOf(t *testing.T, st *store.Store, tgID int64) decimal.Decimal {
	t.Helper()
	u, err := st.Ledger.Get(context.Background(), tgID)
	if err != nil {
		t.Fatalf("Get user: %v", err)
	}
	if u == nil {
		return decimal.Zero
	}
	return u.Balance
}

func stockOf(t *testing.T, st *store.Store, name string) int {
	t.Helper()
	p, err := st.Catalog.GetByName(context.Background(), name)
	if err != nil || p == nil {
		t.Fatalf("GetByName(%q) = %v, %v", name, p, err)
	}
	return p.Stock
}

func TestCatalogCRUD(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p, err := st.Catalog.Save(ctx, products.Product{Name: "Netflix", Price: dec("349.00"), Stock: 2, Category: "video"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if p.ID == 0 || p.Stock != 2 || !p.Price.Equal(dec("349")) {
		t.Fatalf("unexpected product: %+v", p)
	}

	if err := st.Catalog.UpdatePrice(ctx, p.ID, dec("399.50")); err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}
	if err := st.Catalog.UpdateCategory(ctx, p.ID, "стриминг"); err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	stock, err := st.Catalog.AddStock(ctx, p.ID, -5)
	if err != nil || stock != 0 {
		t.Fatalf("AddStock(-5) = %d, %v; want clamped 0", stock, err)
	}
	stock, err = st.Catalog.AddStock(ctx, p.ID, 3)
	if err != nil || stock != 3 {
		t.Fatalf("AddStock(3) = %d, %v", stock, err)
	}

	got, err := st.Catalog.GetByID(ctx, p.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v %v", got, err)
	}
	if !got.Price.Equal(dec("399.5")) || got.Category != "стриминг" || got.Stock != 3 {
		t.Fatalf("unexpected product after updates: %+v", got)
	}

	if err := st.Catalog.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Catalog.Delete(ctx, p.ID); !errors.Is(err, products.ErrNotFound) {
		t.Fatalf("second Delete err = %v, want ErrNotFound", err)
	}
	if _, err := st.Catalog.AddStock(ctx, p.ID, 1); !errors.Is(err, products.ErrNotFound) {
		t.Fatalf("AddStock on missing err = %v", err)
	}
	if missing, err := st.Catalog.GetByName(ctx, "Netflix"); err != nil || missing != nil {
		t.Fatalf("GetByName after delete = %v, %v", missing, err)
	}
}

func TestAccountsAddSkipsDuplicatesAndBumpsStock(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seed(t, st, "Spotify", "100", 2, 0, "")

	n, err := st.Accounts.Add(ctx, "Spotify", []accounts.Credentials{
		{Login: "Spotify-user0", Password: "dup"},
		{Login: "fresh", Password: "pw"},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n != 1 {
		t.Fatalf("added = %d, want 1", n)
	}
	if s := stockOf(t, st, "Spotify"); s != 3 {
		t.Fatalf("stock = %d, want 3", s)
	}
	if c, _ := st.Accounts.CountUnused(ctx, p.ID); c != 3 {
		t.Fatalf("unused = %d, want 3", c)
	}

	if _, err := st.Accounts.Add(ctx, "Nope", []accounts.Credentials{{Login: "a", Password: "b"}}); !errors.Is(err, products.ErrNotFound) {
		t.Fatalf("Add to unknown product err = %v", err)
	}
}

func TestReserveDrainsPool(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st, "VPN", "50", 2, 0, "")

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		acc, err := st.Accounts.Reserve(ctx, "VPN")
		if err != nil {
			t.Fatalf("Reserve #%d: %v", i, err)
		}
		if seen[acc.Login] {
			t.Fatalf("credential %s handed out twice", acc.Login)
		}
		seen[acc.Login] = true
		if !acc.Used || acc.UsedAt == nil {
			t.Fatalf("reserved account not marked used: %+v", acc)
		}
	}
	if _, err := st.Accounts.Reserve(ctx, "VPN"); !errors.Is(err, accounts.ErrUnavailable) {
		t.Fatalf("Reserve on empty pool err = %v, want ErrUnavailable", err)
	}
	if s := stockOf(t, st, "VPN"); s != 0 {
		t.Fatalf("stock = %d, want 0", s)
	}
	if _, err := st.Accounts.Reserve(ctx, "missing"); !errors.Is(err, products.ErrNotFound) {
		t.Fatalf("Reserve unknown product err = %v", err)
	}
}

func TestReserveClampsStockAtZero(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seed(t, st, "Disney", "10", 1, 0, "")
	if _, err := st.Catalog.AddStock(ctx, p.ID, -10); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Accounts.Reserve(ctx, "Disney"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if s := stockOf(t, st, "Disney"); s != 0 {
		t.Fatalf("stock = %d, want 0", s)
	}
}

func TestPurchase(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st, "Netflix", "300", 1, 7, "500")

	o, err := st.Orders.Purchase(ctx, orders.Request{RequestID: "r1", TelegramID: 7, ProductName: "Netflix", Price: dec("300")})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if o.Status != orders.StatusPaid || o.Login != "Netflix-user0" || o.Password != "pw" || o.Replayed {
		t.Fatalf("unexpected order: %+v", o)
	}
	if !o.Balance.Equal(dec("200")) || !balanceOf(t, st, 7).Equal(dec("200")) {
		t.Fatalf("balance = %s / %s, want 200", o.Balance, balanceOf(t, st, 7))
	}
	if s := stockOf(t, st, "Netflix"); s != 0 {
		t.Fatalf("stock = %d, want 0", s)
	}

	hist, err := st.Orders.ListByUser(ctx, 7, 10)
	if err != nil || len(hist) != 1 || hist[0].Login != "Netflix-user0" {
		t.Fatalf("history = %+v, %v", hist, err)
	}
}

func TestPurchaseReplayIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st, "Netflix", "100", 3, 7, "1000")

	req := orders.Request{RequestID: "same", TelegramID: 7, ProductName: "Netflix", Price: dec("100")}
	first, err := st.Orders.Purchase(ctx, req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := st.Orders.Purchase(ctx, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.ID != first.ID || second.Login != first.Login {
		t.Fatalf("replay = %+v, first = %+v", second, first)
	}
	if b := balanceOf(t, st, 7); !b.Equal(dec("900")) {
		t.Fatalf("balance = %s, want 900 (single debit)", b)
	}
	if s := stockOf(t, st, "Netflix"); s != 2 {
		t.Fatalf("stock = %d, want 2", s)
	}

	req.TelegramID = 8
	if _, err := st.Orders.Purchase(ctx, req); !errors.Is(err, orders.ErrRequestIDReused) {
		t.Fatalf("foreign replay err = %v", err)
	}
}

// Двойной тап: одинаковый request_id параллельно списывает деньги и выдаёт учётку один раз.
func TestConcurrentDuplicatePurchase(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seed(t, st, "Netflix", "100", 5, 7, "1000")

	const n = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		fresh    int
		replayed int
		ids      = map[int64]bool{}
		logins   = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := st.Orders.Purchase(ctx, orders.Request{
				RequestID: "dup", TelegramID: 7, ProductName: "Netflix", Price: dec("100"),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Errorf("Purchase: %v", err)
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

	if fresh != 1 || replayed != n-1 {
		t.Fatalf("fresh=%d replayed=%d, want 1/%d", fresh, replayed, n-1)
	}
	if len(ids) != 1 || len(logins) != 1 {
		t.Fatalf("orders=%v logins=%v, want a single order and credential", ids, logins)
	}
	if b := balanceOf(t, st, 7); !b.Equal(dec("900")) {
		t.Fatalf("balance = %s, want 900", b)
	}
	if s := stockOf(t, st, "Netflix"); s != 4 {
		t.Fatalf("stock = %d, want 4", s)
	}
	if c, _ := st.Accounts.CountUnused(ctx, p.ID); c != 4 {
		t.Fatalf("unused = %d, want 4", c)
	}
}

func TestPurchaseFailuresRollBack(t *testing.T) {
	cases := []struct {
		name    string
		creds   int
		balance string
		req     orders.Request
		wantErr error
	}{
		{"insufficient funds", 1, "50", orders.Request{ProductName: "P", Price: dec("100")}, users.ErrInsufficientFunds},
		{"unknown user", 1, "", orders.Request{ProductName: "P", Price: dec("100")}, users.ErrInsufficientFunds},
		{"no accounts", 0, "500", orders.Request{ProductName: "P", Price: dec("100")}, accounts.ErrUnavailable},
		{"unknown product", 1, "500", orders.Request{ProductName: "Q", Price: dec("100")}, products.ErrNotFound},
		{"price changed", 1, "500", orders.Request{ProductName: "P", Price: dec("90")}, products.ErrPriceChanged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newTestStore(t)
			ctx := context.Background()
			p := seed(t, st, "P", "100", tc.creds, 7, tc.balance)
			before := balanceOf(t, st, 7)

			tc.req.RequestID, tc.req.TelegramID = "req-"+tc.name, 7
			if _, err := st.Orders.Purchase(ctx, tc.req); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if b := balanceOf(t, st, 7); !b.Equal(before) {
				t.Fatalf("balance changed %s -> %s", before, b)
			}
			if c, _ := st.Accounts.CountUnused(ctx, p.ID); c != tc.creds {
				t.Fatalf("unused = %d, want %d", c, tc.creds)
			}
			if s := stockOf(t, st, "P"); s != tc.creds {
				t.Fatalf("stock = %d, want %d", s, tc.creds)
			}
			if hist, _ := st.Orders.ListByUser(ctx, 7, 10); len(hist) != 0 {
				t.Fatalf("failed purchase left orders: %+v", hist)
			}
		})
	}
}

func TestConcurrentPurchasesNeverShareCredentials(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	const buyers, pool = 20, 7
	seed(t, st, "Hot", "10", pool, 0, "")
	for i := 0; i < buyers; i++ {
		if _, err := st.Ledger.Credit(ctx, int64(100+i), dec("10")); err != nil {
			t.Fatal(err)
		}
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		ok, soldOut int
		logins      = map[string]bool{}
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := st.Orders.Purchase(ctx, orders.Request{
				RequestID: fmt.Sprintf("c-%d", i), TelegramID: int64(100 + i), ProductName: "Hot", Price: dec("10"),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
				if logins[o.Login] {
					t.Errorf("credential %s sold twice", o.Login)
				}
				logins[o.Login] = true
			case errors.Is(err, accounts.ErrUnavailable):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != pool || soldOut != buyers-pool {
		t.Fatalf("ok=%d soldOut=%d, want %d/%d", ok, soldOut, pool, buyers-pool)
	}
	if s := stockOf(t, st, "Hot"); s != 0 {
		t.Fatalf("stock = %d, want 0", s)
	}
}

func TestRefund(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := seed(t, st, "P", "120", 1, 7, "120")

	o, err := st.Orders.Purchase(ctx, orders.Request{RequestID: "r", TelegramID: 7, ProductName: "P", Price: dec("120")})
	if err != nil {
		t.Fatal(err)
	}
	bal, err := st.Orders.Refund(ctx, o.ID)
	if err != nil || !bal.Equal(dec("120")) {
		t.Fatalf("Refund = %s, %v", bal, err)
	}
	if _, err := st.Orders.Refund(ctx, o.ID); !errors.Is(err, orders.ErrNotRefundable) {
		t.Fatalf("second Refund err = %v", err)
	}
	got, err := st.Orders.GetByID(ctx, o.ID)
	if err != nil || got.Status != orders.StatusRefunded {
		t.Fatalf("order after refund = %+v, %v", got, err)
	}
	// выданная учётка в пул не возвращается
	if c, _ := st.Accounts.CountUnused(ctx, p.ID); c != 0 {
		t.Fatalf("unused = %d, want 0", c)
	}
}

func TestInvoices(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	inv, err := st.Invoices.Create(ctx, 9, dec("250"), invoices.ProviderTest)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inv.Status != invoices.StatusPending || inv.ExternalID == "" {
		t.Fatalf("unexpected invoice: %+v", inv)
	}

	s, err := st.Invoices.MarkPaid(ctx, inv.ID)
	if err != nil || !s.Credited || !s.Balance.Equal(dec("250")) {
		t.Fatalf("MarkPaid = %+v, %v", s, err)
	}
	s, err = st.Invoices.MarkPaid(ctx, inv.ID)
	if err != nil || s.Credited {
		t.Fatalf("second MarkPaid = %+v, %v", s, err)
	}
	if _, err := st.Invoices.MarkPaid(ctx, 999); !errors.Is(err, invoices.ErrNotFound) {
		t.Fatalf("MarkPaid missing err = %v", err)
	}

	n := invoices.Notification{Provider: "tribute", ExternalID: "ext-1", TelegramID: 9, Amount: dec("50")}
	if s, err = st.Invoices.CreditExternal(ctx, n); err != nil || !s.Credited {
		t.Fatalf("CreditExternal = %+v, %v", s, err)
	}
	if s, err = st.Invoices.CreditExternal(ctx, n); err != nil || s.Credited {
		t.Fatalf("duplicate CreditExternal = %+v, %v", s, err)
	}
	if b := balanceOf(t, st, 9); !b.Equal(dec("300")) {
		t.Fatalf("balance = %s, want 300", b)
	}
}

func TestSchemaRejectsBadMoney(t *testing.T) {
	st := newTestStore(t)
	conn := st.Catalog.(*catalogRepo).db
	ctx := context.Background()

	bad := map[string]string{
		"negative price":   `INSERT INTO products (name, price) VALUES ('X', '-1.50')`,
		"negative balance": `INSERT INTO users (telegram_id, balance) VALUES (1, '-0.01')`,
		"zero invoice":     `INSERT INTO invoices (telegram_id, amount, external_id) VALUES (1, '0', 'e1')`,
		"negative invoice": `INSERT INTO invoices (telegram_id, amount, external_id) VALUES (1, '-5', 'e2')`,
	}
	for name, q := range bad {
		if _, err := conn.ExecContext(ctx, q); err == nil || !strings.Contains(err.Error(), "CHECK constraint failed") {
			t.Errorf("%s: err = %v, want CHECK violation", name, err)
		}
	}

	good := []string{
		`INSERT INTO products (name, price) VALUES ('Free', '0')`,
		`INSERT INTO products (name, price) VALUES ('Cheap', '10.50')`,
		`INSERT INTO invoices (telegram_id, amount, external_id) VALUES (1, '0.01', 'e3')`,
	}
	for _, q := range good {
		if _, err := conn.ExecContext(ctx, q); err != nil {
			t.Errorf("%s: %v", q, err)
		}
	}
}

func TestLedgerEnsureKeepsBalance(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.Ledger.Credit(ctx, 5, dec("10")); err != nil {
		t.Fatal(err)
	}
	u, err := st.Ledger.Ensure(ctx, 5, "neo")
	if err != nil || u.Username != "neo" || !u.Balance.Equal(dec("10")) {
		t.Fatalf("Ensure = %+v, %v", u, err)
	}
	u, err = st.Ledger.Ensure(ctx, 5, "")
	if err != nil || u.Username != "neo" {
		t.Fatalf("Ensure with empty username = %+v, %v", u, err)
	}
	if _, err := st.Ledger.Credit(ctx, 5, dec("-1")); err == nil {
		t.Fatal("negative credit must fail")
	}
	ids, err := st.Ledger.ListTelegramIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != 5 {
		t.Fatalf("ids = %v, %v", ids, err)
	}
}
