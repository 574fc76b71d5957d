package payments

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/invoices"
)

func TestProviderMode(t *testing.T) {
	s := NewService(Options{BaseURL: "https://shop.example.com", ProviderURL: "https://t.me/tribute/app?startapp=d1"})
	if s.TestMode() {
		t.Fatal("test mode must be off by default")
	}
	if got := s.PaymentURL(12); got != "https://t.me/tribute/app?startapp=d1" {
		t.Fatalf("PaymentURL = %q", got)
	}
	if s.Provider() != ProviderTribute {
		t.Fatalf("Provider = %q", s.Provider())
	}
}

func TestPaymentURLAndQR(t *testing.T) {
	s := NewService(Options{BaseURL: "https://shop.example.com/", TestMode: true})
	if got := s.PaymentURL(12); got != "https://shop.example.com/payments/pay?invoice=12" {
		t.Fatalf("PaymentURL = %q", got)
	}
	img, err := s.QR(12)
	if err != nil {
		t.Fatalf("QR: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(img)); err != nil {
		t.Fatalf("QR is not a png: %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"name":"new_donation"}`)
	sig := Sign("s3cret", body)
	if err := VerifySignature("s3cret", body, sig); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	for name, tc := range map[string]struct{ secret, sig string }{
		"wrong secret": {"other", sig},
		"not hex":      {"s3cret", "zz"},
		"empty secret": {"", Sign("", body)},
	} {
		if err := VerifySignature(tc.secret, body, tc.sig); !errors.Is(err, ErrBadSignature) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestParseTribute(t *testing.T) {
	n, err := ParseTribute([]byte(`{"name":"new_donation","payload":{"donation_request_id":981,"telegram_user_id":77,"amount":"150.50","currency":"rub"}}`), "RUB")
	if err != nil {
		t.Fatalf("ParseTribute: %v", err)
	}
	if n.Provider != ProviderTribute || n.ExternalID != "981" || n.TelegramID != 77 || !n.Amount.Equal(decimal.RequireFromString("150.5")) {
		t.Fatalf("unexpected notification: %+v", n)
	}

	if _, err := ParseTribute([]byte(`{"name":"cancelled_subscription","payload":{}}`), ""); !errors.Is(err, ErrIgnoredEvent) {
		t.Fatalf("other event err = %v", err)
	}
	if _, err := ParseTribute([]byte(`{"name":"new_donation","payload":{"donation_request_id":1,"telegram_user_id":77,"amount":0}}`), ""); err == nil {
		t.Fatal("zero amount must be rejected")
	}
	usd := `{"name":"new_donation","payload":{"donation_request_id":2,"telegram_user_id":77,"amount":5,"currency":"usd"}}`
	if _, err := ParseTribute([]byte(usd), "RUB"); !errors.Is(err, ErrCurrency) {
		t.Fatalf("currency err = %v", err)
	}
}

type fakeSettler struct {
	calls int
	err   error
}

func (f *fakeSettler) SettleInvoice(_ context.Context, id int64) (*invoices.Settlement, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &invoices.Settlement{
		Invoice:  invoices.Invoice{ID: id, Amount: decimal.NewFromInt(100)},
		Credited: f.calls == 1,
	}, nil
}

func TestHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	fs := &fakeSettler{}
	h := NewHandler(log, fs)

	do := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	if rec := do("/payments/pay"); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing invoice code = %d", rec.Code)
	}
	if rec := do("/payments/pay?invoice=-3"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad invoice code = %d", rec.Code)
	}

	rec := do("/payments/pay?invoice=5")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Баланс пополнен") {
		t.Fatalf("first pay = %d %s", rec.Code, rec.Body.String())
	}
	rec = do("/payments/pay?invoice=5")
	if !strings.Contains(rec.Body.String(), "уже был оплачен") {
		t.Fatalf("second pay body = %s", rec.Body.String())
	}

	fs.err = invoices.ErrNotFound
	if rec := do("/payments/pay?invoice=9"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown invoice code = %d", rec.Code)
	}
}
