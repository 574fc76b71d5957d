package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/invoices"
)

const (
	ProviderTribute = "tribute"
	// SignatureHeader HMAC-SHA256(body, secret) в hex.
	SignatureHeader = "trbt-signature"
)

var (
	ErrBadSignature = errors.New("payments: bad signature")
	ErrIgnoredEvent = errors.New("payments: event ignored")
	ErrCurrency     = errors.New("payments: unexpected currency")
)

func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secret string, body []byte, signature string) error {
	want, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || secret == "" {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), want) {
		return ErrBadSignature
	}
	return nil
}

type tributeEvent struct {
	Name    string `json:"name"`
	Payload struct {
		DonationRequestID json.Number     `json:"donation_request_id"`
		TelegramUserID    int64           `json:"telegram_user_id"`
		Amount            decimal.Decimal `json:"amount"`
		Currency          string          `json:"currency"`
	} `json:"payload"`
}

// ParseTribute разбирает уведомление о донате. Учитываются только new_donation,
// прочие события возвращают ErrIgnoredEvent. Пустой currency отключает проверку валюты.
func ParseTribute(body []byte, currency string) (invoices.Notification, error) {
	var ev tributeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return invoices.Notification{}, fmt.Errorf("decode webhook: %w", err)
	}
	if ev.Name != "new_donation" {
		return invoices.Notification{}, fmt.Errorf("%w: %s", ErrIgnoredEvent, ev.Name)
	}
	p := ev.Payload
	if p.DonationRequestID == "" || p.TelegramUserID <= 0 || !p.Amount.IsPositive() {
		return invoices.Notification{}, fmt.Errorf("webhook: incomplete payload")
	}
	if currency != "" && !strings.EqualFold(p.Currency, currency) {
		return invoices.Notification{}, fmt.Errorf("%w: %s", ErrCurrency, p.Currency)
	}
	return invoices.Notification{
		Provider:   ProviderTribute,
		ExternalID: p.DonationRequestID.String(),
		TelegramID: p.TelegramUserID,
		Amount:     p.Amount,
	}, nil
}

// ParseInvoiceID для /payments/pay?invoice=...
func ParseInvoiceID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid invoice parameter")
	}
	return id, nil
}
