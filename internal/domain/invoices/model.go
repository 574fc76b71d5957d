package invoices

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

const ProviderTest = "test"

var ErrNotFound = errors.New("invoices: not found")

type Invoice struct {
	ID         int64
	TelegramID int64
	Amount     decimal.Decimal
	Provider   string
	ExternalID string
	Status     Status
	CreatedAt  time.Time
	PaidAt     *time.Time
}

// Notification подтверждённый провайдером платёж. (Provider, ExternalID) уникальны:
// повторная доставка того же уведомления баланс не трогает.
type Notification struct {
	Provider   string
	ExternalID string
	TelegramID int64
	Amount     decimal.Decimal
}

// Settlement итог зачисления. Credited=false значит платёж уже был учтён раньше.
type Settlement struct {
	Invoice  Invoice
	Balance  decimal.Decimal
	Credited bool
}
