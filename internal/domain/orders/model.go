package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusRefunded Status = "refunded"
)

var (
	ErrRequestIDReused = errors.New("orders: request id belongs to another user")
	ErrNotRefundable   = errors.New("orders: order is not paid")
)

// Request вход покупки. RequestID ключ идемпотентности: повтор с тем же ключом
// возвращает уже оформленный заказ без второго списания.
type Request struct {
	RequestID   string
	TelegramID  int64
	ProductName string
	Price       decimal.Decimal
}

type Order struct {
	ID          int64
	RequestID   string
	TelegramID  int64
	ProductID   *int64
	ProductName string
	Price       decimal.Decimal
	Status      Status
	AccountID   *int64
	Login       string
	Password    string
	Balance     decimal.Decimal // баланс после списания, заполняется только Purchase
	Replayed    bool
	CreatedAt   time.Time
}
