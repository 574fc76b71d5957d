package users

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInsufficientFunds = errors.New("users: insufficient funds")

type User struct {
	ID         int64
	TelegramID int64
	Username   string
	Balance    decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
