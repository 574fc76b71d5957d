package products

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("products: not found")
	ErrPriceChanged = errors.New("products: price changed")
	ErrBadFormat    = errors.New("products: bad format")
)

type Product struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	Stock     int
	Category  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
