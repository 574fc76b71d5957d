package accounts

import (
	"errors"
	"time"
)

// ErrUnavailable нет свободных учётных данных для товара.
var ErrUnavailable = errors.New("accounts: no accounts available")

type Credentials struct {
	Login    string
	Password string
}

type Account struct {
	ID        int64
	ProductID int64
	Login     string
	Password  string
	Used      bool
	UsedAt    *time.Time
	OrderID   *int64
	CreatedAt time.Time
}

func (a Account) Credentials() Credentials {
	return Credentials{Login: a.Login, Password: a.Password}
}
