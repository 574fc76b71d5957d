package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/accounts"
	"github.com/Spok95/temny-shop/internal/domain/invoices"
	"github.com/Spok95/temny-shop/internal/domain/orders"
	"github.com/Spok95/temny-shop/internal/domain/products"
	"github.com/Spok95/temny-shop/internal/domain/users"
	"github.com/Spok95/temny-shop/internal/infra/metrics"
	"github.com/Spok95/temny-shop/internal/infra/payments"
	"github.com/Spok95/temny-shop/internal/store"
)

var (
	ErrInvalidRequest = errors.New("shop: invalid request")
	ErrDeliveryFailed = errors.New("shop: delivery failed, payment refunded")
	ErrNoCredentials  = errors.New("shop: no valid login:password lines")
	ErrTestModeOff    = errors.New("shop: test payments are disabled")
)

// Источники пополнения для метрик и уведомлений.
const (
	SourceManual  = "manual"
	SourceInvoice = "invoice"
)

// Notifier доставка сообщений в чат (реализует bot.Bot).
type Notifier interface {
	DeliverAccount(ctx context.Context, o orders.Order) error
	NotifyTopUp(ctx context.Context, tgID int64, amount, balance decimal.Decimal) error
	AlertAdmin(ctx context.Context, text string)
}

type Service struct {
	st       *store.Store
	notifier Notifier
	payments *payments.Service
	m        *metrics.Metrics
	log      *slog.Logger
}

func NewService(st *store.Store, pay *payments.Service, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{st: st, payments: pay, m: m, log: log}
}

// SetNotifier бот создаётся после сервиса, поэтому уведомитель подключается отдельно.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

func (s *Service) Store() *store.Store { return s.st }

type BuyRequest struct {
	TelegramID  int64
	ProductName string
	Price       decimal.Decimal
	RequestID   string
}

// Buy списывает цену, захватывает учётку и отправляет её покупателю в чат.
// Если доставка не удалась, деньги возвращаются, а учётка остаётся выданной
// (в пул она не возвращается, чтобы не уйти второму покупателю), админ получает алерт.
func (s *Service) Buy(ctx context.Context, req BuyRequest) (*orders.Order, error) {
	if req.TelegramID <= 0 || req.ProductName == "" || req.Price.IsNegative() {
		return nil, ErrInvalidRequest
	}
	// Без request_id повтор запроса не распознать: каждый вызов станет новой покупкой.
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
		s.log.Warn("purchase without request_id, retries will not be deduplicated", "user_id", req.TelegramID)
	}

	o, err := s.st.Orders.Purchase(ctx, orders.Request{
		RequestID:   req.RequestID,
		TelegramID:  req.TelegramID,
		ProductName: req.ProductName,
		Price:       req.Price,
	})
	if err != nil {
		s.m.Purchases.WithLabelValues(purchaseResult(err)).Inc()
		if purchaseResult(err) == metrics.ResultError {
			s.log.Error("purchase failed", "user_id", req.TelegramID, "product", req.ProductName, "err", err)
		}
		return nil, err
	}

	if o.Replayed {
		s.m.Purchases.WithLabelValues(metrics.ResultReplayed).Inc()
		if o.Status == orders.StatusRefunded {
			return o, ErrDeliveryFailed
		}
		return o, nil
	}

	if err := s.deliver(ctx, *o); err != nil {
		s.log.Error("account delivery failed", "order_id", o.ID, "user_id", o.TelegramID, "err", err)
		s.m.Purchases.WithLabelValues(metrics.ResultDeliveryFailed).Inc()

		bal, rerr := s.st.Orders.Refund(ctx, o.ID)
		if rerr != nil {
			s.log.Error("refund failed", "order_id", o.ID, "err", rerr)
			s.alert(ctx, fmt.Sprintf("⚠️ Заказ #%d (%s): учётка не доставлена пользователю %d, возврат не прошёл: %v",
				o.ID, o.ProductName, o.TelegramID, rerr))
			return o, fmt.Errorf("%w: refund: %v", ErrDeliveryFailed, rerr)
		}
		o.Status, o.Balance = orders.StatusRefunded, bal
		s.alert(ctx, fmt.Sprintf("⚠️ Заказ #%d (%s): учётка id=%d не доставлена пользователю %d, %s возвращено на баланс.",
			o.ID, o.ProductName, derefID(o.AccountID), o.TelegramID, o.Price.StringFixed(2)))
		return o, ErrDeliveryFailed
	}

	s.m.Purchases.WithLabelValues(metrics.ResultOK).Inc()
	s.log.Info("purchase completed", "order_id", o.ID, "user_id", o.TelegramID, "product", o.ProductName)
	return o, nil
}

func (s *Service) deliver(ctx context.Context, o orders.Order) error {
	if s.notifier == nil {
		return errors.New("notifier is not configured")
	}
	return s.notifier.DeliverAccount(ctx, o)
}

func (s *Service) alert(ctx context.Context, text string) {
	if s.notifier != nil {
		s.notifier.AlertAdmin(ctx, text)
	}
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func purchaseResult(err error) string {
	switch {
	case errors.Is(err, users.ErrInsufficientFunds):
		return metrics.ResultInsufficient
	case errors.Is(err, accounts.ErrUnavailable):
		return metrics.ResultUnavailable
	case errors.Is(err, products.ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, products.ErrPriceChanged):
		return metrics.ResultPriceChanged
	default:
		return metrics.ResultError
	}
}

type AddResult struct {
	Added    int
	Skipped  int      // уже были в пуле или повторялись в пачке
	Rejected []string // строки не в формате login:password
}

// AddAccounts кладёт пачку "login:password" в пул товара.
func (s *Service) AddAccounts(ctx context.Context, productName, text string) (*AddResult, error) {
	creds, bad := accounts.ParseText(text)
	return s.addParsed(ctx, productName, creds, bad)
}

func (s *Service) AddAccountsXLSX(ctx context.Context, productName string, data []byte) (*AddResult, error) {
	creds, bad, err := accounts.ParseXLSX(data)
	if err != nil {
		return nil, err
	}
	return s.addParsed(ctx, productName, creds, bad)
}

func (s *Service) addParsed(ctx context.Context, productName string, creds []accounts.Credentials, bad []string) (*AddResult, error) {
	if len(creds) == 0 {
		return &AddResult{Rejected: bad}, ErrNoCredentials
	}
	n, err := s.st.Accounts.Add(ctx, productName, creds)
	if err != nil {
		return nil, err
	}
	s.m.AccountsAdded.Add(float64(n))
	s.log.Info("accounts added", "product", productName, "added", n, "rejected", len(bad))
	return &AddResult{Added: n, Skipped: len(creds) - n, Rejected: bad}, nil
}

// TopUp ручное пополнение админом.
func (s *Service) TopUp(ctx context.Context, tgID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if tgID <= 0 || !amount.IsPositive() {
		return decimal.Zero, ErrInvalidRequest
	}
	bal, err := s.st.Ledger.Credit(ctx, tgID, amount)
	if err != nil {
		return decimal.Zero, err
	}
	s.credited(ctx, SourceManual, tgID, amount, bal)
	return bal, nil
}

func (s *Service) credited(ctx context.Context, source string, tgID int64, amount, bal decimal.Decimal) {
	s.m.Credits.WithLabelValues(source).Inc()
	s.log.Info("balance credited", "source", source, "user_id", tgID, "amount", amount.String())
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyTopUp(ctx, tgID, amount, bal); err != nil {
		s.log.Warn("top-up notification failed", "user_id", tgID, "err", err)
	}
}

type Payment struct {
	Invoice invoices.Invoice
	PayURL  string
}

// CreatePayment выставляет инвойс на пополнение и возвращает ссылку на оплату.
// Вне тестового режима ссылка ведёт к провайдеру, а баланс пополняет только его вебхук.
func (s *Service) CreatePayment(ctx context.Context, tgID int64, amount decimal.Decimal) (*Payment, error) {
	if tgID <= 0 || !amount.IsPositive() {
		return nil, ErrInvalidRequest
	}
	inv, err := s.st.Invoices.Create(ctx, tgID, amount.Round(2), s.payments.Provider())
	if err != nil {
		return nil, err
	}
	return &Payment{Invoice: *inv, PayURL: s.payments.PaymentURL(inv.ID)}, nil
}

func (s *Service) PaymentQR(invoiceID int64) ([]byte, error) {
	return s.payments.QR(invoiceID)
}

func (s *Service) TestPayments() bool { return s.payments.TestMode() }

// SettleInvoice оплата тестового инвойса без денег. Работает только в тестовом режиме
// и только для инвойсов, выставленных в нём.
func (s *Service) SettleInvoice(ctx context.Context, invoiceID int64) (*invoices.Settlement, error) {
	if !s.payments.TestMode() {
		return nil, ErrTestModeOff
	}
	inv, err := s.st.Invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.Provider != invoices.ProviderTest {
		return nil, invoices.ErrNotFound
	}
	st, err := s.st.Invoices.MarkPaid(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if st.Credited {
		s.credited(ctx, SourceInvoice, st.Invoice.TelegramID, st.Invoice.Amount, st.Balance)
	}
	return st, nil
}

// CreditExternal учитывает уведомление провайдера; повтор того же платежа ничего не меняет.
func (s *Service) CreditExternal(ctx context.Context, n invoices.Notification) (*invoices.Settlement, error) {
	st, err := s.st.Invoices.CreditExternal(ctx, n)
	if err != nil {
		return nil, err
	}
	if st.Credited {
		s.credited(ctx, n.Provider, n.TelegramID, n.Amount, st.Balance)
	}
	return st, nil
}

func (s *Service) Balance(ctx context.Context, tgID int64) (decimal.Decimal, error) {
	u, err := s.st.Ledger.Get(ctx, tgID)
	if err != nil {
		return decimal.Zero, err
	}
	if u == nil {
		return decimal.Zero, nil
	}
	return u.Balance, nil
}
