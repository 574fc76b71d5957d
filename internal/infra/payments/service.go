package payments

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/Spok95/temny-shop/internal/domain/invoices"
)

type Options struct {
	BaseURL string
	// ProviderURL ссылка на оплату у провайдера (Tribute), зачисление приходит вебхуком.
	ProviderURL string
	// TestMode включает /payments/pay, который помечает инвойс оплаченным без денег.
	TestMode bool
}

type Service struct {
	baseURL     string
	providerURL string
	testMode    bool
}

func NewService(opts Options) *Service {
	return &Service{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		providerURL: opts.ProviderURL,
		testMode:    opts.TestMode,
	}
}

func (s *Service) TestMode() bool { return s.testMode }

// Provider под каким провайдером записывается новый инвойс.
func (s *Service) Provider() string {
	if s.testMode {
		return invoices.ProviderTest
	}
	return ProviderTribute
}

// PaymentURL строит ссылку на оплату инвойса.
// В тестовом режиме это наш же HTTP-сервер, иначе страница провайдера.
func (s *Service) PaymentURL(invoiceID int64) string {
	if !s.testMode {
		return s.providerURL
	}
	return fmt.Sprintf("%s/payments/pay?invoice=%d", s.baseURL, invoiceID)
}

// QR картинка PNG со ссылкой на оплату, чтобы открыть её с другого устройства.
func (s *Service) QR(invoiceID int64) ([]byte, error) {
	return qrcode.Encode(s.PaymentURL(invoiceID), qrcode.Medium, 256)
}
