package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Spok95/temny-shop/internal/domain/invoices"
)

// Settler зачисляет оплаченный инвойс (реализует shop.Service).
type Settler interface {
	SettleInvoice(ctx context.Context, invoiceID int64) (*invoices.Settlement, error)
}

type Handler struct {
	log     *slog.Logger
	settler Settler
}

func NewHandler(log *slog.Logger, settler Settler) *Handler {
	return &Handler{
		log:     log,
		settler: settler,
	}
}

// ServeHTTP эмулирует "успешную оплату":
// /payments/pay?invoice=123 -> инвойс paid, баланс пополнен, показываем простую HTML-страницу.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	invoiceStr := r.URL.Query().Get("invoice")
	if invoiceStr == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("missing invoice parameter"))
		return
	}

	invoiceID, err := ParseInvoiceID(invoiceStr)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(err.Error()))
		return
	}

	s, err := h.settler.SettleInvoice(ctx, invoiceID)
	if errors.Is(err, invoices.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("invoice not found"))
		return
	}
	if err != nil {
		h.log.Error("failed to mark invoice as paid",
			"invoice_id", invoiceID,
			"err", err,
		)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("failed to update invoice status"))
		return
	}

	note := "Баланс пополнен."
	if !s.Credited {
		note = "Инвойс уже был оплачен ранее."
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w,
		"<html><body><h1>Оплата прошла</h1><p>Инвойс #%d на %s. %s</p></body></html>",
		invoiceID, s.Invoice.Amount.StringFixed(2), note,
	)
}
