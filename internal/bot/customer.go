package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/temny-shop/internal/dialog"
	"github.com/Spok95/temny-shop/internal/domain/invoices"
	"github.com/Spok95/temny-shop/internal/domain/orders"
	"github.com/Spok95/temny-shop/internal/domain/products"
	"github.com/Spok95/temny-shop/internal/shop"
)

const ordersShown = 10

func (b *Bot) showBalance(ctx context.Context, chatID, tgID int64) {
	bal, err := b.shop.Balance(ctx, tgID)
	if err != nil {
		b.log.Error("get balance failed", "user_id", tgID, "err", err)
		b.reply(chatID, "Не удалось получить баланс")
		return
	}
	b.replyWith(chatID, fmt.Sprintf("Ваш баланс: %s ₽", bal.StringFixed(2)), balanceKeyboard())
}

func (b *Bot) showOrders(ctx context.Context, chatID, tgID int64) {
	list, err := b.shop.Store().Orders.ListByUser(ctx, tgID, ordersShown)
	if err != nil {
		b.log.Error("list orders failed", "user_id", tgID, "err", err)
		b.reply(chatID, "Не удалось загрузить покупки")
		return
	}
	if len(list) == 0 {
		b.reply(chatID, "Покупок пока нет.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Последние покупки:\n")
	for _, o := range list {
		fmt.Fprintf(&sb, "\n#%d %s · %s ₽ · %s", o.ID, o.ProductName, o.Price.StringFixed(2), o.CreatedAt.Format("02.01.2006 15:04"))
		switch o.Status {
		case orders.StatusRefunded:
			sb.WriteString("\n  возврат на баланс")
		case orders.StatusPaid:
			if o.Login != "" {
				fmt.Fprintf(&sb, "\n  %s : %s", o.Login, o.Password)
			}
		}
	}
	b.reply(chatID, sb.String())
}

// handleDepositAmount выставляет инвойс и отправляет ссылку на оплату с QR.
func (b *Bot) handleDepositAmount(ctx context.Context, chatID, tgID int64, text string) {
	amount, err := products.ParsePrice(text)
	if err != nil || !amount.IsPositive() {
		b.replyWith(chatID, "Введите сумму числом, например 500", navKeyboard(false, true))
		return
	}

	p, err := b.shop.CreatePayment(ctx, tgID, amount)
	if errors.Is(err, shop.ErrInvalidRequest) {
		b.reply(chatID, "Некорректная сумма.")
		return
	}
	if err != nil {
		b.log.Error("create payment failed", "user_id", tgID, "err", err)
		b.reply(chatID, "Не удалось создать счёт. Попробуйте позже.")
		return
	}
	_, _ = b.states.Fire(ctx, chatID, dialog.EvDone, nil)

	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("Оплатить "+p.Invoice.Amount.StringFixed(2)+" ₽", p.PayURL),
	))
	caption := fmt.Sprintf("Счёт #%d на %s ₽.\nОплатите по ссылке или отсканируйте QR-код.", p.Invoice.ID, p.Invoice.Amount.StringFixed(2))
	if p.Invoice.Provider != invoices.ProviderTest {
		caption += "\nБаланс пополнится автоматически, когда Tribute подтвердит платёж."
	}

	png, err := b.shop.PaymentQR(p.Invoice.ID)
	if err != nil {
		b.log.Warn("qr render failed", "invoice_id", p.Invoice.ID, "err", err)
		b.replyWith(chatID, caption+"\n"+p.PayURL, kb)
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "invoice.png", Bytes: png})
	photo.Caption = caption
	photo.ReplyMarkup = kb
	b.send(photo)
}
