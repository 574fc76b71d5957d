package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/Spok95/temny-shop/internal/domain/orders"
)

// DeliverAccount отправляет покупателю данные учётки. Ошибка означает, что сообщение не дошло.
func (b *Bot) DeliverAccount(_ context.Context, o orders.Order) error {
	text := fmt.Sprintf("✅ Покупка #%d: %s\n\nЛогин: %s\nПароль: %s\n\nСписано %s ₽, баланс: %s ₽",
		o.ID, o.ProductName, o.Login, o.Password, o.Price.StringFixed(2), o.Balance.StringFixed(2))
	if _, err := b.api.Send(tgbotapi.NewMessage(o.TelegramID, text)); err != nil {
		return fmt.Errorf("deliver order %d: %w", o.ID, err)
	}
	return nil
}

func (b *Bot) NotifyTopUp(_ context.Context, tgID int64, amount, balance decimal.Decimal) error {
	text := fmt.Sprintf("💰 Баланс пополнен на %s ₽. Текущий баланс: %s ₽", amount.StringFixed(2), balance.StringFixed(2))
	_, err := b.api.Send(tgbotapi.NewMessage(tgID, text))
	return err
}

// AlertAdmin шлёт в админский чат; без него только пишет в лог.
func (b *Bot) AlertAdmin(_ context.Context, text string) {
	if b.adminChat == 0 {
		b.log.Warn("admin alert dropped: admin chat is not configured", "text", text)
		return
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(b.adminChat, text)); err != nil {
		b.log.Error("admin alert failed", "err", err)
	}
}
