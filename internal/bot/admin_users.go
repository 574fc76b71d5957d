package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/temny-shop/internal/dialog"
	"github.com/Spok95/temny-shop/internal/domain/products"
	"github.com/Spok95/temny-shop/internal/shop"
)

func (b *Bot) handleTopUpAmount(ctx context.Context, chatID int64, st *dialog.Item, text string) {
	userID, _ := dialog.GetInt64(st.Payload, "user_id")
	amount, err := products.ParsePrice(text)
	if err != nil || !amount.IsPositive() {
		b.reply(chatID, "Сумма должна быть положительным числом, например 500")
		return
	}

	bal, err := b.shop.TopUp(ctx, userID, amount)
	if errors.Is(err, shop.ErrInvalidRequest) {
		b.reply(chatID, "Некорректный пользователь или сумма.")
		return
	}
	if err != nil {
		b.log.Error("manual top-up failed", "user_id", userID, "err", err)
		b.reply(chatID, "Не удалось пополнить баланс.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Пользователю %d зачислено %s. Баланс: %s",
		userID, amount.StringFixed(2), bal.StringFixed(2)))
	b.backToMenu(ctx, chatID)
}

// handleBroadcast рассылка всем покупателям с ограничением скорости.
func (b *Bot) handleBroadcast(ctx context.Context, chatID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		b.reply(chatID, "Пустое сообщение не отправить. Пришлите текст рассылки.")
		return
	}
	ids, err := b.shop.Store().Ledger.ListTelegramIDs(ctx)
	if err != nil {
		b.log.Error("list users failed", "err", err)
		b.reply(chatID, "Ошибка загрузки списка пользователей")
		return
	}

	sent, failed := 0, 0
	for _, id := range ids {
		if err := b.broadcast.Wait(ctx); err != nil {
			break
		}
		if _, err := b.api.Send(tgbotapi.NewMessage(id, text)); err != nil {
			b.log.Warn("broadcast message failed", "user_id", id, "err", err)
			failed++
			continue
		}
		sent++
	}
	b.log.Info("broadcast finished", "sent", sent, "failed", failed)
	b.reply(chatID, fmt.Sprintf("Рассылка завершена. Доставлено: %d, ошибок: %d.", sent, failed))
	b.backToMenu(ctx, chatID)
}
