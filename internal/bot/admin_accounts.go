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

// handleAccountsUpload принимает пачку login:password текстом или .xlsx-документом.
func (b *Bot) handleAccountsUpload(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	chatID := msg.Chat.ID
	id, _ := dialog.GetInt64(st.Payload, "product_id")
	p, err := b.shop.Store().Catalog.GetByID(ctx, id)
	if err != nil || p == nil {
		b.reply(chatID, "Товар не найден (возможно, удалён).")
		b.backToMenu(ctx, chatID)
		return
	}

	var res *shop.AddResult
	if msg.Document != nil {
		data, derr := b.downloadTelegramFile(ctx, msg.Document.FileID)
		if derr != nil {
			b.log.Error("download accounts failed", "err", derr)
			b.reply(chatID, "Не удалось скачать файл из Telegram.")
			return
		}
		res, err = b.shop.AddAccountsXLSX(ctx, p.Name, data)
	} else {
		res, err = b.shop.AddAccounts(ctx, p.Name, msg.Text)
	}

	switch {
	case errors.Is(err, shop.ErrNoCredentials):
		b.reply(chatID, "Не нашёл ни одной строки login:password. Отправьте ещё раз.")
		return
	case errors.Is(err, products.ErrNotFound):
		b.reply(chatID, "Товар не найден (возможно, удалён).")
		b.backToMenu(ctx, chatID)
		return
	case err != nil:
		b.log.Error("add accounts failed", "product", p.Name, "err", err)
		b.reply(chatID, "Не удалось сохранить учётки (файл повреждён или ошибка базы).")
		return
	}

	text := fmt.Sprintf("«%s»: добавлено %d, дубликатов %d.", p.Name, res.Added, res.Skipped)
	if len(res.Rejected) > 0 {
		text += fmt.Sprintf("\nНеверный формат (%d):\n%s", len(res.Rejected), strings.Join(limitLines(res.Rejected, 10), "\n"))
	}
	b.reply(chatID, text)
	b.backToMenu(ctx, chatID)
}
