package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/temny-shop/internal/dialog"
	"github.com/Spok95/temny-shop/internal/domain/products"
)

// handleProductAction data вида "<id>" или "<id>:<action>".
func (b *Bot) handleProductAction(ctx context.Context, cb *tgbotapi.CallbackQuery, data string) {
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID

	idStr, action, _ := strings.Cut(data, ":")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}
	p, err := b.shop.Store().Catalog.GetByID(ctx, id)
	if err != nil {
		b.log.Error("get product failed", "product_id", id, "err", err)
		b.reply(chatID, "Ошибка загрузки товара")
		return
	}
	if p == nil {
		b.editTextWithMarkup(chatID, msgID, "Товар не найден (возможно, удалён).", navKeyboard(true, false))
		return
	}

	payload := dialog.Payload{"product_id": p.ID}
	switch action {
	case "":
		b.showProductItem(ctx, chatID, msgID, p)
	case "price":
		_, _ = b.states.Fire(ctx, chatID, dialog.EvEditPrice, payload)
		b.editTextWithMarkup(chatID, msgID,
			fmt.Sprintf("«%s»: текущая цена %s. Введите новую цену:", p.Name, p.Price.StringFixed(2)),
			navKeyboard(true, true))
	case "restock":
		_, _ = b.states.Fire(ctx, chatID, dialog.EvRestock, payload)
		b.editTextWithMarkup(chatID, msgID,
			fmt.Sprintf("«%s»: остаток %d. Введите изменение (+5 или -2):", p.Name, p.Stock),
			navKeyboard(true, true))
	case "cat":
		_, _ = b.states.Fire(ctx, chatID, dialog.EvEditCategory, payload)
		b.editTextWithMarkup(chatID, msgID,
			fmt.Sprintf("«%s»: категория «%s». Введите новую:", p.Name, p.Category),
			navKeyboard(true, true))
	case "accs":
		_, _ = b.states.Fire(ctx, chatID, dialog.EvUploadAccounts, payload)
		b.editTextWithMarkup(chatID, msgID,
			fmt.Sprintf("«%s»: отправьте учётки строками login:password или .xlsx-файлом.", p.Name),
			navKeyboard(true, true))
	case "del":
		_, _ = b.states.Fire(ctx, chatID, dialog.EvDelete, payload)
		b.editTextWithMarkup(chatID, msgID,
			fmt.Sprintf("Удалить «%s»? Невыданные учётки останутся в базе без товара.", p.Name),
			confirmDeleteKeyboard(p.ID))
	}
}

func (b *Bot) showProductItem(ctx context.Context, chatID int64, msgID int, p *products.Product) {
	unused, err := b.shop.Store().Accounts.CountUnused(ctx, p.ID)
	if err != nil {
		b.log.Error("count accounts failed", "product_id", p.ID, "err", err)
	}
	text := fmt.Sprintf("«%s»\nЦена: %s\nОстаток: %d\nСвободных учёток: %d\nКатегория: %s",
		p.Name, p.Price.StringFixed(2), p.Stock, unused, p.Category)
	b.editTextWithMarkup(chatID, msgID, text, productItemKeyboard(p.ID))
}

func (b *Bot) handleNewProduct(ctx context.Context, chatID int64, text string) {
	p, err := products.ParseLine(text)
	if err != nil {
		b.reply(chatID, "Неверный формат. Нужно: "+products.LineFormat)
		return
	}
	saved, err := b.shop.Store().Catalog.Save(ctx, p)
	if err != nil {
		b.log.Error("save product failed", "name", p.Name, "err", err)
		b.reply(chatID, "Ошибка сохранения товара")
		return
	}
	b.log.Info("product saved", "product_id", saved.ID, "name", saved.Name)
	b.reply(chatID, fmt.Sprintf("Товар «%s» сохранён: %s, остаток %d.", saved.Name, saved.Price.StringFixed(2), saved.Stock))
	b.backToMenu(ctx, chatID)
}

func (b *Bot) handlePrice(ctx context.Context, chatID int64, st *dialog.Item, text string) {
	id, _ := dialog.GetInt64(st.Payload, "product_id")
	price, err := products.ParsePrice(text)
	if err != nil {
		b.reply(chatID, "Цена должна быть неотрицательным числом, например 349 или 99.90")
		return
	}
	if err := b.shop.Store().Catalog.UpdatePrice(ctx, id, price); err != nil {
		b.productUpdateFailed(chatID, id, err)
		return
	}
	b.reply(chatID, "Цена обновлена: "+price.StringFixed(2))
	b.backToMenu(ctx, chatID)
}

func (b *Bot) handleRestock(ctx context.Context, chatID int64, st *dialog.Item, text string) {
	id, _ := dialog.GetInt64(st.Payload, "product_id")
	delta, err := strconv.Atoi(strings.TrimPrefix(text, "+"))
	if err != nil || delta == 0 {
		b.reply(chatID, "Введите целое число, например +5 или -2")
		return
	}
	stock, err := b.shop.Store().Catalog.AddStock(ctx, id, delta)
	if err != nil {
		b.productUpdateFailed(chatID, id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Остаток обновлён: %d", stock))
	b.backToMenu(ctx, chatID)
}

func (b *Bot) handleCategory(ctx context.Context, chatID int64, st *dialog.Item, text string) {
	id, _ := dialog.GetInt64(st.Payload, "product_id")
	if text == "" {
		b.reply(chatID, "Категория не может быть пустой")
		return
	}
	if err := b.shop.Store().Catalog.UpdateCategory(ctx, id, text); err != nil {
		b.productUpdateFailed(chatID, id, err)
		return
	}
	b.reply(chatID, "Категория обновлена: "+text)
	b.backToMenu(ctx, chatID)
}

func (b *Bot) productUpdateFailed(chatID, id int64, err error) {
	b.log.Error("update product failed", "product_id", id, "err", err)
	b.reply(chatID, "Не удалось обновить товар (возможно, он удалён).")
}

func (b *Bot) deleteProduct(ctx context.Context, chatID int64, msgID int, id int64) {
	if err := b.shop.Store().Catalog.Delete(ctx, id); err != nil {
		b.log.Error("delete product failed", "product_id", id, "err", err)
		b.editTextWithMarkup(chatID, msgID, "Не удалось удалить товар.", navKeyboard(true, false))
		return
	}
	b.log.Info("product deleted", "product_id", id)
	b.editTextWithMarkup(chatID, msgID, "Товар удалён.", navKeyboard(true, false))
}

func (b *Bot) handleCatalogImport(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.Document == nil {
		b.reply(chatID, "Пришлите .xlsx-файл документом.")
		return
	}
	data, err := b.downloadTelegramFile(ctx, msg.Document.FileID)
	if err != nil {
		b.log.Error("download catalog failed", "err", err)
		b.reply(chatID, "Не удалось скачать файл из Telegram.")
		return
	}

	items, bad, err := products.ParseXLSX(data)
	if err != nil {
		b.reply(chatID, "Не удалось прочитать Excel-файл (повреждён или не .xlsx).")
		return
	}
	saved := 0
	for _, p := range items {
		if _, err := b.shop.Store().Catalog.Save(ctx, p); err != nil {
			b.log.Error("import product failed", "name", p.Name, "err", err)
			bad = append(bad, p.Name)
			continue
		}
		saved++
	}

	text := fmt.Sprintf("Импорт завершён. Сохранено товаров: %d.", saved)
	if len(bad) > 0 {
		text += fmt.Sprintf("\nПропущено строк: %d\n%s", len(bad), strings.Join(limitLines(bad, 10), "\n"))
	}
	b.reply(chatID, text)
	b.backToMenu(ctx, chatID)
}

func (b *Bot) exportCatalog(ctx context.Context, chatID int64) {
	items, err := b.shop.Store().Catalog.List(ctx)
	if err != nil {
		b.log.Error("list products failed", "err", err)
		b.reply(chatID, "Ошибка загрузки товаров")
		return
	}
	data, err := products.WriteXLSX(items)
	if err != nil {
		b.log.Error("build xlsx failed", "err", err)
		b.reply(chatID, "Не удалось сформировать файл")
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "catalog.xlsx", Bytes: data})
	doc.Caption = fmt.Sprintf("Каталог: %d товаров", len(items))
	b.send(doc)
}

func limitLines(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return append(lines[:n:n], fmt.Sprintf("… и ещё %d", len(lines)-n))
}
