package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/Spok95/temny-shop/internal/domain/products"
)

func navKeyboard(back bool, cancel bool) tgbotapi.InlineKeyboardMarkup {
	row := []tgbotapi.InlineKeyboardButton{}
	if back {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "nav:back"))
	}
	if cancel {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✖️ Отменить", "nav:cancel"))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func shopKeyboard(url string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🛍 Открыть магазин", url),
		),
	)
}

func balanceKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 Пополнить", "dep:start"),
		),
	)
}

func adminMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📦 Товары", "adm:products"),
			tgbotapi.NewInlineKeyboardButtonData("➕ Новый товар", "adm:add"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔑 Загрузить учётки", "adm:accounts"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📥 Импорт .xlsx", "adm:import"),
			tgbotapi.NewInlineKeyboardButtonData("📤 Экспорт .xlsx", "adm:export"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📣 Рассылка", "adm:broadcast"),
			tgbotapi.NewInlineKeyboardButtonData("💰 Пополнить баланс", "adm:topup"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚪 Выйти", "adm:logout"),
		),
	)
}

// productListKeyboard список товаров; action пустой открывает карточку товара.
func productListKeyboard(items []products.Product, action string) tgbotapi.InlineKeyboardMarkup {
	rows := lo.Map(items, func(p products.Product, _ int) []tgbotapi.InlineKeyboardButton {
		data := fmt.Sprintf("adm:prod:%d", p.ID)
		if action != "" {
			data += ":" + action
		}
		label := fmt.Sprintf("%s · %s · %d шт.", p.Name, p.Price.StringFixed(2), max(p.Stock, 0))
		return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data))
	})
	rows = append(rows, navKeyboard(true, false).InlineKeyboard[0])
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func productItemKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💲 Цена", fmt.Sprintf("adm:prod:%d:price", id)),
			tgbotapi.NewInlineKeyboardButtonData("📦 Остаток", fmt.Sprintf("adm:prod:%d:restock", id)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏷 Категория", fmt.Sprintf("adm:prod:%d:cat", id)),
			tgbotapi.NewInlineKeyboardButtonData("🔑 Учётки", fmt.Sprintf("adm:prod:%d:accs", id)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", fmt.Sprintf("adm:prod:%d:del", id)),
		),
		navKeyboard(true, false).InlineKeyboard[0],
	)
}

func confirmDeleteKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Да, удалить", fmt.Sprintf("adm:del:%d", id)),
		),
		navKeyboard(true, true).InlineKeyboard[0],
	)
}
