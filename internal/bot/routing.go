package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/temny-shop/internal/dialog"
)

const helpText = "Команды:\n" +
	"/start — открыть магазин\n" +
	"/balance — баланс и пополнение\n" +
	"/orders — мои покупки\n" +
	"/cancel — отменить текущий шаг\n" +
	"/help — помощь"

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	tgID := msg.From.ID
	switch msg.Command() {
	case "start":
		if _, err := b.shop.Store().Ledger.Ensure(ctx, tgID, msg.From.UserName); err != nil {
			b.log.Error("ensure user failed", "user_id", tgID, "err", err)
			b.reply(chatID, "Ошибка: не удалось сохранить профиль")
			return
		}
		_ = b.states.Reset(ctx, chatID)
		text := "Привет! Здесь можно купить доступы к сервисам. Оплата с внутреннего баланса, пополнить его можно командой /balance."
		if b.webAppURL == "" {
			b.reply(chatID, text)
			return
		}
		b.replyWith(chatID, text, shopKeyboard(b.webAppURL))

	case "help":
		text := helpText
		if b.auth.IsAdmin(tgID) {
			text += "\n/admin — меню администратора\n/logout — выйти из админки"
		}
		b.reply(chatID, text)

	case "balance":
		b.showBalance(ctx, chatID, tgID)

	case "orders":
		b.showOrders(ctx, chatID, tgID)

	case "cancel":
		b.cancel(ctx, chatID, tgID)

	case "logout":
		b.auth.Logout(tgID)
		_ = b.states.Reset(ctx, chatID)
		b.replyWith(chatID, "Вы вышли из админки.", tgbotapi.NewRemoveKeyboard(true))

	case "admin":
		if b.auth.IsAdmin(tgID) {
			_ = b.states.Set(ctx, chatID, dialog.StateAdminMenu, dialog.Payload{})
			b.showAdminMenu(chatID, nil)
			return
		}
		_ = b.states.Reset(ctx, chatID)
		if _, err := b.states.Fire(ctx, chatID, dialog.EvAdmin, dialog.Payload{}); err != nil {
			b.log.Error("dialog transition failed", "err", err)
			return
		}
		b.replyWith(chatID, "Введите логин администратора:", navKeyboard(false, true))

	default:
		b.reply(chatID, "Не знаю такую команду. Наберите /help")
	}
}

// cancel из шага админки возвращает в меню, из остального в idle.
func (b *Bot) cancel(ctx context.Context, chatID, tgID int64) {
	st, _ := b.states.Get(ctx, chatID)
	if dialog.IsAdminState(st.State) && b.auth.IsAdmin(tgID) {
		_ = b.states.Set(ctx, chatID, dialog.StateAdminMenu, dialog.Payload{})
		b.showAdminMenu(chatID, nil)
		return
	}
	_ = b.states.Reset(ctx, chatID)
	b.reply(chatID, "Операция отменена.")
}

func (b *Bot) handleStateMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	tgID := msg.From.ID
	text := strings.TrimSpace(msg.Text)

	st, _ := b.states.Get(ctx, chatID)

	if dialog.IsAdminState(st.State) && !b.auth.IsAdmin(tgID) {
		_ = b.states.Reset(ctx, chatID)
		b.reply(chatID, "Сессия администратора истекла. Войдите снова: /admin")
		return
	}

	switch st.State {
	case dialog.StateAwaitLogin:
		if text == "" {
			b.reply(chatID, "Введите логин текстом.")
			return
		}
		_, _ = b.states.Fire(ctx, chatID, dialog.EvLoginEntered, dialog.Payload{"login": text})
		b.replyWith(chatID, "Введите пароль:", navKeyboard(false, true))

	case dialog.StateAwaitPassword:
		b.handlePassword(ctx, msg, st)

	case dialog.StateAwaitNewProduct:
		b.handleNewProduct(ctx, chatID, text)

	case dialog.StateAwaitPrice:
		b.handlePrice(ctx, chatID, st, text)

	case dialog.StateAwaitRestock:
		b.handleRestock(ctx, chatID, st, text)

	case dialog.StateAwaitCategory:
		b.handleCategory(ctx, chatID, st, text)

	case dialog.StateAwaitAccounts:
		b.handleAccountsUpload(ctx, msg, st)

	case dialog.StateAwaitCatalogFile:
		b.handleCatalogImport(ctx, msg)

	case dialog.StateAwaitBroadcast:
		b.handleBroadcast(ctx, chatID, msg.Text)

	case dialog.StateAwaitTopUpUser:
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil || id <= 0 {
			b.reply(chatID, "Нужен числовой Telegram ID пользователя.")
			return
		}
		_, _ = b.states.Fire(ctx, chatID, dialog.EvTopUpUser, dialog.Payload{"user_id": id})
		b.replyWith(chatID, "Введите сумму пополнения, например 500 или 99.90:", navKeyboard(true, true))

	case dialog.StateAwaitTopUpAmount:
		b.handleTopUpAmount(ctx, chatID, st, text)

	case dialog.StateAwaitDepositAmount:
		b.handleDepositAmount(ctx, chatID, tgID, text)

	case dialog.StateAdminMenu:
		b.showAdminMenu(chatID, nil)

	default:
		b.reply(chatID, "Откройте магазин через кнопку меню или наберите /help")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	fromChat := cb.Message.Chat.ID
	msgID := cb.Message.MessageID

	// Общая навигация
	switch data {
	case "nav:cancel":
		st, _ := b.states.Get(ctx, fromChat)
		if dialog.IsAdminState(st.State) && b.auth.IsAdmin(cb.From.ID) {
			_ = b.states.Set(ctx, fromChat, dialog.StateAdminMenu, dialog.Payload{})
			b.showAdminMenu(fromChat, &msgID)
		} else {
			_ = b.states.Reset(ctx, fromChat)
			b.editTextAndClear(fromChat, msgID, "Операция отменена.")
		}
		_ = b.answerCallback(cb, "Отменено", false)
		return
	case "nav:back":
		st, _ := b.states.Get(ctx, fromChat)
		if !b.auth.IsAdmin(cb.From.ID) {
			_ = b.states.Reset(ctx, fromChat)
			b.editTextAndClear(fromChat, msgID, "Операция отменена.")
			_ = b.answerCallback(cb, "", false)
			return
		}
		if st.State == dialog.StateAwaitTopUpAmount {
			_ = b.states.Set(ctx, fromChat, dialog.StateAwaitTopUpUser, dialog.Payload{})
			b.editTextWithMarkup(fromChat, msgID, "Введите Telegram ID пользователя:", navKeyboard(true, true))
		} else {
			_ = b.states.Set(ctx, fromChat, dialog.StateAdminMenu, dialog.Payload{})
			b.showAdminMenu(fromChat, &msgID)
		}
		_ = b.answerCallback(cb, "", false)
		return
	case "dep:start":
		_ = b.states.Reset(ctx, fromChat)
		_, _ = b.states.Fire(ctx, fromChat, dialog.EvDeposit, dialog.Payload{})
		b.editTextWithMarkup(fromChat, msgID, "Введите сумму пополнения в рублях, например 500:", navKeyboard(false, true))
		_ = b.answerCallback(cb, "", false)
		return
	}

	if strings.HasPrefix(data, "adm:") {
		if !b.auth.IsAdmin(cb.From.ID) {
			_ = b.states.Reset(ctx, fromChat)
			_ = b.answerCallback(cb, "Сессия истекла, войдите через /admin", true)
			return
		}
		b.handleAdminCallback(ctx, cb, strings.TrimPrefix(data, "adm:"))
		return
	}

	_ = b.answerCallback(cb, "", false)
}
