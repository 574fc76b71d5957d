package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/temny-shop/internal/auth"
	"github.com/Spok95/temny-shop/internal/dialog"
	"github.com/Spok95/temny-shop/internal/domain/products"
)

func (b *Bot) handlePassword(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	chatID := msg.Chat.ID
	// пароль не должен оставаться в истории чата
	b.deleteMessage(chatID, msg.MessageID)

	login, _ := dialog.GetString(st.Payload, "login")
	err := b.auth.Login(msg.From.ID, login, strings.TrimSpace(msg.Text))
	if err != nil {
		_, _ = b.states.Fire(ctx, chatID, dialog.EvLoginFailed, nil)
		if errors.Is(err, auth.ErrTooManyAttempts) {
			b.reply(chatID, "Слишком много попыток входа. Попробуйте через минуту.")
			return
		}
		b.log.Warn("admin login failed", "user_id", msg.From.ID)
		b.reply(chatID, "Неверный логин или пароль.")
		return
	}

	_, _ = b.states.Fire(ctx, chatID, dialog.EvLoginOK, dialog.Payload{})
	b.log.Info("admin logged in", "user_id", msg.From.ID)
	b.showAdminMenu(chatID, nil)
}

// showAdminMenu editMsgID != nil редактирует сообщение вместо отправки нового.
func (b *Bot) showAdminMenu(chatID int64, editMsgID *int) {
	const text = "Меню администратора:"
	if editMsgID != nil {
		b.editTextWithMarkup(chatID, *editMsgID, text, adminMenuKeyboard())
		return
	}
	b.replyWith(chatID, text, adminMenuKeyboard())
}

func (b *Bot) backToMenu(ctx context.Context, chatID int64) {
	_, _ = b.states.Fire(ctx, chatID, dialog.EvDone, dialog.Payload{})
	b.showAdminMenu(chatID, nil)
}

// handleAdminCallback data без префикса "adm:".
func (b *Bot) handleAdminCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, data string) {
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID

	// любая кнопка админки начинает шаг заново из меню
	_ = b.states.Set(ctx, chatID, dialog.StateAdminMenu, dialog.Payload{})

	switch {
	case data == "products":
		b.showProductList(ctx, chatID, msgID, "", "Товары:")
	case data == "accounts":
		b.showProductList(ctx, chatID, msgID, "accs", "Куда загрузить учётки?")
	case data == "add":
		_, _ = b.states.Fire(ctx, chatID, dialog.EvAddProduct, dialog.Payload{})
		b.editTextWithMarkup(chatID, msgID,
			"Отправьте товар строкой:\n"+products.LineFormat+"\nНапример: Netflix Premium,349,0,Стриминг",
			navKeyboard(true, true))
	case data == "import":
		_, _ = b.states.Fire(ctx, chatID, dialog.EvImportCatalog, dialog.Payload{})
		b.editTextWithMarkup(chatID, msgID,
			"Отправьте .xlsx с колонками name, price, stock, category (первая строка заголовок).",
			navKeyboard(true, true))
	case data == "export":
		b.exportCatalog(ctx, chatID)
	case data == "broadcast":
		_, _ = b.states.Fire(ctx, chatID, dialog.EvBroadcast, dialog.Payload{})
		b.editTextWithMarkup(chatID, msgID, "Отправьте текст рассылки всем покупателям:", navKeyboard(true, true))
	case data == "topup":
		_, _ = b.states.Fire(ctx, chatID, dialog.EvTopUp, dialog.Payload{})
		b.editTextWithMarkup(chatID, msgID, "Введите Telegram ID пользователя:", navKeyboard(true, true))
	case data == "logout":
		_, _ = b.states.Fire(ctx, chatID, dialog.EvLogout, nil)
		b.auth.Logout(cb.From.ID)
		b.editTextAndClear(chatID, msgID, "Вы вышли из админки.")
	case strings.HasPrefix(data, "prod:"):
		b.handleProductAction(ctx, cb, strings.TrimPrefix(data, "prod:"))
	case strings.HasPrefix(data, "del:"):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, "del:"), 10, 64)
		if err != nil {
			break
		}
		b.deleteProduct(ctx, chatID, msgID, id)
	}
	_ = b.answerCallback(cb, "", false)
}

func (b *Bot) showProductList(ctx context.Context, chatID int64, msgID int, action, title string) {
	items, err := b.shop.Store().Catalog.List(ctx)
	if err != nil {
		b.log.Error("list products failed", "err", err)
		b.reply(chatID, "Ошибка загрузки товаров")
		return
	}
	if len(items) == 0 {
		b.editTextWithMarkup(chatID, msgID, "Товаров пока нет. Добавьте через «Новый товар».", navKeyboard(true, false))
		return
	}
	b.editTextWithMarkup(chatID, msgID, title, productListKeyboard(items, action))
}
