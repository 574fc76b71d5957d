package bot

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/Spok95/temny-shop/internal/auth"
	"github.com/Spok95/temny-shop/internal/dialog"
	"github.com/Spok95/temny-shop/internal/shop"
)

// broadcastRate лимит Telegram на рассылку: около 30 сообщений в секунду.
const broadcastRate = 25

type Options struct {
	AdminChatID int64
	WebAppURL   string
	// BroadcastPerSecond 0 означает broadcastRate.
	BroadcastPerSecond float64
}

type Bot struct {
	api       *tgbotapi.BotAPI
	log       *slog.Logger
	shop      *shop.Service
	auth      *auth.Service
	states    *dialog.Repo
	adminChat int64
	webAppURL string

	broadcast    *rate.Limiter
	fileEndpoint string
}

func New(api *tgbotapi.BotAPI, log *slog.Logger, svc *shop.Service, authSvc *auth.Service,
	statesRepo *dialog.Repo, opts Options) *Bot {

	perSec := opts.BroadcastPerSecond
	if perSec <= 0 {
		perSec = broadcastRate
	}
	return &Bot{
		api: api, log: log, shop: svc, auth: authSvc, states: statesRepo,
		adminChat: opts.AdminChatID, webAppURL: opts.WebAppURL,
		broadcast:    rate.NewLimiter(rate.Limit(perSec), 1),
		fileEndpoint: tgbotapi.FileEndpoint,
	}
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	b.setupMenuButton()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			b.handleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	// один апдейт не должен ронять весь цикл
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panic", "update_id", upd.UpdateID, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if upd.Message != nil {
		b.onMessage(ctx, upd)
	} else if upd.CallbackQuery != nil {
		b.onCallback(ctx, upd)
	}
}

func (b *Bot) onMessage(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg.From == nil {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleStateMessage(ctx, msg)
}

func (b *Bot) onCallback(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery.Message == nil {
		return
	}
	b.handleCallback(ctx, upd.CallbackQuery)
}

// setupMenuButton кнопка меню чата открывает витрину как WebApp.
func (b *Bot) setupMenuButton() {
	if b.webAppURL == "" {
		return
	}
	params := tgbotapi.Params{}
	_ = params.AddInterface("menu_button", map[string]any{
		"type":    "web_app",
		"text":    "Магазин",
		"web_app": map[string]string{"url": b.webAppURL},
	})
	if _, err := b.api.MakeRequest("setChatMenuButton", params); err != nil {
		b.log.Warn("set menu button failed", "err", err)
	}
}
