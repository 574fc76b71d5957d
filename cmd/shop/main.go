package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/temny-shop/internal/api"
	"github.com/Spok95/temny-shop/internal/auth"
	"github.com/Spok95/temny-shop/internal/bot"
	"github.com/Spok95/temny-shop/internal/config"
	"github.com/Spok95/temny-shop/internal/dialog"
	"github.com/Spok95/temny-shop/internal/infra/db"
	httpx "github.com/Spok95/temny-shop/internal/infra/http"
	"github.com/Spok95/temny-shop/internal/infra/logger"
	"github.com/Spok95/temny-shop/internal/infra/metrics"
	"github.com/Spok95/temny-shop/internal/infra/payments"
	"github.com/Spok95/temny-shop/internal/shop"
	"github.com/Spok95/temny-shop/internal/storage/sqlite"
	"github.com/Spok95/temny-shop/internal/store"
)

// dialogTTL брошенный на полпути диалог сбрасывается в idle.
const dialogTTL = 30 * time.Minute

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (*store.Store, error) {
	if cfg.Storage.Driver == config.DriverSQLite {
		log.Info("using sqlite storage", "path", cfg.Storage.SQLitePath)
		return sqlite.Open(ctx, cfg.Storage.SQLitePath, log)
	}

	if err := db.MigratePostgres(ctx, cfg.Postgres.DSN, log); err != nil {
		return nil, err
	}
	log.Info("migrations applied")

	pool, err := db.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		return nil, err
	}
	log.Info("db connected")
	return store.NewPostgres(pool), nil
}

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/example.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("storage init failed", "driver", cfg.Storage.Driver, "err", err)
		return
	}
	defer st.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	pay := payments.NewService(payments.Options{
		BaseURL:     cfg.Payments.BaseURL,
		ProviderURL: cfg.Payments.ProviderURL,
		TestMode:    cfg.Payments.TestMode,
	})
	if pay.TestMode() {
		log.Warn("payments test mode is on: /payments/pay credits balance without real payment")
	}
	svc := shop.NewService(st, pay, m, log)
	authSvc := auth.New(auth.Config{
		Login:             cfg.Admin.Login,
		PasswordHash:      cfg.Admin.PasswordHash,
		SessionTTL:        cfg.Admin.SessionTTL,
		JWTSecret:         cfg.Admin.JWTSecret,
		TokenTTL:          cfg.Admin.TokenTTL,
		AttemptsPerMinute: cfg.Admin.LoginAttempts,
	})

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Error("telegram init failed", "err", err)
		return
	}
	log.Info("telegram authorized", "username", botAPI.Self.UserName)

	b := bot.New(botAPI, log, svc, authSvc, dialog.NewRepo(dialogTTL), bot.Options{
		AdminChatID: cfg.Telegram.AdminChatID,
		WebAppURL:   cfg.Telegram.WebAppURL,
	})
	svc.SetNotifier(b)

	engine := httpx.NewEngine(log, m, cfg.Metrics.Enabled)
	api.NewHandler(svc, authSvc, log, api.Options{
		BotToken:        cfg.Telegram.Token,
		RequireInitData: cfg.HTTP.RequireInitData,
		WebhookSecret:   cfg.Payments.WebhookSecret,
		Currency:        cfg.Payments.Currency,
		IndexFile:       cfg.HTTP.IndexFile,
	}).Register(engine)
	srv := httpx.New(cfg.HTTP.Addr, engine)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server started", "addr", cfg.HTTP.Addr)
		return srv.Start()
	})
	g.Go(func() error {
		log.Info("bot started")
		return b.Run(gctx, cfg.Telegram.UpdateTimeout)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("shutdown with error", "err", err)
		return
	}
	log.Info("graceful shutdown complete")
}
