package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/subosito/gotenv"

	"github.com/Spok95/slip-bot/internal/bot"
	"github.com/Spok95/slip-bot/internal/config"
	"github.com/Spok95/slip-bot/internal/dialog"
	"github.com/Spok95/slip-bot/internal/domain/users"
	"github.com/Spok95/slip-bot/internal/infra/db"
	httpx "github.com/Spok95/slip-bot/internal/infra/http"
	"github.com/Spok95/slip-bot/internal/infra/logger"
	"github.com/Spok95/slip-bot/internal/janitor"
	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/session"
	"github.com/Spok95/slip-bot/internal/slip"
	"github.com/Spok95/slip-bot/internal/slipstore"
	"github.com/Spok95/slip-bot/internal/slipstore/transition"
	"github.com/Spok95/slip-bot/internal/wizard"
	"github.com/Spok95/slip-bot/migrations"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(sqlDB, ".")
}

func main() {
	_ = gotenv.Load()

	defPath := os.Getenv("SLIPBOT_CONFIG")
	if defPath == "" {
		defPath = "config/example.yaml"
	}
	cfgPath := flag.String("config", defPath, "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)
	if err := run(cfg, log); err != nil {
		log.Error("slipbot stopped", "err", err)
		os.Exit(1)
	}
	log.Info("graceful shutdown complete")
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		return err
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("db connected")

	pages, err := transition.Open(cfg.TransitionCache.Path)
	if err != nil {
		return err
	}
	defer func() { _ = pages.Close() }()

	lab := labapi.New(labapi.Options{
		BaseURL:       cfg.LabAPI.BaseURL,
		Timeout:       cfg.LabAPI.Timeout,
		RatePerSecond: cfg.LabAPI.RatePerSecond,
		Burst:         cfg.LabAPI.Burst,
		Lang:          cfg.App.Lang,
	}, log)
	userRepo := users.NewRepo(pool)
	states := dialog.NewRepo(pool)
	slips := slipstore.New(slipstore.NewPostgres(pool), log)

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, slips, pages, log)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return err
	}
	log.Info("telegram authorized", "username", api.Self.UserName)

	b := bot.New(api, log, bot.Deps{
		Users:       userRepo,
		Sessions:    session.NewResolver(userRepo, session.ClientProfiles{Client: lab}, log),
		States:      states,
		Lab:         lab,
		Slips:       slips,
		Pages:       pages,
		Extractions: slip.NewExtractionCache(),
		Wizard: wizard.Options{
			Debounce:        cfg.Wizard.Debounce,
			ArchDelay:       cfg.Wizard.ArchDelay,
			ProductsPerPage: cfg.Wizard.ProductsPerPage,
		},
		AdminChat: cfg.Telegram.AdminChatID,
	})

	jan := janitor.New(states, pages, b, cfg.Wizard.SessionTTL, log)
	if err := jan.Start(ctx); err != nil {
		return err
	}
	defer jan.Stop()

	if err := b.Run(ctx, cfg.Telegram.PollTimeout); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("bot stopped", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
