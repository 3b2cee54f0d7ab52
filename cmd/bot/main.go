package main // Entry point package

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/mymmrac/telego"
	"go.uber.org/zap"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/catalog"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/clock"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/config"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/database"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/dialog"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/handler"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/logger"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/notify"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/queue"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/repository"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/router"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/scheduler"
	queue_publisher "github.com/pervushinanatalya-dotcom/theatre-bot/internal/service"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/transport/telegram"
)

func main() {
	_ = godotenv.Load() // read .env when present; real env always wins

	cfg := config.Load() // load environment config

	zl, err := logger.New()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	loc, err := time.LoadLocation(cfg.DisplayTZ)
	if err != nil {
		zl.Fatal("load display timezone", zap.String("tz", cfg.DisplayTZ), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Params{
		User:         cfg.DBUser,
		Pass:         cfg.DBPass,
		Host:         cfg.DBHost,
		Port:         cfg.DBPort,
		Name:         cfg.DBName,
		MaxConns:     cfg.DBMaxConns,
		ConnLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		zl.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		zl.Fatal("run migrations", zap.Error(err))
	}

	clk := clock.System{}
	norm := clock.NewNormalizer(loc, clk)
	users := repository.NewUserRepo(db)
	resv := repository.NewReservationRepo(db)

	// Catalog search, wrapped in a Redis cache when Redis is reachable.
	var search catalog.Searcher = catalog.NewClient(cfg.CatalogBaseURL, norm, zl)
	if rdb := config.NewRedisClient(); rdb != nil {
		search = catalog.NewCachedSearcher(search, rdb, cfg.CatalogCacheTTL, zl)
		defer rdb.Close()
	} else {
		zl.Warn("redis unavailable, catalog cache disabled")
	}

	bot, err := telego.NewBot(cfg.BotToken)
	if err != nil {
		zl.Fatal("init telegram bot", zap.Error(err))
	}

	machine := dialog.NewMachine(dialog.NewSessionStore(), resv, search, norm, zl)
	notifier := notify.NewTelegramNotifier(bot, norm)

	sched := scheduler.New(resv, notifier, clk, cfg.PollInterval, queue_publisher.PublishReminderDispatched, zl)
	if err := sched.Start(); err != nil {
		zl.Fatal("start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	// Broker consumer writes dispatched-reminder events to logs/reminders.log.
	go func() {
		if err := queue.StartReminderConsumer(); err != nil {
			zl.Error("reminder consumer stopped", zap.Error(err))
		}
	}()

	// Admin surface: health check and venue stats.
	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, handler.NewAdminHandler(db, resv))
	go func() {
		addr := ":" + cfg.AdminPort
		zl.Info("admin server listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil {
			zl.Warn("admin server stopped", zap.Error(err))
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutCtx)
	}()

	transport := telegram.New(bot, machine, users, resv, norm, clk, cfg.ExportDir, zl)
	if err := transport.Run(ctx); err != nil && ctx.Err() == nil {
		zl.Fatal("telegram transport", zap.Error(err))
	}
	zl.Info("shutting down")
}
