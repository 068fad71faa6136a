package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stream-boost-bot/config"
	"stream-boost-bot/internal/admin"
	"stream-boost-bot/internal/bot"
	"stream-boost-bot/internal/conversation"
	"stream-boost-bot/internal/db"
	"stream-boost-bot/internal/ledger"
	"stream-boost-bot/internal/logger"
	"stream-boost-bot/internal/pricing"
	"stream-boost-bot/internal/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("Не удалось создать логгер: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("bot stopped", zap.Error(err))
	}
	zl.Info("bot stopped")
}

func run(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	gdb, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(gdb) }()
	if err := db.Migrate(gdb); err != nil {
		return err
	}

	admins := db.NewAdmins(gdb)
	users := db.NewUsers(gdb)
	orders := db.NewOrders(gdb)
	payments := db.NewPayments(gdb)
	settings := db.NewSettings(gdb)
	if err := admins.Seed(ctx, cfg.AdminIDs); err != nil {
		return err
	}
	keepAlive := services.NewKeepAlive(gdb, settings, log)
	if err := keepAlive.MarkRestart(ctx); err != nil {
		log.Warn("last_restart not stored", zap.Error(err))
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return err
	}
	log.Info("authorized", zap.String("account", api.Self.UserName))

	sender := bot.NewSender(api, log)
	notifier := logger.NewNotifier(sender, admins, log)
	l := ledger.New(gdb)

	gateway := services.NewCryptoBot(cfg.CryptoBotAPIURL, cfg.CryptoBotToken, "https://t.me/"+api.Self.UserName, cfg.GatewayTimeout)
	rates := services.NewRates(cfg.RateAPIURL, cfg.GatewayTimeout, settings, log)
	if _, err := rates.Refresh(ctx); err != nil {
		log.Warn("initial rate refresh failed", zap.Error(err))
	}
	reconciler := services.NewReconciler(payments, gateway, l, sender, cfg.GatewayTimeout, log)

	sessions := conversation.NewStore(cfg.SessionTTL)
	engine := conversation.NewEngine(conversation.Deps{
		Catalog:  pricing.DefaultCatalog(),
		Checkout: services.NewCheckout(l, orders),
		TopUps:   services.NewTopUps(gateway, rates, payments, log),
		Accounts: services.NewAccounts(users, orders),
		Payments: reconciler,
		Sessions: sessions,
		Location: loc,
		MinTopUp: cfg.MinTopUpAmount(),
		Log:      log,
	})
	backups := admin.NewBackups(gdb, cfg.DatabaseURL, cfg.BackupDir, log)
	panel := admin.NewHandler(admins, users, orders, payments, l, backups, log)
	tg := bot.New(api, sender, engine, panel, notifier, log)

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{log.Sugar()}),
		cron.Recover(cronLogger{log.Sugar()}),
	))
	jobs := []struct {
		name     string
		schedule string
		fn       func(ctx context.Context) error
	}{
		{"reconcile", every(cfg.PaymentCheckInterval), func(ctx context.Context) error {
			_, err := reconciler.RunCycle(ctx)
			return err
		}},
		{"rates", every(cfg.RateUpdateInterval), func(ctx context.Context) error {
			_, err := rates.Refresh(ctx)
			return err
		}},
		{"keepalive", every(cfg.KeepAliveInterval), keepAlive.Run},
		{"sessions", every(time.Minute), func(context.Context) error {
			if n := sessions.EvictIdle(); n > 0 {
				log.Debug("idle sessions evicted", zap.Int("count", n))
			}
			return nil
		}},
		{"backup", "0 3 * * *", backups.AutoBackup},
	}
	for _, j := range jobs {
		if _, err := c.AddFunc(j.schedule, func() {
			defer notifier.Recover("cron " + j.name)
			if err := j.fn(ctx); err != nil {
				log.Error("cron job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := db.Ping(req.Context(), gdb); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/cryptobot/webhook", services.WebhookHandler(cfg.CryptoBotToken, reconciler, notifier, log))
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tg.Run(gctx)
	})
	g.Go(func() error {
		log.Info("http server started", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		c.Start()
		<-gctx.Done()
		<-c.Stop().Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// cronLogger пишет события cron в zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
