package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"                      // optional .env loading for local runs
	"github.com/prometheus/client_golang/prometheus" // default registry for /metrics
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/referral-tracker/internal/config"
	"github.com/iliyamo/referral-tracker/internal/database"
	"github.com/iliyamo/referral-tracker/internal/handler"
	"github.com/iliyamo/referral-tracker/internal/kv"
	"github.com/iliyamo/referral-tracker/internal/logger"
	"github.com/iliyamo/referral-tracker/internal/metrics"
	"github.com/iliyamo/referral-tracker/internal/middleware"
	"github.com/iliyamo/referral-tracker/internal/queue"
	"github.com/iliyamo/referral-tracker/internal/repository"
	"github.com/iliyamo/referral-tracker/internal/router"
	"github.com/iliyamo/referral-tracker/internal/service"
	"github.com/iliyamo/referral-tracker/internal/utils"
)

// purgeInterval is how often expired rows are swept from the mysql backend.
const purgeInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env") // a missing file is fine outside local dev

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New("referral-tracker", cfg.LogLevel)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, rdb, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New(prometheus.DefaultRegisterer)

	publisher := queue.NewPublisher(cfg.RabbitURL, cfg.NotifyQueue, log)
	defer publisher.Close()
	go func() {
		err := queue.StartEmailConsumer(ctx, queue.ConsumerConfig{
			URL:    cfg.RabbitURL,
			Queue:  cfg.NotifyQueue,
			LogDir: cfg.NotifyLogDir,
		}, log)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("email consumer stopped", slog.String("error", err.Error()))
		}
	}()

	sessions := repository.NewSessionRepo(store, cfg.SessionTTL())
	accounts := service.NewAccounts(
		repository.NewUserRepo(store),
		sessions,
		repository.NewResetRepo(store, cfg.ResetTokenTTL),
		repository.NewInviteRepo(store),
		repository.NewReferralRepo(store),
		publisher,
		service.Options{AppURL: cfg.AppURL, BcryptCost: cfg.BcryptCost, Metrics: m, Log: log},
	)
	auth := middleware.NewSessionAuth(sessions, utils.NewSessionCookie(cfg.SessionSecret, cfg.SessionTTL()), cfg.SessionCookieName, log)

	e := router.New(router.Deps{
		Auth:      handler.NewAuthHandler(accounts, auth, log),
		Dashboard: handler.NewDashboardHandler(accounts, log),
		Sessions:  auth,
		Store:     store,
		Metrics:   m,
		Gatherer:  prometheus.DefaultGatherer,
		Redis:     rdb,
		RateLimit: cfg.RateLimit,
		Cache:     cfg.Cache,
	})
	e.HidePort = true

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env), slog.String("kv_backend", cfg.KVBackend))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// storeWithPing is what main needs from a backend: the data layer plus a
// health probe.
type storeWithPing interface {
	kv.Store
	handler.Pinger
}

// openStore connects the configured KV backend. The Redis client is also
// returned for the rate limiter and response cache; with the mysql
// backend it is best effort and may be nil.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (storeWithPing, *redis.Client, func(), error) {
	switch cfg.KVBackend {
	case config.BackendMySQL:
		db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, nil, nil, err
		}
		store := kv.NewMySQLStore(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("migrate kv tables: %w", err)
		}
		go purgeExpired(ctx, store, log)

		rdb, err := config.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, rate limit and cache disabled", slog.String("error", err.Error()))
			rdb = nil
		}
		return store, rdb, func() {
			if rdb != nil {
				_ = rdb.Close()
			}
			_ = db.Close()
		}, nil
	default:
		rdb, err := config.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		return kv.NewRedisStore(rdb), rdb, func() { _ = rdb.Close() }, nil
	}
}

func purgeExpired(ctx context.Context, store *kv.MySQLStore, log *slog.Logger) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.Purge(ctx)
			if err != nil {
				log.Warn("purge expired kv entries", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				log.Debug("purged expired kv entries", slog.Int64("rows", n))
			}
		}
	}
}
