package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/event-registration-ledger/internal/catalog"
	"github.com/iliyamo/event-registration-ledger/internal/config"
	"github.com/iliyamo/event-registration-ledger/internal/database"
	"github.com/iliyamo/event-registration-ledger/internal/handler"
	"github.com/iliyamo/event-registration-ledger/internal/logging"
	"github.com/iliyamo/event-registration-ledger/internal/middleware"
	"github.com/iliyamo/event-registration-ledger/internal/queue"
	"github.com/iliyamo/event-registration-ledger/internal/repository"
	"github.com/iliyamo/event-registration-ledger/internal/router"
	"github.com/iliyamo/event-registration-ledger/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// a missing .env is fine; the environment may be set by the platform
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.IsProd())
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	dialect, err := database.ParseDialect(cfg.DBDriver)
	if err != nil {
		return err
	}
	db, err := database.Open(database.Options{
		Dialect: dialect,
		User:    cfg.DBUser,
		Pass:    cfg.DBPass,
		Host:    cfg.DBHost,
		Port:    cfg.DBPort,
		Name:    cfg.DBName,
		Path:    cfg.DBPath,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		return fmt.Errorf("redis config: %w", err)
	}
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		return fmt.Errorf("rate limit config: %w", err)
	}
	cacheCfg, err := config.LoadCatalogCacheConfig()
	if err != nil {
		return fmt.Errorf("catalog cache config: %w", err)
	}
	rdb := config.NewRedisClient(redisCfg)
	if rdb == nil {
		log.Warn("redis unavailable, rate limiting and catalog cache disabled", zap.String("addr", redisCfg.Address()))
	} else {
		defer rdb.Close()
	}

	var publisher service.EventPublisher
	publisherDone := make(chan struct{})
	if cfg.AMQPURL != "" {
		pub := queue.NewPublisher(cfg.AMQPURL, cfg.AMQPQueue, log.Named("publisher"))
		go func() {
			defer close(publisherDone)
			_ = pub.Run(ctx)
		}()
		publisher = pub
	} else {
		log.Info("AMQP_URL not set, registration events are not published")
		close(publisherDone)
	}

	events := catalog.NewCached(repository.NewEventRepo(db), rdb, cacheCfg, log.Named("catalog"))
	ledger := service.NewLedgerService(
		repository.NewRegistrationRepo(db, log.Named("store")),
		events,
		repository.NewFamilyRepo(db),
		publisher,
		log.Named("ledger"),
		service.WithCatalogTimeout(cfg.CatalogTimeout),
	)

	if cfg.AuditConsumerEnabled && cfg.AMQPURL != "" {
		consumer := queue.AuditConsumer{URL: cfg.AMQPURL, Queue: cfg.AMQPQueue, Dir: cfg.AuditLogDir, Log: log.Named("audit")}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = !cfg.IsProd()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLog(log.Named("http")))
	router.RegisterRoutes(e, db)
	router.RegisterLedger(e, handler.NewLedgerHandler(ledger, log.Named("handler")), cfg.Auth.JWTSecret,
		middleware.NewTokenBucket(rlCfg, rdb, log.Named("ratelimit")))

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("db", string(dialect)))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = e.Shutdown(shutdownCtx)
	// ctx is done, so the publisher is flushing what is still buffered
	<-publisherDone
	return err
}
