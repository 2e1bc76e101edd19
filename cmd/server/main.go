package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/park-reservation/internal/config"
	"github.com/iliyamo/park-reservation/internal/database"
	"github.com/iliyamo/park-reservation/internal/handler"
	"github.com/iliyamo/park-reservation/internal/logging"
	"github.com/iliyamo/park-reservation/internal/metrics"
	"github.com/iliyamo/park-reservation/internal/middleware"
	"github.com/iliyamo/park-reservation/internal/queue"
	"github.com/iliyamo/park-reservation/internal/repository"
	"github.com/iliyamo/park-reservation/internal/router"
	"github.com/iliyamo/park-reservation/internal/service"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		log.WithError(err).Fatal("load booking rules")
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if cfg.DBMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(ctx, db.DB)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("migrate schema")
		}
		log.Info("schema up to date")
	}

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var events service.Notifier
	if cfg.RabbitMQURL != "" {
		pub := queue.NewPublisher(cfg.RabbitMQURL, log)
		defer pub.Close()
		events = pub
		if cfg.ConsumerOn {
			go func() {
				if err := queue.StartEventConsumer(ctx, cfg.RabbitMQURL, queue.NotificationLog{Dir: cfg.EventLogDir}, log); err != nil {
					log.WithError(err).Error("event consumer stopped")
				}
			}()
		}
	} else {
		log.Info("RABBITMQ_URL not set; events disabled")
	}

	store := repository.NewStorage(db)
	reservations := service.NewReservationService(store, rules, events, log, nil)
	transfers := service.NewTransferService(store, rules, events, log, nil)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.CORS())
	e.Use(logging.RequestLogger(log))
	e.Use(metrics.Middleware())

	checks := map[string]handler.Check{"database": db.PingContext}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	router.RegisterRoutes(e, checks)
	router.RegisterAuth(e,
		handler.NewAuthHandler(repository.NewUserRepo(db), repository.NewTokenRepo(db), handler.AuthSettings{
			JWTSecret:  cfg.JWTSecret,
			AccessTTL:  time.Duration(cfg.AccessTTLMin) * time.Minute,
			RefreshTTL: time.Duration(cfg.RefreshTTLDays) * 24 * time.Hour,
			BcryptCost: cfg.BcryptCost,
		}, log),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
	)
	router.RegisterAvailability(e,
		handler.NewAvailabilityHandler(reservations, rules, log, nil),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log),
	)
	router.RegisterReservations(e,
		handler.NewReservationHandler(reservations, log),
		handler.NewTransferHandler(transfers, log),
		cfg.JWTSecret,
	)
	router.RegisterAdmin(e, handler.NewAdminHandler(reservations, log), cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		log.WithField("env", cfg.Env).Infof("listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
