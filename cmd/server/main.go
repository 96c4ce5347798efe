package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/stay-reservation/internal/config"
	"github.com/iliyamo/stay-reservation/internal/database"
	"github.com/iliyamo/stay-reservation/internal/handler"
	"github.com/iliyamo/stay-reservation/internal/lock"
	"github.com/iliyamo/stay-reservation/internal/mail"
	"github.com/iliyamo/stay-reservation/internal/media"
	"github.com/iliyamo/stay-reservation/internal/queue"
	"github.com/iliyamo/stay-reservation/internal/repository"
	"github.com/iliyamo/stay-reservation/internal/router"
	"github.com/iliyamo/stay-reservation/internal/service"
	"github.com/iliyamo/stay-reservation/internal/service/ports"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger := log.New("stay")
	logger.SetHeader(`{"time":"${time_rfc3339}","level":"${level}","prefix":"${prefix}"}`)
	logger.SetLevel(log.INFO)

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass,
		Host: cfg.DBHost, Port: cfg.DBPort,
		Name: cfg.DBName,
	})
	if err != nil {
		logger.Fatalj(log.JSON{"event": "db_connect_failed", "error": err.Error()})
	}
	defer db.Close()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	var locker ports.Locker
	if rdb != nil {
		defer rdb.Close()
		locker = lock.NewRedisLocker(cfg.Lock, rdb, logger)
	} else {
		logger.Warnj(log.JSON{"event": "redis_unavailable", "fallback": "in-process locks, no cache, no rate limit"})
		locker = lock.NewLocalLocker(cfg.Lock.WaitTimeout)
	}

	publisher := queue.NewPublisher(cfg.Queue, logger)
	defer publisher.Close()

	var mediaStore ports.MediaStore
	if cfg.Media.Bucket != "" {
		store, err := media.NewS3StoreFromEnv(ctx, cfg.Media)
		if err != nil {
			logger.Fatalj(log.JSON{"event": "media_init_failed", "error": err.Error()})
		}
		mediaStore = store
	}

	var sender queue.Sender = queue.LogSender{Logger: logger}
	if cfg.Mail.Host != "" {
		m, err := mail.NewMailer(cfg.Mail)
		if err != nil {
			logger.Fatalj(log.JSON{"event": "mail_init_failed", "error": err.Error()})
		}
		sender = m
	}
	go queue.StartNotificationConsumer(ctx, cfg.Queue, sender, logger)

	users := repository.NewUserRepo(db)
	resources := repository.NewResourceRepo(db)
	bookings := repository.NewBookingRepo(db)

	resourceSvc := service.NewResourceService(resources, mediaStore, logger)
	availability := service.NewAvailability(resources, bookings)
	bookingSvc := service.NewBookingService(bookings, resources, locker, publisher, mediaStore, users, logger)

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := log.JSON{
				"event":      "request",
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				fields["error"] = v.Error.Error()
			}
			logger.Infoj(fields)
			return nil
		},
	}))

	router.Register(e, router.Deps{
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
		Health:    handler.Health(db),
		Auth:      handler.NewAuthHandler(cfg, users),
		Resources: handler.NewResourceHandler(resourceSvc, availability),
		Bookings:  handler.NewBookingHandler(bookingSvc),
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Infoj(log.JSON{"event": "listening", "addr": addr, "env": cfg.Env})
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorj(log.JSON{"event": "server_failed", "error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorj(log.JSON{"event": "shutdown_failed", "error": err.Error()})
	}
}
