// Package main runs the registration bot: Telegram polling, the timer worker
// and the admin dashboard, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/homeconf/regbot/config"
	"github.com/homeconf/regbot/internal/actionlog"
	"github.com/homeconf/regbot/internal/archive"
	"github.com/homeconf/regbot/internal/auth"
	"github.com/homeconf/regbot/internal/bot"
	"github.com/homeconf/regbot/internal/dashboard"
	"github.com/homeconf/regbot/internal/events"
	"github.com/homeconf/regbot/internal/lottery"
	"github.com/homeconf/regbot/internal/middleware"
	"github.com/homeconf/regbot/internal/registrations"
	"github.com/homeconf/regbot/internal/speakers"
	"github.com/homeconf/regbot/internal/worker"
	"github.com/homeconf/regbot/pkg/database"
	"github.com/homeconf/regbot/pkg/redis"
	"github.com/homeconf/regbot/pkg/scheduler"
	"github.com/homeconf/regbot/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	logger := newLogger(cfg != nil && cfg.Bot.Debug)
	defer logger.Sync()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	api, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		logger.Fatal("telegram", zap.Error(err))
	}
	api.Debug = cfg.Bot.Debug
	logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName), zap.Int64("bot_id", api.Self.ID))

	var archiver lottery.ResultArchiver
	if cfg.AWS.ResultsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.ResultsBucket,
			Endpoint:        cfg.AWS.Endpoint,
		}, logger)
		if err != nil {
			logger.Warn("result archive disabled", zap.Error(err))
		} else {
			archiver = archive.New(s3Client, logger)
		}
	}

	eventRepo := events.NewRepository(pool)
	registrationRepo := registrations.NewRepository(pool)
	speakerRepo := speakers.NewRepository(pool)
	actionRepo := actionlog.NewRepository(pool)
	timers := scheduler.NewScheduler(rdb.Client, time.Duration(cfg.Scheduler.PollMillis)*time.Millisecond, logger)

	svc := lottery.NewService(lottery.Deps{
		Events:                      eventRepo,
		Registrations:               registrationRepo,
		Speakers:                    speakerRepo,
		Actions:                     actionlog.NewRecorder(actionRepo, rdb.Client, logger),
		Oracle:                      bot.NewMembership(api, api.Self.ID),
		Notifier:                    bot.NewMessenger(api),
		Scheduler:                   timers,
		Archiver:                    archiver,
		AdminIDs:                    cfg.Bot.AdminIDs,
		DefaultWaitlistTimeoutHours: cfg.Bot.WaitlistTimeoutHours,
	}, logger)

	if err := svc.Recover(ctx); err != nil {
		logger.Fatal("recover deadlines", zap.Error(err))
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	go worker.NewDispatcher(svc, logger).Run(runCtx, timers)

	hub := dashboard.NewHub(logger)
	if err := actionlog.Subscribe(runCtx, rdb.Client, logger, hub.BroadcastAction); err != nil {
		logger.Warn("live dashboard feed disabled", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Bot.Timezone)
	if err != nil {
		logger.Warn("unknown display timezone, using UTC", zap.String("tz", cfg.Bot.Timezone))
		loc = time.UTC
	}
	go bot.New(api, svc, loc, logger).Run(runCtx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger, "/health"))
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	dashboard.NewHandler(svc, registrationRepo, speakerRepo, actionRepo, hub, logger).Routes(router, jwtService, svc.IsAdmin)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("dashboard listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(debug bool) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, _ := config.Build()
	return logger
}
