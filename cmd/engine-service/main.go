package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-signal-engine/internal/engine/config"
	"golang-signal-engine/internal/engine/delivery/consumer"
	delivery "golang-signal-engine/internal/engine/delivery/http"
	"golang-signal-engine/internal/engine/repository"
	"golang-signal-engine/internal/engine/service"
	"golang-signal-engine/pkg/logger"
	"golang-signal-engine/pkg/postgres"
	"golang-signal-engine/pkg/redis"
	"golang-signal-engine/pkg/telegram"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the signal and decision engine",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Engine Service", logger.Field("name", cfg.App.Name))

	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	redisCfg := redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	redisClient, err := redis.NewClient(redisCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	var telegramNotifier telegram.Notifier
	if cfg.Telegram.Enabled {
		telegramNotifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MessagesPerMinute)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
		}
	}

	// Repositories
	featureRepo := repository.NewFeatureSnapshotRepository(db.DB)
	signalRepo := repository.NewSignalRepository(db.DB)
	decisionRepo := repository.NewDecisionRepository(db.DB)
	barRepo := repository.NewBarRepository(db.DB)
	evalRepo := repository.NewSignalEvalRepository(db.DB)

	// Services
	publisher := service.NewRedisPublisher(redisClient, cfg.Redis.StreamMaxLen)
	notifier := service.NewDecisionNotifier(appLogger, telegramNotifier)
	generator := service.NewSignalGenerator(&cfg.Engine, appLogger, featureRepo, signalRepo, publisher)
	engine := service.NewDecisionEngine(&cfg.Engine, appLogger, signalRepo, decisionRepo, publisher, notifier)
	evaluator := service.NewSignalEvaluator(&cfg.Engine, appLogger, signalRepo, barRepo, evalRepo)

	runner := service.NewRunner(&cfg.Engine, appLogger, generator, engine, evaluator)
	if err := runner.Start(ctx); err != nil {
		appLogger.Fatal("Failed to start runner", logger.ErrorField(err))
	}

	signalConsumer := consumer.NewSignalConsumer(redisClient.Client, engine, appLogger)
	signalConsumer.Start(ctx)

	// HTTP API
	e := echo.New()
	e.HideBanner = true

	engineHandler := delivery.NewEngineHandler(runner, signalRepo, decisionRepo, appLogger)
	apiV1 := e.Group("/api/v1")
	engineGroup := apiV1.Group("/engine")
	engineHandler.RegisterRoutes(engineGroup)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop()
		}
	}()

	<-ctx.Done()

	appLogger.Info("Shutting down server...")
	signalConsumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Server exiting")
}

func main() {
	rootCmd := &cobra.Command{Use: "engine-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-engine.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing engine-service CLI: %s\n", err)
		os.Exit(1)
	}
}
