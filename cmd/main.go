package main

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

	"github.com/DiFlector/kgb-pulse/config"
	"github.com/DiFlector/kgb-pulse/db"
	"github.com/DiFlector/kgb-pulse/handlers"
	appMiddleware "github.com/DiFlector/kgb-pulse/middleware"
	"github.com/DiFlector/kgb-pulse/models"
	"github.com/DiFlector/kgb-pulse/protocols"
	"github.com/DiFlector/kgb-pulse/repositories"
	api "github.com/DiFlector/kgb-pulse/routes"
	"github.com/DiFlector/kgb-pulse/services"
	"github.com/DiFlector/kgb-pulse/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Публикация снапшотов протоколов в Cloudflare R2. Без настроенного R2
	// сервис работает, протоколы остаются только в базе.
	var uploader storage.FileUploader
	if cfg.R2AccountID != "" {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("R2 is not configured, protocol snapshots will not be published")
	}

	// Инициализация WebSocket Hub
	wsHub := protocols.NewHub()
	go wsHub.Run()
	logger.Info("WebSocket Hub started")

	// Инициализация репозиториев
	athleteRepo := repositories.NewPostgresAthleteRepository(dbConn)
	eventRepo := repositories.NewPostgresEventRepository(dbConn)
	registrationRepo := repositories.NewPostgresRegistrationRepository(dbConn)
	crewRepo := repositories.NewPostgresCrewRepository(dbConn)
	protocolRepo := repositories.NewPostgresProtocolRepository(dbConn)
	logger.Info("Repositories initialized")

	boatConfig := models.DefaultBoatClassConfig()

	// Инициализация сервисов
	costService := services.NewCostService(dbConn, nil, eventRepo, registrationRepo, crewRepo, boatConfig, logger)
	crewService := services.NewCrewService(
		dbConn,
		crewRepo,
		registrationRepo,
		eventRepo,
		costService,
		boatConfig,
		cfg.MaxMergedCrewSize,
		logger,
	)
	registrationService := services.NewRegistrationService(
		registrationRepo,
		athleteRepo,
		eventRepo,
		crewService,
		costService,
		boatConfig,
		logger,
	)
	protocolService := services.NewProtocolService(
		protocolRepo,
		registrationRepo,
		athleteRepo,
		crewRepo,
		eventRepo,
		protocols.NewLaneDrawGenerator(),
		wsHub,
		uploader,
		boatConfig,
		logger,
	)
	logger.Info("Services initialized")

	// Инициализация обработчиков HTTP
	registrationHandler := handlers.NewRegistrationHandler(registrationService, costService)
	crewHandler := handlers.NewCrewHandler(crewService)
	protocolHandler := handlers.NewProtocolHandler(protocolService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	authenticator := appMiddleware.NewAuthenticator(cfg.JWTSecretKey)
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		authenticator,
		registrationHandler,
		crewHandler,
		protocolHandler,
		webSocketHandler,
	)
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
