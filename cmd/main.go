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

	"github.com/Dosada05/tournament-registrations/config"
	"github.com/Dosada05/tournament-registrations/db"
	"github.com/Dosada05/tournament-registrations/handlers"
	"github.com/Dosada05/tournament-registrations/realtime"
	"github.com/Dosada05/tournament-registrations/repositories"
	api "github.com/Dosada05/tournament-registrations/routes"
	"github.com/Dosada05/tournament-registrations/services"
	"github.com/Dosada05/tournament-registrations/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-co-op/gocron/v2"
	_ "github.com/lib/pq"
)

const sessionSweepInterval = 5 * time.Minute // How often expired checkout sessions are swept

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

	// Хранилище скриншотов оплаты (Cloudflare R2, in-memory без конфигурации)
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
		uploader = storage.NewMemoryUploader("")
		logger.Warn("R2 is not configured, falling back to in-memory evidence store")
	}

	// Шина изменений и WebSocket Hub
	bus := realtime.NewBus()
	wsHub := realtime.NewHub()
	go wsHub.Run()
	busForward := wsHub.ForwardBusEvents(bus, realtime.TableRegistrations)
	defer bus.Unsubscribe(busForward)
	logger.Info("realtime bus and WebSocket hub started")

	// Исходящие оповещения
	var notifier services.Notifier
	if cfg.NotifyWebhookURL != "" {
		notifier = services.NewWebhookNotifier(cfg.NotifyWebhookURL)
	} else {
		notifier = services.NewNoopNotifier()
		logger.Warn("NOTIFY_WEBHOOK_URL is not set, status notifications disabled")
	}

	// Инициализация репозиториев
	registrationRepo := repositories.NewPostgresRegistrationRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	logger.Info("repositories initialized")

	// Инициализация сервисов
	authService := services.NewAuthService(cfg.AdminKeyHash, cfg.JWTSecretKey)
	registrationService := services.NewRegistrationService(registrationRepo, tournamentRepo)
	checkoutService := services.NewCheckoutService(
		registrationRepo,
		tournamentRepo,
		uploader,
		notifier,
		bus,
		logger,
		cfg.CheckoutSessionTTL,
	)
	moderationService := services.NewModerationService(
		registrationRepo,
		tournamentRepo,
		uploader,
		notifier,
		bus,
		logger,
	)
	logger.Info("services initialized")

	// Планировщик очистки простаивающих checkout-сессий
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		logger.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(sessionSweepInterval),
		gocron.NewTask(func() {
			checkoutService.SweepExpired()
		}),
	)
	if err != nil {
		logger.Error("failed to schedule session sweep", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error("failed to shut down scheduler", slog.Any("error", err))
		}
	}()
	logger.Info("checkout session sweeper started", slog.Duration("interval", sessionSweepInterval))

	// Инициализация обработчиков HTTP
	authHandler := handlers.NewAuthHandler(authService)
	registrationHandler := handlers.NewRegistrationHandler(checkoutService, registrationService)
	moderationHandler := handlers.NewModerationHandler(moderationService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		authHandler,
		registrationHandler,
		moderationHandler,
		webSocketHandler,
		[]byte(cfg.JWTSecretKey),
	)
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
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
