package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Dosada05/tournament-registrations/utils"
	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	ServerPort   int
	JWTSecretKey string
	AdminKeyHash string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string

	NotifyWebhookURL   string
	CheckoutSessionTTL time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	adminKeyHash := os.Getenv("ADMIN_KEY_HASH")
	if adminKeyHash == "" {
		return nil, fmt.Errorf("ADMIN_KEY_HASH environment variable is not set")
	}

	portStr := utils.GetEnvOrDefault("SERVER_PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	ttlStr := utils.GetEnvOrDefault("CHECKOUT_SESSION_TTL", "45m")
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid CHECKOUT_SESSION_TTL environment variable: %w", err)
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		ServerPort:   port,
		JWTSecretKey: jwtKey,
		AdminKeyHash: adminKeyHash,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),

		NotifyWebhookURL:   os.Getenv("NOTIFY_WEBHOOK_URL"),
		CheckoutSessionTTL: ttl,
	}

	return cfg, nil
}
