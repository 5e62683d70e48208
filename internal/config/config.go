package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"emperror.dev/errors"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cast"
)

// Config is centralized process configuration shared by the api, worker and
// pollctl binaries. Keep infra values here and pass typed config into builders.
type Config struct {
	Port string

	StoreDriver string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	JWTSecret  string
	AdminToken string

	GeminiAPIKey      string
	GeminiModel       string
	GeminiBaseURL     string
	GenerationTimeout time.Duration

	QuotaPerMinute int
	QuotaPerDay    int
	QuotaBackend   string
	QuotaFile      string
	RedisAddr      string

	RequireModerationForUserContent bool

	LogLevel string
	LogFile  string

	APIRateLimit float64
	APIRateBurst int
}

// DSN builds the postgres connection string from the DB_* variables.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

func Load() (Config, error) {
	cfg := Config{
		Port:        envString("PORT", "8080"),
		StoreDriver: strings.ToLower(envString("STORE_DRIVER", "postgres")),
		DBHost:      envString("DB_HOST", "localhost"),
		DBPort:      envString("DB_PORT", "5432"),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      os.Getenv("DB_NAME"),
		DBSSLMode:   envString("DB_SSLMODE", "disable"),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		AdminToken: os.Getenv("ADMIN_TOKEN"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   envString("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL: envString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),

		QuotaBackend: strings.ToLower(envString("QUOTA_BACKEND", "file")),
		QuotaFile:    envString("QUOTA_FILE", ".rate_limit.db"),
		RedisAddr:    envString("REDIS_ADDR", "localhost:6379"),

		LogLevel: envString("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),
	}

	var err error
	if cfg.GenerationTimeout, err = envDuration("GENERATION_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.QuotaPerMinute, err = envInt("QUOTA_PER_MINUTE", 15); err != nil {
		return Config{}, err
	}
	if cfg.QuotaPerDay, err = envInt("QUOTA_PER_DAY", 500); err != nil {
		return Config{}, err
	}
	if cfg.APIRateBurst, err = envInt("API_RATE_BURST", 20); err != nil {
		return Config{}, err
	}
	if cfg.APIRateLimit, err = envFloat("API_RATE_LIMIT", 10); err != nil {
		return Config{}, err
	}
	if cfg.RequireModerationForUserContent, err = envBool("REQUIRE_MODERATION_FOR_USER_CONTENT", false); err != nil {
		return Config{}, err
	}

	switch cfg.StoreDriver {
	case "postgres", "memory":
	default:
		return Config{}, errors.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	switch cfg.QuotaBackend {
	case "file", "redis":
	default:
		return Config{}, errors.Errorf("unknown QUOTA_BACKEND %q", cfg.QuotaBackend)
	}
	if cfg.QuotaPerMinute <= 0 || cfg.QuotaPerDay <= 0 {
		return Config{}, errors.New("quota limits must be positive")
	}

	return cfg, nil
}

func envString(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := cast.ToIntE(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", name)
	}
	return value, nil
}

func envFloat(name string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", name)
	}
	return value, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := cast.ToDurationE(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", name)
	}
	return value, nil
}

func envBool(name string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback, nil
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, errors.Errorf("parse %s: %q is not a boolean", name, raw)
	}
}
