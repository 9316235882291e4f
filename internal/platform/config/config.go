package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr               string
	DatabaseURL        string
	JWTSecret          string
	Environment        string
	TokenTTL           time.Duration
	LogLevel           slog.Level
	SeedOwnerName      string
	SeedOwnerEmail     string
	SeedOwnerPassword  string
	RunMigrations      bool
	RunSeed            bool
	MutationTimeout    time.Duration
	MaxBodyBytes       int64
	RateLimitPerMinute int
	MetricsEnabled     bool

	// IntegrityCheckInterval schedules a background scan of the stored
	// hierarchy; zero disables it.
	IntegrityCheckInterval time.Duration
}

// Load reads the environment. Values from a .env file in the working
// directory (or the file named by ENV_FILE) fill in variables that are not
// already set.
func Load() Config {
	loadDotEnv()
	return Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret"),
		Environment:        getEnv("APP_ENV", "development"),
		TokenTTL:           getEnvDuration("TOKEN_TTL", 12*time.Hour),
		LogLevel:           getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		SeedOwnerName:      getEnv("SEED_OWNER_NAME", "Owner"),
		SeedOwnerEmail:     getEnv("SEED_OWNER_EMAIL", ""),
		SeedOwnerPassword:  getEnv("SEED_OWNER_PASSWORD", ""),
		RunMigrations:      getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:            getEnvBool("RUN_SEED", true),
		MutationTimeout:    getEnvDuration("MUTATION_TIMEOUT", 5*time.Second),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),

		IntegrityCheckInterval: getEnvDuration("INTEGRITY_CHECK_INTERVAL", time.Hour),
	}
}

func loadDotEnv() {
	path := getEnv("ENV_FILE", ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("env file not loaded", "path", path, "error", err)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return fallback
	}
	return level
}

// InMemory reports whether the service runs without a database.
func (c Config) InMemory() bool {
	return strings.TrimSpace(c.DatabaseURL) == ""
}

func (c Config) Validate() error {
	if c.Environment == "production" {
		if c.InMemory() {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if strings.TrimSpace(c.JWTSecret) == "" || c.JWTSecret == "dev-secret" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if c.RunSeed && strings.TrimSpace(c.SeedOwnerPassword) == "" {
			return fmt.Errorf("SEED_OWNER_PASSWORD must be set or RUN_SEED disabled in production")
		}
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.MutationTimeout <= 0 {
		return fmt.Errorf("MUTATION_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.IntegrityCheckInterval < 0 {
		return fmt.Errorf("INTEGRITY_CHECK_INTERVAL must not be negative")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}
