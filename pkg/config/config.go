package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	HTTPAddr       string
	MigrationsPath string

	// Hosted Postgres convenience:
	// - DATABASE_URL: runtime connection (often a pooler)
	// - DIRECT_URL: direct connection for migrations
	DatabaseURL string
	DirectURL   string

	DB DBConfig

	// StoreDriver selects the record store: "postgres" (default) or "memory".
	StoreDriver string
	// StoreTimeout bounds every store round trip made on behalf of one request.
	StoreTimeout time.Duration

	// SchoolTimezone defines "today" for trip-date checks.
	SchoolTimezone *time.Location

	Session SessionConfig
	Redis   RedisConfig

	// DriverScope is "all" or "assigned": whether drivers see every approved trip
	// or only trips using buses assigned to them.
	DriverScope string

	AllowedOrigins []string

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel         string
	MetricsNamespace string
}

type DBConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	// MaxConns caps the pool. Zero keeps the pgxpool default.
	MaxConns int32
}

type SessionConfig struct {
	Secret string
	TTL    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Channel receives booking workflow notifications. Empty Addr disables the sink.
	Channel string
}

func Load() Config {
	// Convenience for local dev: load variables from .env if present.
	_ = godotenv.Load()

	// Cloud Run sets PORT. Prefer it when HTTP_ADDR isn't explicitly set.
	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			httpAddr = ":" + port
		} else {
			httpAddr = ":8081"
		}
	}

	return Config{
		AppEnv:         env("APP_ENV", "dev"),
		HTTPAddr:       httpAddr,
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DirectURL:      os.Getenv("DIRECT_URL"),
		DB: DBConfig{
			Host:     env("DB_HOST", "localhost"),
			Port:     env("DB_PORT", "5432"),
			Name:     env("DB_NAME", "busbooking"),
			User:     env("DB_USER", "busbooking"),
			Password: env("DB_PASSWORD", "busbooking"),
			SSLMode:  env("DB_SSLMODE", "disable"),
			MaxConns: int32(envInt("DB_MAX_CONNS", 0)),
		},
		StoreDriver:    strings.ToLower(env("STORE_DRIVER", "postgres")),
		StoreTimeout:   envDuration("STORE_TIMEOUT", 5*time.Second),
		SchoolTimezone: envLocation("SCHOOL_TIMEZONE", time.UTC),
		Session: SessionConfig{
			Secret: os.Getenv("SESSION_SECRET"),
			TTL:    envDuration("SESSION_TTL", 12*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
			Channel:  env("NOTIFY_CHANNEL", "booking-events"),
		},
		DriverScope:      strings.ToLower(env("DRIVER_SCOPE", "all")),
		AllowedOrigins:   envList("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		RateLimitRPS:     envFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:   envInt("RATE_LIMIT_BURST", 20),
		LogLevel:         env("LOG_LEVEL", "info"),
		MetricsNamespace: env("METRICS_NAMESPACE", "busbooking"),
	}
}

func env(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func envLocation(key string, fallback *time.Location) *time.Location {
	name := os.Getenv(key)
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}

func envList(key, fallbackCSV string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallbackCSV
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
