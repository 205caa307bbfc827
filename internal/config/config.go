package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every runtime setting of the auth service. Values come from
// the environment, optionally seeded from a .env file in development.
type Config struct {
	Addr        string
	DatabaseURL string
	LogLevel    string

	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  string // e.g. "1h"
	RefreshTokenTTL string // e.g. "7d"

	FirebaseCredentials string
	FirebaseAPIKey      string

	// RedisAddr, when set, switches the token blacklist to Redis.
	RedisAddr     string
	RedisPassword string

	AMQPURL    string
	EmailQueue string

	ResetBaseURL string

	DBTimeout       time.Duration
	ProviderTimeout time.Duration

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// Load reads configuration from the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:        envDefault("JUSTPING_ADDR", ":8080"),
		DatabaseURL: os.Getenv("JUSTPING_PG_DSN"),
		LogLevel:    envDefault("LOG_LEVEL", "info"),

		JWTSecret:       os.Getenv("JUSTPING_JWT_SECRET"),
		JWTIssuer:       envDefault("JUSTPING_JWT_ISSUER", "justping"),
		AccessTokenTTL:  envDefault("JUSTPING_ACCESS_TOKEN_TTL", "1h"),
		RefreshTokenTTL: envDefault("JUSTPING_REFRESH_TOKEN_TTL", "7d"),

		FirebaseCredentials: os.Getenv("JUSTPING_FIREBASE_CREDENTIALS"),
		FirebaseAPIKey:      os.Getenv("JUSTPING_FIREBASE_API_KEY"),

		RedisAddr:     os.Getenv("JUSTPING_REDIS_ADDR"),
		RedisPassword: os.Getenv("JUSTPING_REDIS_PASSWORD"),

		AMQPURL:    os.Getenv("JUSTPING_AMQP_URL"),
		EmailQueue: envDefault("JUSTPING_EMAIL_QUEUE", "email.send"),

		ResetBaseURL: envDefault("JUSTPING_RESET_BASE_URL", "https://app.justping.io/reset-password"),

		DBTimeout:       envDuration("JUSTPING_DB_TIMEOUT", 5*time.Second),
		ProviderTimeout: envDuration("JUSTPING_PROVIDER_TIMEOUT", 10*time.Second),

		RateLimitPerSecond: envInt("JUSTPING_RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     envInt("JUSTPING_RATE_LIMIT_BURST", 20),
		MaxBodyBytes:       int64(envInt("JUSTPING_MAX_BODY_BYTES", 1<<20)),
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
