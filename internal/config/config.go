package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Env         string
	LogLevel    string
	MetricsPort string

	DatabaseURL string
	RedisURL    string

	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	InviteCode string

	Session  SessionConfig
	Realtime RealtimeConfig
	Messages MessageConfig
}

type SessionConfig struct {
	RecheckInterval time.Duration
}

type RealtimeConfig struct {
	BacklogLimit     int
	SubscriberBuffer int
	MaxRetries       int
}

type MessageConfig struct {
	MaxLength     int
	RatePerSecond float64
	RateBurst     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MetricsPort: getEnv("METRICS_PORT", "9090"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		JWTSecret:        getEnvOrPanic("JWT_SECRET"),
		JWTAccessExpiry:  getDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		JWTRefreshExpiry: getDuration("JWT_REFRESH_EXPIRY", 168*time.Hour),

		InviteCode: getEnv("INVITE_CODE", "TF1"),

		Session: SessionConfig{
			RecheckInterval: getDuration("SESSION_RECHECK_INTERVAL", 30*time.Second),
		},
		Realtime: RealtimeConfig{
			BacklogLimit:     getInt("BACKLOG_LIMIT", 200),
			SubscriberBuffer: getInt("SUBSCRIBER_BUFFER", 200),
			MaxRetries:       getInt("REALTIME_MAX_RETRIES", 5),
		},
		Messages: MessageConfig{
			MaxLength:     getInt("MESSAGE_MAX_LENGTH", 2000),
			RatePerSecond: getFloat("MESSAGE_RATE_PER_SECOND", 2),
			RateBurst:     getInt("MESSAGE_RATE_BURST", 5),
		},
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesRedis reports whether live fan-out is shared across instances.
func (c *Config) UsesRedis() bool {
	return c.RedisURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvOrPanic(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		panic("required environment variable not set: " + key)
	}
	return value
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}
