// Package config loads the quiz binaries' settings from the environment and
// builds the shared store and question supplier they describe.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/mcdev12/quizsync/go/internal/dbconfig"
)

const (
	StoreMemory = "memory"
	StoreNATS   = "nats"
	StoreRedis  = "redis"

	SourceBank     = "bank"
	SourcePostgres = "postgres"
)

type Config struct {
	Store        string
	NATSURL      string
	KVBucket     string
	KVTTL        time.Duration
	RedisURL     string
	RedisPrefix  string
	StoreRetries int

	QuestionSource string
	QuestionBank   string
	DB             dbconfig.Config

	PointsPerCorrect int
	RevealGrace      time.Duration

	Port           string
	JWTSecret      string
	AllowedOrigins []string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with defaults. A .env
// file is loaded first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Store:        strings.ToLower(getEnv("QUIZ_STORE", StoreMemory)),
		NATSURL:      getEnv("NATS_URL", nats.DefaultURL),
		KVBucket:     getEnv("QUIZ_KV_BUCKET", "QUIZ_SESSIONS"),
		KVTTL:        getEnvDuration("QUIZ_KV_TTL", 24*time.Hour),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisPrefix:  getEnv("QUIZ_REDIS_PREFIX", "quiz:"),
		StoreRetries: getEnvInt("QUIZ_STORE_RETRIES", 20),

		QuestionSource: strings.ToLower(getEnv("QUIZ_QUESTION_SOURCE", SourceBank)),
		QuestionBank:   getEnv("QUIZ_QUESTION_BANK", ""),
		DB:             dbconfig.NewConfigFromEnv(),

		PointsPerCorrect: getEnvInt("QUIZ_POINTS_PER_CORRECT", 100),
		RevealGrace:      getEnvDuration("QUIZ_REVEAL_GRACE", 3*time.Second),

		Port:           getEnv("PORT", "8081"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "*")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "pretty"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
func parseOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
