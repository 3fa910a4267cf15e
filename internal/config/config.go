// Package config centralizes the broker's environment-variable
// configuration, grounded on the teacher's cmd/main.go getEnv/getEnvInt
// helper pattern.
package config

import (
	"os"
	"strconv"
)

// Config holds every environment-tunable broker setting (spec §6).
type Config struct {
	JWTSecretKey         string
	JWTExpirationSeconds int
	Port                 string
	RequireToken         bool
	MailboxCapacity      int
	StaticPasswordHash   string
	LogLevel             string
	LogPretty            bool
	RedisEnabled         bool
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	AuditDSN             string
	StatsLogCron         string
}

// Load reads configuration from the environment, applying the defaults
// named in spec §6. JWTSecretKey defaults to a documented-insecure dev
// constant: operators MUST override JWT_SECRET_KEY in any deployment
// that isn't purely local.
func Load() Config {
	return Config{
		JWTSecretKey:         getEnv("JWT_SECRET_KEY", "dev-insecure-shared-secret-change-me"),
		JWTExpirationSeconds: getEnvInt("JWT_EXPIRATION_SECONDS", 3600),
		Port:                 getEnv("WS_PORT", "8081"),
		RequireToken:         getEnvBool("WS_REQUIRE_TOKEN", false),
		MailboxCapacity:      getEnvInt("WS_MAILBOX_CAPACITY", 256),
		StaticPasswordHash:   getEnv("BROKER_STATIC_PASSWORD_HASH", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogPretty:            getEnvBool("LOG_PRETTY", false),
		RedisEnabled:         getEnvBool("BROKER_REDIS_ENABLED", false),
		RedisAddr:            getEnv("BROKER_REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("BROKER_REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("BROKER_REDIS_DB", 0),
		AuditDSN:             getEnv("BROKER_AUDIT_DSN", ""),
		StatsLogCron:         getEnv("BROKER_STATS_CRON", "@every 1m"),
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
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
