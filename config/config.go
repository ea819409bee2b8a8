package config

import (
	"log"
	"os"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// FIX session
	FixServer    string
	FixPort      string
	SenderCompID string
	TargetCompID string
	Username     string
	Password     string

	// Infrastructure
	PGHost      string
	PGPort      string
	PGUser      string
	PGPassword  string
	PGDatabase  string
	RedisHost   string
	RedisPort   string
	MetricsAddr string

	LogLevel string
}

// Load reads configuration from environment variables. Connection
// settings without a sensible default warn when unset instead of
// aborting; the process starts and fails where the value is used.
func Load() *Config {
	return &Config{
		FixServer:    warnEnv("FIX_SERVER"),
		FixPort:      warnEnv("FIX_PORT"),
		SenderCompID: warnEnv("SENDER_COMP_ID"),
		TargetCompID: warnEnv("TARGET_COMP_ID"),
		Username:     warnEnv("USERNAME"),
		Password:     warnEnv("PASSWORD"),

		PGHost:     warnEnv("PG_HOST"),
		PGPort:     getEnv("PG_PORT", "5432"),
		PGUser:     warnEnv("PG_USER"),
		PGPassword: warnEnv("PG_PASSWORD"),
		PGDatabase: warnEnv("PG_DATABASE"),

		RedisHost:   getEnv("REDIS_HOST", "localhost"),
		RedisPort:   getEnv("REDIS_PORT", "6379"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func warnEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Printf("[config] env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
