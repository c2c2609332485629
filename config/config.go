/*
Package config loads server configuration from the environment.

A .env file is loaded when present (development convenience); real
environments set variables directly. Flags in cmd/server override
whatever the environment provides.
*/
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the server configuration.
type Config struct {
	Port           int
	DBPath         string
	MaxUploadBytes int64
	MaxUploadRows  int
}

// Load reads configuration from the environment, preloading .env if
// one exists.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	return Config{
		Port:           getEnvInt("PORT", 8080),
		DBPath:         getEnv("DB_PATH", "commission.db"),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 32<<20),
		MaxUploadRows:  getEnvInt("MAX_UPLOAD_ROWS", 100_000),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Ignoring non-numeric %s=%q", key, v)
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Printf("Ignoring non-numeric %s=%q", key, v)
	}
	return fallback
}
