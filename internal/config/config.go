package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config is everything the server reads from the environment. A .env
// file in the working directory is honored in development.
type Config struct {
	Addr        string // HTTP listen address
	DatabaseURL string // Postgres DSN for the player/result store
	Debug       bool   // verbose, human-readable logging
}

func Load() (Config, error) {
	// Missing .env is fine; the real environment wins either way.
	_ = godotenv.Load()

	cfg := Config{
		Addr:        getenv("PONG_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Debug:       os.Getenv("PONG_DEBUG") == "1",
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
