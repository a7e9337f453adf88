package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Poll     PollConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:5173)
}

// DatabaseConfig holds the optional PostgreSQL connection for the session archive.
// When URL is empty the server runs fully in-memory.
type DatabaseConfig struct {
	URL string
}

// PollConfig holds question timing bounds.
type PollConfig struct {
	DefaultTimeLimit int // seconds, used when the client sends none
	MinTimeLimit     int
	MaxTimeLimit     int
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Poll: PollConfig{
			DefaultTimeLimit: getEnvInt("POLL_DEFAULT_TIME_LIMIT_SEC", 60),
			MinTimeLimit:     getEnvInt("POLL_MIN_TIME_LIMIT_SEC", 10),
			MaxTimeLimit:     getEnvInt("POLL_MAX_TIME_LIMIT_SEC", 300),
		},
	}
	return cfg, nil
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
	}
	return fallback
}
