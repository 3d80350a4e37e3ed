package config

import (
	"errors"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/jeremyjsx/uploads/internal/storage"
)

type Config struct {
	Port      string
	LogLevel  string
	APIKey    string
	JWTSecret string

	StorageClass  string
	StorageKwargs storage.Kwargs
	StoragePrefix string

	UploadPathPrefix string

	// Default filesystem provider, used when StorageClass is empty.
	MediaRoot       string
	MediaURL        string
	MediaPathPrefix string
}

var ErrNoCredentials = errors.New("API_KEY or JWT_SECRET is required")

// Load reads .env without overriding variables already set in the environment.
func Load() (*Config, error) {
	return load(godotenv.Load)
}

// Reload re-reads .env and lets its values replace the ones loaded earlier, so
// edits made while the process runs take effect.
func Reload() (*Config, error) {
	return load(godotenv.Overload)
}

func load(loadEnv func(filenames ...string) error, filenames ...string) (*Config, error) {
	if err := loadEnv(filenames...); err != nil {
		slog.Default().Warn("loading .env failed", "error", err)
	}

	kwargs, err := storage.ParseKwargs(os.Getenv("STORAGE_KWARGS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		APIKey:    getEnv("API_KEY", ""),
		JWTSecret: getEnv("JWT_SECRET", ""),

		StorageClass:  getEnv("STORAGE_CLASS", ""),
		StorageKwargs: kwargs,
		StoragePrefix: getEnv("STORAGE_PREFIX", "submissions_attachments"),

		UploadPathPrefix: getEnv("UPLOAD_PATH_PREFIX", "/fileupload/storage"),

		MediaRoot:       getEnv("MEDIA_ROOT", "media"),
		MediaURL:        getEnv("MEDIA_URL", "/media/"),
		MediaPathPrefix: getEnv("MEDIA_PATH_PREFIX", "/media"),
	}
	if cfg.APIKey == "" && cfg.JWTSecret == "" {
		return nil, ErrNoCredentials
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
