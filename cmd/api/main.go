package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jeremyjsx/uploads/internal/config"
	"github.com/jeremyjsx/uploads/internal/fileupload"
	"github.com/jeremyjsx/uploads/internal/handlers"
	"github.com/jeremyjsx/uploads/internal/middleware"
	"github.com/jeremyjsx/uploads/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	backend, err := buildBackend(cfg)
	if err != nil {
		logger.Error("init storage backend", "error", err)
		os.Exit(1)
	}
	backends := fileupload.NewHolder(backend)
	logger.Info("storage backend ready",
		"class", providerName(cfg),
		"expires", backend.Expires(),
		"providers", storage.Names(),
	)

	uploadsHandler := handlers.NewUploadsHandler(backends, logger)
	mediaHandler := handlers.NewMediaHandler(backends, logger)
	requireAuth := middleware.Authenticate(cfg.APIKey, cfg.JWTSecret)

	uploadPrefix := "/" + strings.Trim(cfg.UploadPathPrefix, "/")
	mediaPrefix := "/" + strings.Trim(cfg.MediaPathPrefix, "/")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.Health(backends))
	mux.Handle("PUT "+uploadPrefix+"/{key}/{content_type}", requireAuth(uploadsHandler.Upload()))
	mux.HandleFunc("GET "+mediaPrefix+"/{path...}", mediaHandler.Serve())

	var handler http.Handler = mux
	handler = middleware.Recover(logger)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server started", "port", cfg.Port, "upload_prefix", uploadPrefix)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range signals {
		if sig == syscall.SIGHUP {
			reload(logger, backends)
			continue
		}
		break
	}

	logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}

// reload rebuilds the backend from fresh configuration. On failure the
// current backend stays in place.
func reload(logger *slog.Logger, backends *fileupload.Holder) {
	cfg, err := config.Reload()
	if err != nil {
		logger.Error("reload config", "error", err)
		return
	}
	backend, err := buildBackend(cfg)
	if err != nil {
		logger.Error("reload storage backend", "error", err)
		return
	}
	old := backends.Swap(backend)
	if closer, ok := old.Provider().(io.Closer); ok {
		// Requests may still hold the old backend.
		time.AfterFunc(time.Minute, func() {
			if err := closer.Close(); err != nil {
				logger.Warn("close previous storage provider", "error", err)
			}
		})
	}
	logger.Info("storage backend reloaded", "class", providerName(cfg), "expires", backend.Expires())
}

func buildBackend(cfg *config.Config) (*fileupload.Backend, error) {
	settings := fileupload.Settings{
		StorageClass:  cfg.StorageClass,
		StorageKwargs: cfg.StorageKwargs,
		KeyPrefix:     cfg.StoragePrefix,
		UploadPath:    cfg.UploadPathPrefix,
	}
	if cfg.StorageClass != "" {
		return fileupload.FromSettings(settings, nil)
	}
	fallback, err := storage.NewFileSystemStorage(cfg.MediaRoot, cfg.MediaURL)
	if err != nil {
		return nil, err
	}
	return fileupload.FromSettings(settings, fallback)
}

func providerName(cfg *config.Config) string {
	if cfg.StorageClass == "" {
		return storage.ProviderFileSystem
	}
	return cfg.StorageClass
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
