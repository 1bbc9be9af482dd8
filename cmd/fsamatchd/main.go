// Command fsamatchd serves fuzzy and near matches over a fsadict segment
// store as an HTTP JSON API.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"fsadict/internal/config"
	"fsadict/internal/segment"
	"fsadict/internal/service"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(getEnv("FSAMATCHD_LOG_LEVEL", "info")),
	}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if dataDir := os.Getenv("FSAMATCHD_STORE_ROOT"); dataDir != "" {
		cfg.Store.Root = dataDir
	}
	port := getEnv("FSAMATCHD_PORT", "8080")

	logger.Info("starting fsamatchd", "version", Version, "port", port, "store_root", cfg.Store.Root)

	dir := segment.NewDir(cfg.Store.Root)
	if err := dir.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize store directory: %v\n", err)
		os.Exit(1)
	}

	result, err := segment.Recover(dir, segment.RecoveryOptions{VerifySegmentChecksums: true, ManifestRetention: 2, Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "recovery failed: %v\n", err)
		os.Exit(1)
	}
	logger.Info("recovery complete", "generation", result.Generation, "segments", len(result.Manifest.Segments))

	deletions := segment.NewDeletionIndex()
	mgr := segment.NewManager(dir, deletions, result.Manifest, logger)
	matcher := service.NewMatcher(mgr, cfg.Matching)

	mux := http.NewServeMux()
	service.NewHTTPHandler(matcher, logger).RegisterRoutes(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "version": Version})
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":     "ready",
			"generation": fmt.Sprintf("%d", mgr.CurrentGeneration()),
		})
	})

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
