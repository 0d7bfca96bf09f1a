package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/brunobiangulo/orderdoc"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	envFile := flag.String("env", ".env", "Optional dotenv file")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading env file", "path", *envFile, "error", err)
	}

	cfg := orderdoc.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = orderdoc.LoadConfig(*configPath); err != nil {
			slog.Error("loading config", "error", err)
			os.Exit(1)
		}
	}

	// Override from environment variables.
	if v := os.Getenv("ORDERDOC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ORDERDOC_SPLIT_RATIO"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Error("invalid ORDERDOC_SPLIT_RATIO", "value", v)
			os.Exit(1)
		}
		cfg.Crop.SplitRatio = r
	}
	if v := os.Getenv("ORDERDOC_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Error("invalid ORDERDOC_CONCURRENCY", "value", v)
			os.Exit(1)
		}
		cfg.Concurrency = n
	}

	apiKey := os.Getenv("ORDERDOC_API_KEY")
	corsOrigins := os.Getenv("ORDERDOC_CORS_ORIGINS")
	uploadDir := os.Getenv("ORDERDOC_UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}

	engine, err := orderdoc.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	handler := newRouter(newHandler(engine, uploadDir), apiKey, corsOrigins)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 0, // batch crops of large files can be slow
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// newRouter registers the routes and wraps them in the middleware chain:
// recovery -> cors -> request id -> auth -> logging -> mux.
func newRouter(h *handler, apiKey, corsOrigins string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ingest", h.handleIngest)
	mux.HandleFunc("POST /parse", h.handleParse)
	mux.HandleFunc("POST /crop", h.handleCrop)
	mux.HandleFunc("POST /update", h.handleUpdate)
	mux.HandleFunc("GET /documents", h.handleListDocuments)
	mux.HandleFunc("GET /documents/{id}/items", h.handleLineItems)
	mux.HandleFunc("DELETE /documents/{id}", h.handleDeleteDocument)
	mux.HandleFunc("GET /skus", h.handleSKUTotals)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /health", h.handleHealth)

	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = requestIDMiddleware(handler)
	handler = corsMiddleware(corsOrigins, handler)
	return recoveryMiddleware(handler)
}
