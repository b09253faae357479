// Package main implements the Docsmith API server: the widget endpoints
// (project info, search, streamed answers), the ChatGPT plugin search, and
// signed-URL login links.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/docsmith-ai/docsmith/engine/embed"
	"github.com/docsmith-ai/docsmith/engine/project"
	"github.com/docsmith-ai/docsmith/engine/rag"
	"github.com/docsmith-ai/docsmith/engine/semantic"
	"github.com/docsmith-ai/docsmith/pkg/metrics"
	"github.com/docsmith-ai/docsmith/pkg/mid"
	"github.com/docsmith-ai/docsmith/pkg/signed"
	"github.com/docsmith-ai/docsmith/pkg/telemetry"
)

// Config holds all environment-based configuration.
type Config struct {
	Port        string
	AppKey      string
	AppURL      string
	OpenAIKey   string
	QdrantURL   string
	DatabaseURL string
	Neo4jUser   string
	Neo4jPass   string
	NatsURL     string
	CORSOrigin  string
}

func loadConfig() (Config, error) {
	cfg := Config{
		Port:        envOr("PORT", "8000"),
		AppKey:      os.Getenv("APP_KEY"),
		AppURL:      os.Getenv("APP_URL"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		QdrantURL:   os.Getenv("QDRANT_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Neo4jUser:   envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:   envOr("NEO4J_PASS", "password"),
		NatsURL:     os.Getenv("NATS_URL"),
		CORSOrigin:  envOr("CORS_ORIGIN", "*"),
	}
	for key, val := range map[string]string{
		"APP_KEY":        cfg.AppKey,
		"APP_URL":        cfg.AppURL,
		"OPENAI_API_KEY": cfg.OpenAIKey,
		"QDRANT_URL":     cfg.QdrantURL,
		"DATABASE_URL":   cfg.DatabaseURL,
	} {
		if val == "" {
			return cfg, fmt.Errorf("$%s not set", key)
		}
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Qdrant ---
	store, err := semantic.New(cfg.QdrantURL, logger)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	// --- Connect to Neo4j ---
	driver, err := neo4j.NewDriverWithContext(cfg.DatabaseURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	projects := project.New(driver)

	// --- Telemetry ---
	events, err := telemetry.Connect(cfg.NatsURL, logger)
	if err != nil {
		return fmt.Errorf("telemetry connect: %w", err)
	}
	defer events.Close()

	// --- Build services ---
	embedder := embed.New(cfg.OpenAIKey, embed.DefaultOptions(), logger)
	ragSvc := rag.New(embedder, store, rag.DefaultOptions(), logger)
	signer := signed.New(cfg.AppKey, cfg.AppURL)
	registry := metrics.New()

	srv := newServer(serverDeps{
		rag:       ragSvc,
		projects:  projects,
		signer:    signer,
		telemetry: events,
		metrics:   registry,
		logger:    logger,
	})

	handler := mid.Chain(srv,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("docsmith-api"),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming responses manage their own lifetime
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
