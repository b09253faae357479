package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/docsmith-ai/docsmith/engine/embed"
	"github.com/docsmith-ai/docsmith/engine/project"
	"github.com/docsmith-ai/docsmith/engine/rag"
	"github.com/docsmith-ai/docsmith/engine/semantic"
	"github.com/docsmith-ai/docsmith/pkg/telemetry"
)

// buildDir is where fetched and processed documentation lives, one
// subdirectory per project slug.
func buildDir(slug string) string {
	return filepath.Join("build", slug)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newEmbedder(logger *slog.Logger) (*embed.Client, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("$OPENAI_API_KEY not set")
	}
	return embed.New(key, embed.DefaultOptions(), logger), nil
}

func newStore(logger *slog.Logger) (*semantic.Store, error) {
	return semantic.New(envOr("QDRANT_URL", "localhost:6334"), logger)
}

func newRAG(logger *slog.Logger) (*rag.Service, func(), error) {
	embedder, err := newEmbedder(logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := newStore(logger)
	if err != nil {
		return nil, nil, err
	}
	svc := rag.New(embedder, store, rag.DefaultOptions(), logger)
	return svc, func() { store.Close() }, nil
}

func newProjects(logger *slog.Logger) (*project.Store, func(), error) {
	driver, err := neo4j.NewDriverWithContext(
		envOr("DATABASE_URL", "neo4j://localhost:7687"),
		neo4j.BasicAuth(envOr("NEO4J_USER", "neo4j"), envOr("NEO4J_PASS", "password"), ""),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("neo4j driver: %w", err)
	}
	closeFn := func() {
		_ = driver.Close(context.Background())
	}
	return project.New(driver), closeFn, nil
}

func newTelemetry(logger *slog.Logger) *telemetry.Publisher {
	pub, err := telemetry.Connect(os.Getenv("NATS_URL"), logger)
	if err != nil {
		logger.Warn("telemetry unavailable", "err", err)
		pub, _ = telemetry.Connect("", logger)
	}
	return pub
}
