// Package ingest walks a project's build directory of parsed documents,
// embeds their sections, and upserts the resulting points into the vector
// store. Files are processed sequentially; parallelism lives inside the
// embedding client and the store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docsmith-ai/docsmith/engine/domain"
	"github.com/docsmith-ai/docsmith/pkg/fn"
)

// DocumentEmbedder turns a parsed document into vector points.
type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, doc domain.Document) ([]domain.Point, error)
}

// PointUpserter writes points into a collection.
type PointUpserter interface {
	Upsert(ctx context.Context, collection string, points []domain.Point) error
}

// Deps holds the external dependencies of the pipeline.
type Deps struct {
	Embedder DocumentEmbedder
	Store    PointUpserter
	// OnDocument, when set, is called after each successfully ingested
	// document, with the number of points written.
	OnDocument func(doc domain.Document, points int)
	Logger     *slog.Logger
}

// Stats summarizes one ingestion run.
type Stats struct {
	Files   int
	Points  int
	Skipped int
}

// LoadDocument reads a parsed Document from a JSON file.
func LoadDocument(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("ingest: read %s: %w", path, err)
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Document{}, fmt.Errorf("ingest: decode %s: %w", path, err)
	}
	return doc, nil
}

// newDocumentStage builds the per-document pipeline: validate → embed → store.
func newDocumentStage(deps Deps, collection string) fn.Stage[domain.Document, int] {
	validate := fn.TracedStage("ingest.validate", func(_ context.Context, doc domain.Document) fn.Result[domain.Document] {
		if err := domain.ValidateDocument(doc); err != nil {
			return fn.Err[domain.Document](err)
		}
		return fn.Ok(doc)
	})

	embedStage := fn.TracedStage("ingest.embed", func(ctx context.Context, doc domain.Document) fn.Result[[]domain.Point] {
		return fn.FromPair(deps.Embedder.EmbedDocument(ctx, doc))
	})

	store := fn.TracedStage("ingest.store", func(ctx context.Context, points []domain.Point) fn.Result[int] {
		if err := deps.Store.Upsert(ctx, collection, points); err != nil {
			return fn.Err[int](err)
		}
		return fn.Ok(len(points))
	})

	return fn.Then(fn.Then(validate, embedStage), store)
}

// Run ingests every document file under dir into the collection. Files whose
// documents have no sections are skipped entirely. The walk is sequential
// and stops at the first failure.
func Run(ctx context.Context, deps Deps, collection, dir string) (Stats, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	stage := newDocumentStage(deps, collection)
	var stats Stats

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		doc, err := LoadDocument(path)
		if err != nil {
			return err
		}
		if len(doc.Sections) == 0 {
			log.Info("ingest: skipping document with no sections", "path", doc.Path)
			stats.Skipped++
			return nil
		}

		result := stage(ctx, doc)
		if result.IsErr() {
			_, err := result.Unwrap()
			return fmt.Errorf("ingest %s: %w", doc.Path, err)
		}
		points, _ := result.Unwrap()

		stats.Files++
		stats.Points += points
		if deps.OnDocument != nil {
			deps.OnDocument(doc, points)
		}
		log.Info("ingest: document stored", "path", doc.Path, "points", points)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("ingest: %w", err)
	}

	log.Info("ingest: run complete", "collection", collection,
		"files", stats.Files, "points", stats.Points, "skipped", stats.Skipped)
	return stats, nil
}
