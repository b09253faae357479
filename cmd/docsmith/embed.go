package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/docsmith-ai/docsmith/engine/domain"
	"github.com/docsmith-ai/docsmith/engine/ingest"
)

func newEmbedCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "embed <slug>",
		Short: "Embed the processed documents and upsert them into the vector store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug := args[0]
			if err := domain.ValidateSlug(slug); err != nil {
				return err
			}

			dir := buildDir(slug)
			if _, err := os.Stat(dir); err != nil {
				return fmt.Errorf("project %s does not exist, run fetch or crawl first", slug)
			}

			embedder, err := newEmbedder(logger)
			if err != nil {
				return err
			}
			store, err := newStore(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			collection := domain.CollectionName(slug)
			if err := store.EnsureCollection(cmd.Context(), collection); err != nil {
				return err
			}

			events := newTelemetry(logger)
			defer events.Close()

			stats, err := ingest.Run(cmd.Context(), ingest.Deps{
				Embedder: embedder,
				Store:    store,
				OnDocument: func(doc domain.Document, points int) {
					events.DocumentIngested(cmd.Context(), slug, doc.Path)
				},
				Logger: logger,
			}, collection, dir)
			if err != nil {
				return err
			}

			logger.Info("embed complete", "slug", slug,
				"files", stats.Files, "points", stats.Points, "skipped", stats.Skipped)
			return nil
		},
	}
}
