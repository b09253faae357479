package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docsmith-ai/docsmith/engine/domain"
	"github.com/docsmith-ai/docsmith/engine/markdown"
	"github.com/docsmith-ai/docsmith/pkg/fn"
)

// processWorkers bounds concurrent markdown parsing.
const processWorkers = 8

func newProcessCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "process <slug>",
		Short: "Parse the fetched markdown into embeddable documents",
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

			var files []string
			err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && keepFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return err
			}

			results := fn.ParMapResult(files, processWorkers, func(path string) fn.Result[string] {
				doc, err := markdown.ParseFile(path, dir)
				if err != nil {
					return fn.Err[string](err)
				}

				data, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return fn.Err[string](err)
				}

				target := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
				if err := os.WriteFile(target, data, 0o644); err != nil {
					return fn.Err[string](err)
				}
				if err := os.Remove(path); err != nil {
					return fn.Err[string](err)
				}
				return fn.Ok(target)
			})

			processed, err := fn.Collect(results).Unwrap()
			if err != nil {
				return err
			}

			logger.Info("process complete", "slug", slug, "documents", len(processed))
			return nil
		},
	}
}
