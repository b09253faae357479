package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docsmith-ai/docsmith/engine/domain"
)

// keptExtensions are the documentation source formats retained after fetch.
var keptExtensions = []string{".md", ".mdx"}

func newFetchCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <slug> <owner/repo>",
		Short: "Download a GitHub repository's markdown into the build directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, repo := args[0], args[1]
			if err := domain.ValidateSlug(slug); err != nil {
				return err
			}

			dir := buildDir(slug)
			if _, err := os.Stat(dir); err == nil {
				return fmt.Errorf("directory %s already exists", dir)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			archiveURL := fmt.Sprintf("https://github.com/%s/archive/refs/heads/main.zip", repo)
			logger.Info("fetching repository", "url", archiveURL)

			resp, err := http.Get(archiveURL)
			if err != nil {
				return fmt.Errorf("fetch repository: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("fetch repository: status %d", resp.StatusCode)
			}

			archive, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read archive: %w", err)
			}
			if err := extractMarkdown(archive, dir); err != nil {
				return fmt.Errorf("extract archive: %w", err)
			}

			store, err := newStore(logger)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.EnsureCollection(cmd.Context(), domain.CollectionName(slug)); err != nil {
				return err
			}

			logger.Info("fetch complete", "slug", slug, "dir", dir)
			return nil
		},
	}
}

// extractMarkdown unpacks the archive into dir, keeping only documentation
// sources and stripping the archive's single top-level directory.
func extractMarkdown(archive []byte, dir string) error {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return err
	}

	for _, file := range reader.File {
		if file.FileInfo().IsDir() || !keepFile(file.Name) {
			continue
		}

		// Strip the "<repo>-main/" prefix.
		name := file.Name
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		if name == "" {
			continue
		}

		target := filepath.Join(dir, filepath.FromSlash(name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			continue // zip-slip
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		src, err := file.Open()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func keepFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, kept := range keptExtensions {
		if ext == kept {
			return true
		}
	}
	return false
}
