package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/spf13/cobra"

	"github.com/docsmith-ai/docsmith/engine/crawler"
	"github.com/docsmith-ai/docsmith/engine/domain"
)

func newCrawlCmd(logger *slog.Logger) *cobra.Command {
	cfg := crawler.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "crawl <slug> <base_url>",
		Short: "Crawl a documentation site into the build directory as markdown",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, baseURL := args[0], args[1]
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

			c, err := crawler.New(baseURL, cfg, logger)
			if err != nil {
				return err
			}

			events := newTelemetry(logger)
			defer events.Close()

			var saved atomic.Int64
			err = c.Crawl(cmd.Context(), func(ctx context.Context, pageURL *url.URL, html string) {
				path, err := savePage(dir, pageURL, html)
				if err != nil {
					logger.Warn("failed to save page", "url", pageURL.String(), "err", err)
					return
				}
				saved.Add(1)
				events.PageCrawled(ctx, slug, pageURL.String())
				logger.Info("page saved", "url", pageURL.String(), "file", path)
			})
			if err != nil {
				return err
			}

			store, err := newStore(logger)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.EnsureCollection(cmd.Context(), domain.CollectionName(slug)); err != nil {
				return err
			}

			logger.Info("crawl complete", "slug", slug, "pages", saved.Load())
			return nil
		},
	}

	cmd.Flags().IntVar(&cfg.CrawlConcurrency, "crawl-concurrency", cfg.CrawlConcurrency, "number of concurrent fetchers")
	cmd.Flags().IntVar(&cfg.ProcessConcurrency, "process-concurrency", cfg.ProcessConcurrency, "number of concurrent page processors")
	cmd.Flags().DurationVar(&cfg.Delay, "delay", cfg.Delay, "politeness delay after each fetch")
	cmd.Flags().StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "crawler user agent")
	return cmd
}

// savePage converts a crawled page to markdown and writes it under dir,
// deriving the file path from the URL path.
func savePage(dir string, pageURL *url.URL, html string) (string, error) {
	markdown, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", pageURL, err)
	}

	name := strings.Trim(pageURL.Path, "/")
	if name == "" {
		name = "index"
	}
	target := filepath.Join(dir, filepath.FromSlash(name)+".md")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, []byte(markdown), 0o644); err != nil {
		return "", err
	}
	return target, nil
}
