// Package rag orchestrates the retrieval-augmented answer pipeline. It
// embeds a user question, retrieves the nearest documentation passages,
// and streams a grounded answer as an ordered event sequence: exactly one
// References event, then zero or more PartialAnswer deltas, with an
// optional terminal Failure.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docsmith-ai/docsmith/engine/domain"
	"github.com/docsmith-ai/docsmith/engine/embed"
	"github.com/docsmith-ai/docsmith/pkg/fn"
)

// Embedder is the slice of the embedding client the pipeline needs.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ChatStream(ctx context.Context, messages []embed.Message) (<-chan embed.Delta, error)
}

// Searcher abstracts vector search.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, k int) ([]domain.SearchResult, error)
}

// Options configures the pipeline behaviour.
type Options struct {
	// TopK is the number of passages retrieved for grounding.
	TopK int
	// MaxPassageRunes caps each passage serialized into the prompt.
	MaxPassageRunes int
	// SystemPrompt overrides the default assistant instructions.
	SystemPrompt string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:            3,
		MaxPassageRunes: 1500,
	}
}

const defaultSystemPrompt = `You are a documentation assistant. Answer the user's question using ONLY the documentation extracts below.
Cite the sources you used inline as Markdown links, using each extract's path as the link target.
If the extracts do not contain the information needed, say you don't know. Do not make up an answer and do not answer questions unrelated to this project.`

// Service runs the answer pipeline.
type Service struct {
	embed  Embedder
	search Searcher
	opts   Options
	logger *slog.Logger
}

// New creates a Service.
func New(embedder Embedder, searcher Searcher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	return &Service{embed: embedder, search: searcher, opts: opts, logger: logger}
}

// Search embeds the query and returns the top-k passages for the collection.
// It backs the search endpoints; Ask uses the same retrieval internally.
func (s *Service) Search(ctx context.Context, collection, query string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = s.opts.TopK
	}
	vector, err := s.embed.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	results, err := s.search.Search(ctx, collection, vector, k)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	return results, nil
}

// Ask answers a question about a project's documentation, streaming events
// on the returned channel. The channel is unbuffered: the producer suspends
// between events until the consumer advances, and cancelling ctx stops the
// pipeline promptly. The channel is closed when the sequence ends.
func (s *Service) Ask(ctx context.Context, collection, query string) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		s.logger.Info("rag: ask", "collection", collection, "query_len", len(query))

		results, err := s.Search(ctx, collection, query, s.opts.TopK)
		if err != nil {
			s.logger.Error("rag: retrieval failed", "err", err)
			s.emit(ctx, events, Failure("failed to search project documentation"))
			return
		}

		payloads := fn.Map(results, func(r domain.SearchResult) domain.Payload {
			return r.Payload
		})
		if !s.emit(ctx, events, References(payloads)) {
			return
		}

		deltas, err := s.embed.ChatStream(ctx, s.buildMessages(query, results))
		if err != nil {
			s.logger.Error("rag: chat stream failed to open", "err", err)
			s.emit(ctx, events, Failure("failed to generate an answer"))
			return
		}

		for delta := range deltas {
			if delta.Err != nil {
				s.logger.Error("rag: chat stream interrupted", "err", delta.Err)
				s.emit(ctx, events, Failure("answer stream interrupted"))
				return
			}
			if delta.Content == "" {
				continue
			}
			if !s.emit(ctx, events, PartialAnswer(delta.Content)) {
				return
			}
		}
	}()

	return events
}

// emit delivers one event, reporting false when the consumer is gone.
func (s *Service) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// buildMessages assembles the grounded prompt: the assistant instructions
// with the serialized passages appended, and the raw query as the user turn.
func (s *Service) buildMessages(query string, results []domain.SearchResult) []embed.Message {
	var b strings.Builder
	b.WriteString(s.opts.SystemPrompt)
	b.WriteString("\n\n")
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Path: %s\nContent: %s", r.Payload.Path, truncateRunes(r.Payload.Text, s.opts.MaxPassageRunes))
	}

	return []embed.Message{
		{Role: embed.RoleSystem, Content: b.String()},
		{Role: embed.RoleUser, Content: query},
	}
}

// truncateRunes caps s at n runes. Zero or negative n disables the cap.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
