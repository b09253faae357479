// Package embed wraps the OpenAI API for the three operations the engine
// needs: batch-embedding a document, embedding a query, and streaming chat
// completions.
package embed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/docsmith-ai/docsmith/engine/domain"
	"github.com/docsmith-ai/docsmith/pkg/fn"
)

// Message roles.
const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

// Message is one chat message.
type Message struct {
	Role    string
	Content string
}

// Delta is one element of a chat completion stream: either a content
// fragment or a transport error.
type Delta struct {
	Content string
	Err     error
}

// Options configures the client.
type Options struct {
	// EmbeddingModel must produce vectors of domain.EmbeddingDim.
	EmbeddingModel string
	// ChatModel is used for answer synthesis.
	ChatModel string
	// Temperature for chat completions.
	Temperature float32
	// MaxTokens caps the completion length.
	MaxTokens int
	// Concurrency bounds the per-section fan-out of EmbedDocument.
	Concurrency int
	// RequestsPerSecond paces outbound API calls. Zero disables pacing.
	RequestsPerSecond float64
	// BaseURL overrides the API endpoint, used in tests.
	BaseURL string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		EmbeddingModel:    string(openai.AdaEmbeddingV2),
		ChatModel:         openai.GPT3Dot5Turbo,
		Temperature:       0.5,
		MaxTokens:         400,
		Concurrency:       8,
		RequestsPerSecond: 10,
	}
}

// Client is a reentrant OpenAI client; it holds only shared transport state
// and is safe for concurrent use.
type Client struct {
	api     *openai.Client
	limiter *rate.Limiter
	retry   fn.RetryOpts
	opts    Options
	logger  *slog.Logger
}

// New creates a Client authenticated with the given API key.
func New(apiKey string, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Concurrency)
	}

	retry := fn.DefaultRetry
	retry.Retriable = retriable

	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		limiter: limiter,
		retry:   retry,
		opts:    opts,
		logger:  logger,
	}
}

// retriable reports whether an API error is worth retrying. Authentication
// and malformed-request failures are not.
func retriable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 400, 401, 403, 404, 422:
			return false
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case 400, 401, 403, 404, 422:
			return false
		}
	}
	return true
}

// sectionInput builds the embedding input for one section.
func sectionInput(s domain.Section) string {
	if s.Title != "" {
		return s.Title + ": " + s.Content
	}
	return s.Content
}

// pointID derives a deterministic point ID from the document path and the
// section ordinal, so re-ingesting a document overwrites its points instead
// of accumulating duplicates.
func pointID(path string, ordinal int) string {
	return domain.PointID(path, ordinal)
}

// EmbedDocument produces one point per section. Sections are embedded
// concurrently; the first failure aborts the batch.
func (c *Client) EmbedDocument(ctx context.Context, doc domain.Document) ([]domain.Point, error) {
	points := make([]domain.Point, len(doc.Sections))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for i, section := range doc.Sections {
		g.Go(func() error {
			vector, err := c.embed(ctx, sectionInput(section))
			if err != nil {
				return fmt.Errorf("embed %s section %d: %w", doc.Path, i, err)
			}
			points[i] = domain.Point{
				ID:     pointID(doc.Path, i),
				Vector: vector,
				Payload: domain.Payload{
					Text:      section.Content,
					Path:      doc.Path,
					Title:     section.Title,
					PageTitle: doc.Title,
				},
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := c.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vector, nil
}

// embed issues one embedding request with pacing and retry, and checks the
// returned dimension.
func (c *Client) embed(ctx context.Context, input string) ([]float32, error) {
	result := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[[]float32] {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fn.Err[[]float32](err)
			}
		}
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.opts.EmbeddingModel),
			Input: []string{input},
		})
		if err != nil {
			return fn.Err[[]float32](err)
		}
		if len(resp.Data) == 0 {
			return fn.Errf[[]float32]("no embedding in response")
		}
		return fn.Ok(resp.Data[0].Embedding)
	})

	vector, err := result.Unwrap()
	if err != nil {
		return nil, err
	}
	if len(vector) != domain.EmbeddingDim {
		return nil, fmt.Errorf("embedding has dimension %d, want %d", len(vector), domain.EmbeddingDim)
	}
	return vector, nil
}

// ChatStream opens a streaming chat completion and forwards content deltas
// in arrival order. The returned channel is closed when the stream ends;
// a transport failure mid-stream is delivered as a Delta with Err set.
// Cancelling ctx stops the forwarding goroutine promptly.
func (c *Client) ChatStream(ctx context.Context, messages []Message) (<-chan Delta, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.opts.ChatModel,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		Stream:      true,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("open chat stream: %w", err)
	}

	out := make(chan Delta)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case out <- Delta{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- Delta{Content: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
