package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/docsmith-ai/docsmith/engine/domain"
	"github.com/docsmith-ai/docsmith/engine/embed"
)

type stubEmbedder struct {
	embedErr  error
	openErr   error
	deltas    []embed.Delta
	streamed  chan struct{} // closed when the forwarding goroutine exits
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	return make([]float32, domain.EmbeddingDim), nil
}

func (s *stubEmbedder) ChatStream(ctx context.Context, messages []embed.Message) (<-chan embed.Delta, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	out := make(chan embed.Delta)
	go func() {
		defer close(out)
		if s.streamed != nil {
			defer close(s.streamed)
		}
		for _, d := range s.deltas {
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type stubSearcher struct {
	results []domain.SearchResult
	err     error
}

func (s *stubSearcher) Search(ctx context.Context, collection string, vector []float32, k int) ([]domain.SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if k < len(s.results) {
		return s.results[:k], nil
	}
	return s.results, nil
}

func threeResults() []domain.SearchResult {
	return []domain.SearchResult{
		{ID: "1", Score: 0.91, Payload: domain.Payload{Text: "first", Path: "/a"}},
		{ID: "2", Score: 0.87, Payload: domain.Payload{Text: "second", Path: "/b"}},
		{ID: "3", Score: 0.74, Payload: domain.Payload{Text: "third", Path: "/c"}},
	}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var got []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("event stream did not complete")
		}
	}
}

func TestAsk_EventOrdering(t *testing.T) {
	embedder := &stubEmbedder{deltas: []embed.Delta{{Content: "Hel"}, {Content: "lo"}}}
	svc := New(embedder, &stubSearcher{results: threeResults()}, DefaultOptions(), nil)

	got := collect(t, svc.Ask(context.Background(), "docs_test", "q"))

	if len(got) != 3 {
		t.Fatalf("events = %d, want 3 (%v)", len(got), got)
	}
	refs, ok := got[0].(References)
	if !ok {
		t.Fatalf("first event = %T, want References", got[0])
	}
	if len(refs) != 3 || refs[0].Path != "/a" || refs[2].Path != "/c" {
		t.Errorf("references = %+v", refs)
	}
	if pa, ok := got[1].(PartialAnswer); !ok || string(pa) != "Hel" {
		t.Errorf("second event = %#v, want PartialAnswer(Hel)", got[1])
	}
	if pa, ok := got[2].(PartialAnswer); !ok || string(pa) != "lo" {
		t.Errorf("third event = %#v, want PartialAnswer(lo)", got[2])
	}
}

func TestAsk_EmbedFailureYieldsSingleFailure(t *testing.T) {
	embedder := &stubEmbedder{embedErr: errors.New("rate limited")}
	svc := New(embedder, &stubSearcher{results: threeResults()}, DefaultOptions(), nil)

	got := collect(t, svc.Ask(context.Background(), "docs_test", "q"))
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if _, ok := got[0].(Failure); !ok {
		t.Fatalf("event = %T, want Failure", got[0])
	}
}

func TestAsk_SearchFailureYieldsSingleFailure(t *testing.T) {
	embedder := &stubEmbedder{}
	svc := New(embedder, &stubSearcher{err: errors.New("connection refused")}, DefaultOptions(), nil)

	got := collect(t, svc.Ask(context.Background(), "docs_test", "q"))
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if _, ok := got[0].(Failure); !ok {
		t.Fatalf("event = %T, want Failure", got[0])
	}
}

func TestAsk_MidStreamErrorIsTerminal(t *testing.T) {
	embedder := &stubEmbedder{deltas: []embed.Delta{
		{Content: "partial"},
		{Err: errors.New("connection reset")},
		{Content: "never delivered"},
	}}
	svc := New(embedder, &stubSearcher{results: threeResults()}, DefaultOptions(), nil)

	got := collect(t, svc.Ask(context.Background(), "docs_test", "q"))

	if len(got) != 3 {
		t.Fatalf("events = %v, want References, PartialAnswer, Failure", got)
	}
	if _, ok := got[0].(References); !ok {
		t.Errorf("first = %T", got[0])
	}
	if _, ok := got[1].(PartialAnswer); !ok {
		t.Errorf("second = %T", got[1])
	}
	if _, ok := got[2].(Failure); !ok {
		t.Errorf("last = %T, want Failure", got[2])
	}
}

func TestAsk_ChatOpenFailureAfterReferences(t *testing.T) {
	embedder := &stubEmbedder{openErr: errors.New("model overloaded")}
	svc := New(embedder, &stubSearcher{results: threeResults()}, DefaultOptions(), nil)

	got := collect(t, svc.Ask(context.Background(), "docs_test", "q"))
	if len(got) != 2 {
		t.Fatalf("events = %v", got)
	}
	if _, ok := got[0].(References); !ok {
		t.Errorf("first = %T, want References", got[0])
	}
	if _, ok := got[1].(Failure); !ok {
		t.Errorf("second = %T, want Failure", got[1])
	}
}

func TestAsk_ConsumerCancellationStopsProducer(t *testing.T) {
	streamed := make(chan struct{})
	deltas := make([]embed.Delta, 100)
	for i := range deltas {
		deltas[i] = embed.Delta{Content: "x"}
	}
	embedder := &stubEmbedder{deltas: deltas, streamed: streamed}
	svc := New(embedder, &stubSearcher{results: threeResults()}, DefaultOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	events := svc.Ask(ctx, "docs_test", "q")

	<-events // references
	<-events // first delta
	cancel()

	select {
	case <-streamed:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream stream goroutine did not stop after cancellation")
	}
}

func TestAsk_TopKConfigurable(t *testing.T) {
	embedder := &stubEmbedder{}
	opts := DefaultOptions()
	opts.TopK = 2
	svc := New(embedder, &stubSearcher{results: threeResults()}, opts, nil)

	got := collect(t, svc.Ask(context.Background(), "docs_test", "q"))
	refs := got[0].(References)
	if len(refs) != 2 {
		t.Errorf("references = %d, want 2", len(refs))
	}
}

func TestBuildMessages(t *testing.T) {
	svc := New(&stubEmbedder{}, &stubSearcher{}, DefaultOptions(), nil)
	msgs := svc.buildMessages("how?", threeResults())

	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != embed.RoleSystem || msgs[1].Role != embed.RoleUser {
		t.Errorf("roles = %s/%s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content != "how?" {
		t.Errorf("user message = %q", msgs[1].Content)
	}
	if !strings.Contains(msgs[0].Content, "Path: /a\nContent: first") {
		t.Errorf("system message missing serialized passage:\n%s", msgs[0].Content)
	}
}

func TestBuildMessages_PassageCap(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPassageRunes = 10
	svc := New(&stubEmbedder{}, &stubSearcher{}, opts, nil)

	long := []domain.SearchResult{{Payload: domain.Payload{Path: "/long", Text: strings.Repeat("y", 100)}}}
	msgs := svc.buildMessages("q", long)
	if strings.Contains(msgs[0].Content, strings.Repeat("y", 11)) {
		t.Error("passage should be capped at 10 runes")
	}
}
