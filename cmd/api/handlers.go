package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/docsmith-ai/docsmith/engine/domain"
	"github.com/docsmith-ai/docsmith/engine/project"
	"github.com/docsmith-ai/docsmith/engine/rag"
	"github.com/docsmith-ai/docsmith/pkg/fn"
	"github.com/docsmith-ai/docsmith/pkg/metrics"
	"github.com/docsmith-ai/docsmith/pkg/signed"
	"github.com/docsmith-ai/docsmith/pkg/sse"
	"github.com/docsmith-ai/docsmith/pkg/telemetry"
)

const (
	keepAliveInterval = 15 * time.Second
	loginLinkTTL      = 15 * time.Minute
	chatgptSearchK    = 5
)

type serverDeps struct {
	rag       *rag.Service
	projects  *project.Store
	signer    *signed.Signer
	telemetry *telemetry.Publisher
	metrics   *metrics.Registry
	logger    *slog.Logger
}

func newServer(deps serverDeps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/metrics/snapshot", deps.handleMetricsSnapshot)
	mux.HandleFunc("GET /widget", deps.handleWidgetShow)
	mux.HandleFunc("POST /widget/search", deps.handleWidgetSearch)
	mux.HandleFunc("POST /widget/stream", deps.handleWidgetStream)
	mux.HandleFunc("POST /chatgpt/search/{project}", deps.handleChatGPTSearch)
	mux.HandleFunc("POST /auth/login", deps.handleLoginRequest)
	mux.HandleFunc("GET /auth/login", deps.handleLoginCallback)
	return mux
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, domain.ErrStatus(err), map[string]string{"error": err.Error()})
}

// projectFromOrigin resolves the requesting project from the Origin header,
// the way the embedded widget identifies itself.
func (d serverDeps) projectFromOrigin(r *http.Request) (domain.Project, error) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return domain.Project{}, domain.ClientErr("missing Origin header")
	}
	p, err := d.projects.FindByOrigin(r.Context(), origin)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Project{}, domain.NotFound("no project registered for this origin")
		}
		return domain.Project{}, domain.ServerErr("failed to resolve project", err)
	}
	if p.IndexName == "" {
		return domain.Project{}, domain.NotFound("project has not been trained yet")
	}
	return p, nil
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d serverDeps) handleMetricsSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now().UTC(),
		"counters":  d.metrics.Snapshot(),
	})
}

// partialProject is the widget-visible slice of a project.
type partialProject struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Copy map[string]any `json:"copy,omitempty"`
}

func (d serverDeps) handleWidgetShow(w http.ResponseWriter, r *http.Request) {
	p, err := d.projectFromOrigin(r)
	if err != nil {
		writeError(w, err)
		return
	}

	d.metrics.Counter("widget_load").Inc()
	d.telemetry.WidgetLoad(r.Context(), p.ID)

	writeJSON(w, http.StatusOK, partialProject{ID: p.ID, Name: p.Name, Copy: p.Copy})
}

// askRequest is the body of the search and stream endpoints.
type askRequest struct {
	Query string `json:"query"`
}

func decodeAsk(r *http.Request) (askRequest, error) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, domain.ClientErr("invalid request body")
	}
	if err := domain.ValidateQuery(req.Query); err != nil {
		return req, err
	}
	return req, nil
}

func (d serverDeps) handleWidgetSearch(w http.ResponseWriter, r *http.Request) {
	p, err := d.projectFromOrigin(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := decodeAsk(r)
	if err != nil {
		writeError(w, err)
		return
	}

	d.metrics.Counter("widget_search").Inc()
	d.telemetry.WidgetSearch(r.Context(), p.ID)

	results, err := d.rag.Search(r.Context(), p.IndexName, req.Query, 0)
	if err != nil {
		d.logger.Error("widget search failed", "project", p.ID, "err", err)
		writeError(w, domain.ServerErr("failed to search project", err))
		return
	}

	payloads := fn.Map(results, func(res domain.SearchResult) domain.Payload { return res.Payload })
	writeJSON(w, http.StatusOK, payloads)
}

func (d serverDeps) handleWidgetStream(w http.ResponseWriter, r *http.Request) {
	p, err := d.projectFromOrigin(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := decodeAsk(r)
	if err != nil {
		writeError(w, err)
		return
	}

	d.metrics.Counter("widget_query").Inc()
	d.telemetry.WidgetQuery(r.Context(), p.ID)

	stream, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, domain.ServerErr("streaming unsupported", err))
		return
	}

	events := d.rag.Ask(r.Context(), p.IndexName, req.Query)
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeAnswerEvent(stream, ev); err != nil {
				return
			}
			if _, failed := ev.(rag.Failure); failed {
				return
			}
		case <-keepAlive.C:
			if err := stream.KeepAlive(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// writeAnswerEvent encodes one answer event onto the SSE stream. The event
// type is closed, so the switch is exhaustive.
func writeAnswerEvent(stream *sse.Writer, ev rag.Event) error {
	switch e := ev.(type) {
	case rag.References:
		return stream.JSON("references", []domain.Payload(e))
	case rag.PartialAnswer:
		return stream.Send("partial_answer", []byte(e))
	case rag.Failure:
		return stream.JSON("error", map[string]string{"error": string(e)})
	default:
		return stream.JSON("error", map[string]string{"error": "unknown event"})
	}
}

// chatgptSearchResponse pairs the results with the project's public base URL
// so the plugin can build absolute documentation links.
type chatgptSearchResponse struct {
	Results []domain.Payload `json:"results"`
	BaseURL string           `json:"base_url"`
}

func (d serverDeps) handleChatGPTSearch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("project")
	req, err := decodeAsk(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := d.projects.FindByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, domain.NotFound("project not found"))
			return
		}
		writeError(w, domain.ServerErr("failed to resolve project", err))
		return
	}
	if p.IndexName == "" {
		writeError(w, domain.NotFound("project has not been trained yet"))
		return
	}

	d.metrics.Counter("chatgpt_search").Inc()
	d.telemetry.WidgetSearch(r.Context(), p.ID)

	results, err := d.rag.Search(r.Context(), p.IndexName, req.Query, chatgptSearchK)
	if err != nil {
		d.logger.Error("chatgpt search failed", "project", p.ID, "err", err)
		writeError(w, domain.ServerErr("failed to search project", err))
		return
	}

	baseURL := ""
	if len(p.Origins) > 0 {
		baseURL = p.Origins[0]
	}
	writeJSON(w, http.StatusOK, chatgptSearchResponse{
		Results: fn.Map(results, func(res domain.SearchResult) domain.Payload { return res.Payload }),
		BaseURL: baseURL,
	})
}

// --- Auth ---

type loginRequest struct {
	Email string `json:"email"`
}

// handleLoginRequest issues a signed magic-link URL for the given address.
// Delivery is the mailer's concern; the link is returned for it to pick up.
func (d serverDeps) handleLoginRequest(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ClientErr("invalid request body"))
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, domain.ClientErr("invalid email address"))
		return
	}

	link := d.signer.Build("/auth/login", map[string]string{"email": req.Email}, loginLinkTTL)
	d.logger.Info("login link issued", "email", req.Email)

	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

// handleLoginCallback verifies a magic link against the matched route path.
func (d serverDeps) handleLoginCallback(w http.ResponseWriter, r *http.Request) {
	if err := d.signer.VerifyRequest(r); err != nil {
		switch {
		case errors.Is(err, signed.ErrSignatureExpired):
			writeError(w, domain.Unauthorized("signature expired"))
		default:
			writeError(w, domain.Unauthorized("invalid signature"))
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"email":  r.URL.Query().Get("email"),
	})
}
