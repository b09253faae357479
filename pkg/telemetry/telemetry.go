// Package telemetry publishes product events (widget loads, searches,
// queries, ingestion and crawl progress) to NATS subjects. Without a
// configured NATS connection every publish is a no-op, so callers never
// need to guard their tracking calls.
package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// Subjects for the tracked events.
const (
	SubjectWidgetLoad   = "telemetry.widget.load"
	SubjectWidgetSearch = "telemetry.widget.search"
	SubjectWidgetQuery  = "telemetry.widget.query"
	SubjectIngestDoc    = "telemetry.ingest.document"
	SubjectCrawlPage    = "telemetry.crawl.page"
)

// Event is the common payload of all telemetry subjects.
type Event struct {
	ProjectID string    `json:"project_id"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher sends telemetry events. The zero value is a disabled publisher.
type Publisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// Connect dials NATS at natsURL. An empty URL yields a disabled publisher.
func Connect(natsURL string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if natsURL == "" {
		logger.Info("telemetry: disabled, no NATS URL configured")
		return &Publisher{logger: logger}, nil
	}
	nc, err := nats.Connect(natsURL, nats.Name("docsmith-telemetry"))
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, logger: logger}, nil
}

// Close closes the NATS connection, if there is one.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// natsHeaderCarrier adapts nats.Msg headers for OTel trace propagation.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// publish sends one event. Failures are logged, never surfaced: telemetry
// must not break the request path.
func (p *Publisher) publish(ctx context.Context, subject string, ev Event) {
	if p.nc == nil {
		return
	}
	ev.At = time.Now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("telemetry: marshal failed", "subject", subject, "err", err)
		return
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		p.logger.Warn("telemetry: publish failed", "subject", subject, "err", err)
	}
}

// WidgetLoad tracks a widget being shown for a project.
func (p *Publisher) WidgetLoad(ctx context.Context, projectID string) {
	p.publish(ctx, SubjectWidgetLoad, Event{ProjectID: projectID})
}

// WidgetSearch tracks a search request.
func (p *Publisher) WidgetSearch(ctx context.Context, projectID string) {
	p.publish(ctx, SubjectWidgetSearch, Event{ProjectID: projectID})
}

// WidgetQuery tracks a streamed answer request.
func (p *Publisher) WidgetQuery(ctx context.Context, projectID string) {
	p.publish(ctx, SubjectWidgetQuery, Event{ProjectID: projectID})
}

// DocumentIngested tracks one document stored during ingestion.
func (p *Publisher) DocumentIngested(ctx context.Context, projectID, path string) {
	p.publish(ctx, SubjectIngestDoc, Event{ProjectID: projectID, Detail: path})
}

// PageCrawled tracks one page fetched during a crawl.
func (p *Publisher) PageCrawled(ctx context.Context, projectID, pageURL string) {
	p.publish(ctx, SubjectCrawlPage, Event{ProjectID: projectID, Detail: pageURL})
}
