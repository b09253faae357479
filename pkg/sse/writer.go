// Package sse writes server-sent events to an HTTP response, flushing after
// each event as required by the protocol.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("sse: response writer does not support streaming")

// lineBreakReplacer escapes CR and LF in the id field per the specification.
var lineBreakReplacer = strings.NewReplacer("\n", "\\n", "\r", "\\r")

// Writer emits SSE messages on an HTTP response. It is not safe for
// concurrent use; a stream has a single producing goroutine.
type Writer struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewWriter prepares the response for event streaming and returns a Writer.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	return &Writer{w: w, f: f}, nil
}

// Send writes one event with the given id and data. Multiline data is split
// into one data: line per line.
func (s *Writer) Send(id string, data []byte) error {
	if id != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", lineBreakReplacer.Replace(id)); err != nil {
			return err
		}
	}
	for _, line := range strings.Split(string(data), "\n") {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// JSON marshals v and sends it as one event.
func (s *Writer) JSON(id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(id, data)
}

// KeepAlive writes a comment line, keeping the connection warm through
// proxies without delivering an event.
func (s *Writer) KeepAlive() error {
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
