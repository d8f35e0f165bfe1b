// Package sse implements the SSE Transport (C10): it turns a sequence of
// domain.StreamEvent into the wire format of §6.1 and manages the
// connection's lifecycle, propagating client disconnect as cancellation.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ragorchestrator/internal/domain"
)

// Writer serializes StreamEvents to an http.ResponseWriter as they arrive,
// flushing after every event so no distinct events are batched together.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the text/event-stream headers and returns a Writer. The
// caller must have access to a request whose context is cancelled on client
// disconnect (net/http already does this for http.ResponseWriter).
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one event as "event: <name>\ndata: <json>\n\n" and flushes.
func (sw *Writer) Send(ev domain.StreamEvent, conversationID string) error {
	stamped := domain.WithEnvelope(ev, conversationID, time.Now().UTC().Format(time.RFC3339))
	payload, err := json.Marshal(stamped)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", ev.EventName(), payload); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}
