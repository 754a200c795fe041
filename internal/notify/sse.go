package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter streams a job's Event channel to an http.ResponseWriter as
// server-sent events, grounded on the teacher's A2A SSEWriter.
type SSEWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewSSEWriter sets the SSE headers and wraps w. Panics if w does not
// support flushing, matching the teacher's construction-time invariant.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		panic("notify: streaming not supported by the underlying ResponseWriter")
	}
	return &SSEWriter{w: w, f: flusher}
}

// Send writes one Event as an SSE "data:" frame and flushes it.
func (s *SSEWriter) Send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("notify: write event: %w", err)
	}
	s.f.Flush()
	return nil
}

// Stream subscribes to jobId and forwards events to w until the client
// disconnects (ctx done) or the registry closes the subscription (job
// finished or the client stalled).
func Stream(ctx context.Context, w http.ResponseWriter, r *Registry, jobID string) {
	sse := NewSSEWriter(w)
	ch, cancel := r.Subscribe(jobID)
	defer cancel()

	for _, ev := range r.RecentEvents(jobID) {
		if err := sse.Send(ev); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := sse.Send(ev); err != nil {
				return
			}
			if ev.Type == "complete" {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
