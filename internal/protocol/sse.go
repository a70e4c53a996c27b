// ABOUTME: Server-Sent Events framing for protocol events
// ABOUTME: Writes "event: <kind>\ndata: <json>\n\n" frames and flushes after each

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// SetSSEHeaders sets the response headers for an event stream.
func SetSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Format renders an event as one SSE frame.
func Format(e Event) ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s event: %w", e.Kind, err)
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Kind, data), nil
}

// SSEWriter writes events to an HTTP response as they arrive.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter checks that w supports flushing and sets the stream headers.
// Headers are only set when streaming is supported, so callers can still
// send a JSON error on failure.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	SetSSEHeaders(w.Header())
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Write sends one event frame and flushes it.
func (s *SSEWriter) Write(e Event) error {
	frame, err := Format(e)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("writing %s event: %w", e.Kind, err)
	}
	s.flusher.Flush()
	return nil
}
