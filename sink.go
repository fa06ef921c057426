package sendstream

import (
	"context"
	"io"
	"net/http"
)

// SinkEvent classifies which direction of the bidirectional close wiring
// a Sink observed, per spec.md §4.5 step 9 / §4.6.
type SinkEvent int

const (
	// SinkResponseError means the output was already committed/destroyed
	// before or during the write.
	SinkResponseError SinkEvent = iota
	// SinkReadError means the body stream itself failed.
	SinkReadError
	// SinkResponseClose means the downstream closed before the body
	// finished (and the body was destroyed as a result).
	SinkResponseClose
)

// SinkError wraps a Cause with the SinkEvent that produced it, so
// callers can distinguish the three outcomes spec.md §4.5 step 9 names.
type SinkError struct {
	Event SinkEvent
	Cause error
}

func (e *SinkError) Error() string {
	switch e.Event {
	case SinkReadError:
		return "sendstream: read error: " + e.Cause.Error()
	case SinkResponseClose:
		return "sendstream: response closed before body ended"
	default:
		return "sendstream: response error: " + e.Cause.Error()
	}
}

func (e *SinkError) Unwrap() error { return e.Cause }

// Sink is C6: it writes status+headers+body to an HTTP/1.1 or HTTP/2
// output, propagating close/error in both directions (spec.md §4.6). A
// Sink implementation must close body exactly once, whether Send
// succeeds, the body errors, or the output is closed early.
type Sink interface {
	Send(ctx context.Context, statusCode int, headers *OrderedHeaders, body Stream) error
}

// httpSink is the HTTP/1.1 Sink backend: a thin adapter over
// net/http.ResponseWriter, in the spirit of the teacher's
// examples/main.go net/http wiring.
type httpSink struct {
	w http.ResponseWriter
}

// NewHTTPSink adapts an http.ResponseWriter (and, implicitly, the
// *http.Request whose context governs cancellation) into a Sink.
func NewHTTPSink(w http.ResponseWriter) Sink {
	return &httpSink{w: w}
}

func (s *httpSink) Send(ctx context.Context, statusCode int, headers *OrderedHeaders, body Stream) error {
	defer func() { _ = body.Close() }()

	if headers != nil {
		headers.Each(func(name, value string) {
			s.w.Header().Add(name, value)
		})
	}
	s.w.WriteHeader(statusCode)

	flusher, _ := s.w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return &SinkError{Event: SinkResponseClose, Cause: ctx.Err()}
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := s.w.Write(buf[:n]); writeErr != nil {
				return &SinkError{Event: SinkResponseError, Cause: writeErr}
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return &SinkError{Event: SinkReadError, Cause: readErr}
		}
	}
}
