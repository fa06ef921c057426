package sendstream

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Stream is the body abstraction C2 produces and C5/C6 consume: a
// readable byte source with a single deterministic teardown point.
// Storage-provided streams (from Storage.CreateReadableStream) and the
// stream primitives below all satisfy it.
type Stream interface {
	io.Reader
	// Close releases any resource the stream holds. It must be safe to
	// call more than once (idempotent), matching spec.md §5's
	// cancellation/cleanup guarantees.
	Close() error
}

// emptyStream is C2's EmptyStream: it produces no bytes and is closed
// on first read, per spec.md §4.2.
type emptyStream struct{}

// NewEmptyStream returns a Stream that yields EOF immediately. Used for
// HEAD responses and 1xx/204/304 bodies (spec.md §3 invariants).
func NewEmptyStream() Stream { return emptyStream{} }

func (emptyStream) Read([]byte) (int, error) { return 0, io.EOF }
func (emptyStream) Close() error              { return nil }

// BufferStream is C2's single-buffer stream: one emission of a byte
// buffer, then EOF. Used for multipart boundary/header fragments and
// for small error bodies (status-phrase text).
type BufferStream struct {
	data   []byte
	off    int
	closed bool
}

// NewBufferStream wraps data as a one-shot Stream.
func NewBufferStream(data []byte) *BufferStream {
	return &BufferStream{data: data}
}

func (b *BufferStream) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}

func (b *BufferStream) Close() error {
	b.closed = true
	return nil
}

// MultiStream is C2's concatenating stream: it reads an ordered list of
// sources to completion in order, and guarantees a single onFinalize
// call on whatever path ends it — natural completion, a read error from
// any child, or an explicit Close from downstream (spec.md §4.2, §9
// "Stream chain ownership").
type MultiStream struct {
	mu         sync.Mutex
	sources    []Stream
	idx        int
	onFinalize func(error)
	done       bool
	err        error
}

// NewMultiStream builds a MultiStream over sources, invoking onFinalize
// exactly once when the stream is exhausted, errors, or is closed early.
// onFinalize may be nil.
func NewMultiStream(sources []Stream, onFinalize func(error)) *MultiStream {
	return &MultiStream{sources: sources, onFinalize: onFinalize}
}

func (m *MultiStream) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		if m.err != nil {
			return 0, m.err
		}
		return 0, io.EOF
	}
	for m.idx < len(m.sources) {
		n, err := m.sources[m.idx].Read(p)
		if n > 0 {
			return n, nil
		}
		switch {
		case err == io.EOF:
			_ = m.sources[m.idx].Close()
			m.idx++
		case err != nil:
			m.finalizeLocked(err)
			return 0, err
		default:
			// n==0, err==nil: nothing to report yet, try the same child again.
		}
	}
	m.finalizeLocked(nil)
	return 0, io.EOF
}

// Close implements the downstream-initiated teardown path: destroy
// whichever child is live and any not yet started, and run onFinalize
// exactly once, same as a natural-completion or error teardown.
func (m *MultiStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizeLocked(nil)
	return nil
}

// finalizeLocked closes every remaining child and invokes onFinalize
// exactly once. Must be called with mu held.
func (m *MultiStream) finalizeLocked(cause error) {
	if m.done {
		return
	}
	m.done = true
	m.err = cause
	for ; m.idx < len(m.sources); m.idx++ {
		_ = m.sources[m.idx].Close()
	}
	if m.onFinalize != nil {
		m.onFinalize(cause)
	}
}

const boundaryPrefix = "----Boundary"

// GenerateBoundary produces a multipart/byteranges boundary token:
// cryptographically random, 24 bytes of entropy hex-encoded (48 hex
// characters), prefixed with a fixed sentinel to reduce accidental
// collision with file content (spec.md §3, §9 "Random boundary").
func GenerateBoundary() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generate multipart boundary")
	}
	return boundaryPrefix + hex.EncodeToString(buf), nil
}
