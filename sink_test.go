package sendstream

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSinkWritesStatusHeadersAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := NewHTTPSink(rec)

	headers := NewOrderedHeaders()
	headers.Set("Content-Type", "text/plain")
	headers.Set("Content-Length", "5")

	err := sink.Send(context.Background(), 206, headers, NewBufferStream([]byte("hello")))
	require.NoError(t, err)

	assert.Equal(t, 206, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "hello", rec.Body.String())
}

func TestHTTPSinkCancelledContext(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := NewHTTPSink(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.Send(ctx, 200, NewOrderedHeaders(), NewBufferStream([]byte("x")))
	require.Error(t, err)

	var sinkErr *SinkError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, SinkResponseClose, sinkErr.Event)
}
