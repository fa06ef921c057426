package sendstream

import (
	"context"
	"io"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/pkg/errors"
	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
)

// gatewayChunkSize mirrors the teacher's defaultBufSize: the amount of
// body data batched into each streamed httpbody.HttpBody message.
const gatewayChunkSize = 32 * 1024

// gatewayHeaders is the full set of response-engine headers tunneled
// across the grpc-gateway boundary, generalizing the teacher's
// file_download.go fixed header list (which only carried the handful
// its simpler ServeContent emitted) to every header Prepare can produce.
var gatewayHeaders = []string{
	"accept-ranges",
	"content-type",
	"content-range",
	"content-length",
	"content-encoding",
	"content-disposition",
	"last-modified",
	"etag",
	"cache-control",
	"vary",
	"allow",
	"x-content-type-options",
	"transfer-encoding",
}

const gatewayCodeHeader = "code"

// GatewayStream is the server-side streaming RPC handle a grpc-gateway
// HTTP/2 tunnel response flows through — generalized from the teacher's
// DownloadServer interface in server.go.
type GatewayStream interface {
	grpc.ServerStream
	Send(*httpbody.HttpBody) error
}

// gatewaySink is C6's HTTP/2-over-grpc-gateway Sink backend: it encodes
// status+headers into outgoing gRPC metadata (picked up by
// WithGatewayForwardResponseOption on the HTTP side of the tunnel) and
// streams the body as chunked httpbody.HttpBody messages, the same
// pattern as the teacher's DownloadServerWriter.
type gatewaySink struct {
	stream      GatewayStream
	contentType string
}

// NewGatewaySink adapts a GatewayStream into a Sink. contentType is used
// as the httpbody.HttpBody wrapper's declared type for each chunk (not
// the response Content-Type header, which travels in metadata).
func NewGatewaySink(stream GatewayStream, contentType string) Sink {
	return &gatewaySink{stream: stream, contentType: contentType}
}

func (s *gatewaySink) Send(ctx context.Context, statusCode int, headers *OrderedHeaders, body Stream) error {
	defer func() { _ = body.Close() }()

	md := metadata.New(map[string]string{gatewayCodeHeader: strconv.Itoa(statusCode)})
	if headers != nil {
		headers.Each(func(name, value string) {
			md.Set(textproto.CanonicalMIMEHeaderKey(name), value)
		})
	}
	if err := s.stream.SendHeader(md); err != nil {
		return &SinkError{Event: SinkResponseError, Cause: errors.Wrap(err, "send gateway header")}
	}

	buf := make([]byte, gatewayChunkSize)
	for {
		select {
		case <-ctx.Done():
			return &SinkError{Event: SinkResponseClose, Cause: ctx.Err()}
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := s.stream.Send(&httpbody.HttpBody{ContentType: s.contentType, Data: chunk}); err != nil {
				return &SinkError{Event: SinkResponseError, Cause: errors.Wrap(err, "send gateway chunk")}
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

// WithGatewayIncomingHeaderMatcher forwards the conditional/range
// request headers the response engine evaluates into gRPC metadata,
// generalizing the teacher's WithFileIncomingHeaderMatcher (which only
// forwarded Range) to the full conditional-request header set spec.md
// §4.1 consumes.
func WithGatewayIncomingHeaderMatcher() runtime.ServeMuxOption {
	forwarded := map[string]struct{}{
		"Range":               {},
		"If-Range":            {},
		"If-Match":            {},
		"If-None-Match":       {},
		"If-Unmodified-Since": {},
		"If-Modified-Since":   {},
	}
	return runtime.WithIncomingHeaderMatcher(func(key string) (string, bool) {
		key = textproto.CanonicalMIMEHeaderKey(key)
		if _, ok := forwarded[key]; ok {
			return runtime.MetadataPrefix + key, true
		}
		return runtime.DefaultHeaderMatcher(key)
	})
}

// WithGatewayForwardResponseOption is the HTTP-side counterpart to
// gatewaySink: it copies gatewayHeaders plus the status code back out of
// gRPC metadata onto the real http.ResponseWriter, generalizing the
// teacher's WithFileForwardResponseOption to the engine's full header
// set.
func WithGatewayForwardResponseOption() runtime.ServeMuxOption {
	return runtime.WithForwardResponseOption(func(ctx context.Context, w http.ResponseWriter, message proto.Message) error {
		if message != nil {
			return nil
		}
		md, ok := runtime.ServerMetadataFromContext(ctx)
		if !ok {
			return errors.New("sendstream: gateway metadata not found")
		}
		for _, header := range gatewayHeaders {
			if v := firstValue(md.HeaderMD, header); v != "" {
				w.Header().Set(header, v)
			}
		}
		if codeStr := firstValue(md.HeaderMD, gatewayCodeHeader); codeStr != "" {
			code, err := strconv.Atoi(codeStr)
			if err != nil {
				return errors.Wrap(err, "parse gateway status code")
			}
			w.WriteHeader(code)
		}
		return nil
	})
}

// firstValue returns the first value bound to key in md, or "".
// Generalizes the teacher's util.go Pick helper to metadata.MD directly.
func firstValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
