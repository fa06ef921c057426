package sendstream

import (
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/protobuf/encoding/protojson"
)

// WithHTTPBodyMarshaler wires the gateway mux to stream gatewaySink's
// httpbody.HttpBody chunks through unmodified while still marshaling any
// non-HttpBody (error/status) message as JSON, generalizing the
// teacher's marshaler.go to a download-only engine: no upload path means
// no custom Decoder/Delimiter override is needed, just the stock
// runtime.HTTPBodyMarshaler.
func WithHTTPBodyMarshaler() runtime.ServeMuxOption {
	return runtime.WithMarshalerOption("*", &runtime.HTTPBodyMarshaler{
		Marshaler: &runtime.JSONPb{
			MarshalOptions:   protojson.MarshalOptions{EmitUnpopulated: true},
			UnmarshalOptions: protojson.UnmarshalOptions{DiscardUnknown: true},
		},
	})
}
