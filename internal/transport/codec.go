// Package transport provides the concrete gRPC-based Transmitter: the
// wire-level implementation of the peer RPC surface declared by package
// transmitter. No protoc-generated stubs are available in this module, so
// the wire layer is a hand-registered grpc.ServiceDesc (the same mechanism
// protoc-gen-go-grpc would otherwise emit) carrying plain Go structs
// through a small JSON codec, keeping the real google.golang.org/grpc
// stack — dialing, deadlines, interceptors, credentials — in the loop.
package transport

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is registered as a gRPC content-subtype, selected per call by
// the client via grpc.CallContentSubtype; the server picks the registered
// codec from the content-subtype of the incoming call.
const codecName = "chordjson"

// jsonCodec implements encoding.Codec by delegating to the standard
// library's JSON encoder. ringid.ID implements
// encoding.TextMarshaler/TextUnmarshaler, so identifiers round-trip as their
// full hex form; peer.Address is encoded as a JSON object of its tagged
// fields (id, host, port).
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("transport: unmarshal %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
