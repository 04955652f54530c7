// Package rpcclient implements a retrying RPC channel on top of
// google.golang.org/grpc. Request/response payloads use a gob-encoded
// grpc.Codec, the same serialization choice pkg/rprofile/archive.go makes
// for profile archives, registered under its own content-subtype so it
// coexists with protobuf traffic (e.g. the standard grpc health service)
// on the same connection.
package rpcclient

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

type gobCodec struct{}

func (gobCodec) Name() string { return codecName }

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("rpcclient: gob marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("rpcclient: gob unmarshal: %w", err)
	}
	return nil
}
