package flodqv1

import (
	gojson "github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype the service is served with
// (application/grpc+json).
const CodecName = "json"

// Codec marshals messages as JSON.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) { return gojson.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

func (Codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(Codec{})
}

// CallOption selects the JSON codec for client calls.
func CallOption() grpc.CallOption { return grpc.CallContentSubtype(CodecName) }
