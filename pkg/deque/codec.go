package deque

import (
	gojson "github.com/goccy/go-json"
)

// Codec converts values to and from the opaque payloads the store holds.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// JSONCodec is the default codec.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) { return gojson.Marshal(v) }

func (JSONCodec[V]) Decode(b []byte) (V, error) {
	var v V
	err := gojson.Unmarshal(b, &v)
	return v, err
}

// BytesCodec stores payloads as they are.
type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) ([]byte, error) { return v, nil }

func (BytesCodec) Decode(b []byte) ([]byte, error) { return b, nil }

// StringCodec stores strings as raw bytes.
type StringCodec struct{}

func (StringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }

func (StringCodec) Decode(b []byte) (string, error) { return string(b), nil }
