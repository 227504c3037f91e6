package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Optional is the codec shape used for cached entry values: nil means absent.
type Optional = Codec[*string]

// Names accepted by ByName.
const (
	NameJSON    = "json"
	NameCBOR    = "cbor"
	NameMsgpack = "msgpack"
	NameProto   = "proto"
)

// ByName returns the optional-string codec registered under name.
// An empty name selects JSON.
func ByName(name string) (Optional, error) {
	switch name {
	case "", NameJSON:
		return JSON{}, nil
	case NameCBOR:
		return NewCBOR()
	case NameMsgpack:
		return Msgpack{}, nil
	case NameProto:
		return NewProtoOptional(), nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
