package codec

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack stores an absent value as msgpack nil and a present one as a str.
type Msgpack struct{}

var _ Optional = Msgpack{}

func (Msgpack) Encode(v *string) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if v == nil {
		if err := enc.EncodeNil(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	if err := enc.EncodeString(*v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack) Decode(b []byte) (*string, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	s, err := dec.DecodeInterface()
	if err != nil {
		return nil, err
	}
	switch x := s.(type) {
	case nil:
		return nil, nil
	case string:
		return &x, nil
	default:
		return nil, fmt.Errorf("codec: msgpack value is %T, want string or nil", x)
	}
}
