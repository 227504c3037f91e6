package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CBOR encodes values in the RFC 8949 core deterministic form, so equal values
// always produce equal frames. Absent is CBOR null. Use NewCBOR.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Optional = CBOR{}

func NewCBOR() (CBOR, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return CBOR{}, err
	}
	// Values are flat strings; anything nested is not ours.
	dm, err := cbor.DecOptions{MaxNestedLevels: 4, UTF8: cbor.UTF8RejectInvalid}.DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm}, nil
}

func (c CBOR) Encode(v *string) ([]byte, error) {
	if v == nil {
		return c.enc.Marshal(nil)
	}
	return c.enc.Marshal(*v)
}

func (c CBOR) Decode(b []byte) (*string, error) {
	var raw any
	if err := c.dec.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	switch x := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return &x, nil
	default:
		return nil, fmt.Errorf("codec: cbor value is %T, want string or null", x)
	}
}
