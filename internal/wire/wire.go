package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindEntry byte = 1
	hdrLen         = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("tresor: corrupt cache frame")
	magic4     = [...]byte{'T', 'R', 'S', 'R'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry frame: magic(4) | ver(1) | kind(1=entry) | gen(u64 be) | vlen(u32 be) | payload(vlen)
func EncodeEntry(gen uint64, payload []byte) []byte {
	b := make([]byte, hdrLen+len(payload))
	copy(b, magic4[:])
	b[4] = version
	b[5] = kindEntry
	binary.BigEndian.PutUint64(b[6:14], gen)
	binary.BigEndian.PutUint32(b[14:18], uint32(len(payload)))
	copy(b[hdrLen:], payload)
	return b
}

// DecodeEntry returns the generation and a payload slice aliasing b.
// Frames with trailing bytes are rejected.
func DecodeEntry(b []byte) (gen uint64, payload []byte, err error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return 0, nil, ErrCorrupt
	}
	gen = binary.BigEndian.Uint64(b[6:14])
	vlen := int(binary.BigEndian.Uint32(b[14:18]))
	if vlen != len(b)-hdrLen {
		return 0, nil, ErrCorrupt
	}
	return gen, b[hdrLen:], nil
}
