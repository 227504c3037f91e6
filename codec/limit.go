package codec

import "fmt"

// Limit wraps c so that Decode refuses payloads over max bytes. Frames read
// from a shared provider may have been written by another process; this keeps
// an oversized one from being decoded. max <= 0 returns c unchanged.
func Limit(c Optional, max int) Optional {
	if max <= 0 {
		return c
	}
	return limited{inner: c, max: max}
}

type limited struct {
	inner Optional
	max   int
}

func (l limited) Encode(v *string) ([]byte, error) {
	b, err := l.inner.Encode(v)
	if err == nil && len(b) > l.max {
		return nil, fmt.Errorf("codec: encoded value is %d bytes, limit %d", len(b), l.max)
	}
	return b, err
}

func (l limited) Decode(b []byte) (*string, error) {
	if len(b) > l.max {
		return nil, fmt.Errorf("codec: payload is %d bytes, limit %d", len(b), l.max)
	}
	return l.inner.Decode(b)
}
