package expand

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("expand: malformed template")

// UnmarshalJSON accepts ["key", value] or ["key", [value, ...]], where each
// value is a JSON string or number. Numbers keep their literal text.
func (d *Dimension) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("%w: dimension is not an array", ErrMalformed)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: dimension needs [key, values], got %d elements", ErrMalformed, len(pair))
	}
	var key string
	if err := json.Unmarshal(pair[0], &key); err != nil {
		return fmt.Errorf("%w: dimension key is not a string", ErrMalformed)
	}

	raw := bytes.TrimSpace(pair[1])
	if len(raw) > 0 && raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("%w: values of %q: %v", ErrMalformed, key, err)
		}
		vals := make([]string, len(items))
		for i, it := range items {
			v, err := scalarText(it)
			if err != nil {
				return fmt.Errorf("%w: values of %q[%d]: %v", ErrMalformed, key, i, err)
			}
			vals[i] = v
		}
		*d = Dimension{Key: key, Values: vals, List: true}
		return nil
	}

	v, err := scalarText(raw)
	if err != nil {
		return fmt.Errorf("%w: value of %q: %v", ErrMalformed, key, err)
	}
	*d = Scalar(key, v)
	return nil
}

func (d Dimension) MarshalJSON() ([]byte, error) {
	if d.List {
		vals := d.Values
		if vals == nil {
			vals = []string{}
		}
		return json.Marshal([]any{d.Key, vals})
	}
	if len(d.Values) != 1 {
		return nil, fmt.Errorf("%w: scalar %q has %d values", ErrMalformed, d.Key, len(d.Values))
	}
	return json.Marshal([]any{d.Key, d.Values[0]})
}

// Validate reports dimensions that Expand cannot handle.
func (t Template) Validate() error {
	for i, d := range t {
		if !d.List && len(d.Values) != 1 {
			return fmt.Errorf("%w: dimension %d (%q) is scalar with %d values", ErrMalformed, i, d.Key, len(d.Values))
		}
	}
	return nil
}

func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errors.New("empty value")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", fmt.Errorf("unsupported value %s", raw)
	}
}
