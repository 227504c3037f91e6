package codec

import "encoding/json"

// JSON is the default value codec: null when absent, a JSON string otherwise.
type JSON struct{}

var _ Optional = JSON{}

func (JSON) Encode(v *string) ([]byte, error) { return json.Marshal(v) }

func (JSON) Decode(b []byte) (*string, error) {
	var v *string
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
