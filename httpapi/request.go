package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/unkn0wn-root/tresor"
)

// Limits bound request bodies and string fields.
type Limits struct {
	MaxBody     int // single-entry routes
	MaxString   int
	MaxManyBody int // get_many body and string fields
}

func DefaultLimits() Limits {
	return Limits{MaxBody: 512, MaxString: 512, MaxManyBody: 1024 * 1024}
}

type fieldType uint8

const (
	typeString fieldType = iota
	typeArray
	typeStringOrNull
)

func (t fieldType) String() string {
	switch t {
	case typeArray:
		return "Array"
	case typeStringOrNull:
		return "String or null"
	default:
		return "String"
	}
}

type field struct {
	name     string
	typ      fieldType
	required bool
}

// request is a parsed JSON object body.
type request struct {
	raw    []byte
	fields map[string]json.RawMessage
}

func (r *request) str(name string) string {
	var s string
	_ = json.Unmarshal(r.fields[name], &s)
	return s
}

// optStr returns nil for an explicit null or a missing field.
func (r *request) optStr(name string) *string {
	raw, ok := r.fields[name]
	if !ok || isNull(raw) {
		return nil
	}
	s := r.str(name)
	return &s
}

func badRequest(msg string) error {
	return &tresor.Error{Kind: tresor.KindValidation, Op: "parse", Msg: msg}
}

// readBody reads at most max-1 bytes; a body of max bytes or more is rejected.
func readBody(r *http.Request, max int) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, int64(max)))
	if err != nil {
		return nil, badRequest("unreadable body")
	}
	if len(b) >= max {
		return b, badRequest("too_much_data")
	}
	return b, nil
}

// parseRequest reads and validates a JSON object body. The raw body is
// returned alongside validation errors for logging.
func parseRequest(r *http.Request, maxBody, maxString int, fields ...field) (*request, error) {
	body, err := readBody(r, maxBody)
	req := &request{raw: body}
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(body, &req.fields); err != nil || req.fields == nil {
		return req, badRequest("invalid json object")
	}
	for _, f := range fields {
		raw, ok := req.fields[f.name]
		if !ok {
			if f.required {
				return req, badRequest("missing key: " + f.name)
			}
			continue
		}
		if err := checkField(raw, f, maxString); err != nil {
			return req, err
		}
	}
	return req, nil
}

func checkField(raw json.RawMessage, f field, maxString int) error {
	raw = bytes.TrimSpace(raw)
	wrongType := badRequest(fmt.Sprintf("%s is a %s", f.name, f.typ))
	switch f.typ {
	case typeArray:
		if len(raw) == 0 || raw[0] != '[' {
			return wrongType
		}
		return nil
	case typeStringOrNull:
		if isNull(raw) {
			return nil
		}
	}
	var s string
	if len(raw) == 0 || raw[0] != '"' || json.Unmarshal(raw, &s) != nil {
		return wrongType
	}
	if len([]rune(s)) > maxString {
		return badRequest("too_much_data")
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
