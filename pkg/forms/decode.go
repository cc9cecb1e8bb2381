package forms

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// ErrMalformedInput is returned when a submission cannot be decoded into
// flat field values.
var ErrMalformedInput = errors.New("forms: malformed input")

// ValuesFromURL flattens url.Values, keeping the first value per key.
func ValuesFromURL(in url.Values) map[string]any {
	out := make(map[string]any, len(in))
	for key, vals := range in {
		if len(vals) == 0 {
			continue
		}
		out[key] = vals[0]
	}
	return out
}

// ValuesFromQuery parses an application/x-www-form-urlencoded body.
func ValuesFromQuery(body string) (map[string]any, error) {
	parsed, err := url.ParseQuery(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return ValuesFromURL(parsed), nil
}

// ValuesFromJSON decodes a JSON object of scalar values. Nested objects and
// arrays are rejected.
func ValuesFromJSON(payload []byte) (map[string]any, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return map[string]any{}, nil
	}

	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	out := make(map[string]any, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil, string, bool:
			out[key] = v
		case json.Number:
			out[key] = v.String()
		default:
			return nil, fmt.Errorf("%w: field %q must be a scalar, got %T", ErrMalformedInput, key, value)
		}
	}
	return out, nil
}
