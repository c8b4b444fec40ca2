package manager

import "encoding/json"

// encodeResult folds a handler's success value into the canonical wire form.
// json.RawMessage values pass through untouched.
func encodeResult(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
