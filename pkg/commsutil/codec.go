package commsutil

import "encoding/json"

// EncodePayload serializes an envelope or reply to JSON bytes for publishing.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes from a message into the given target.
func DecodePayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
