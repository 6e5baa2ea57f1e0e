package chain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncodeJSONToB64 marshals v to JSON and base64-encodes the result. This is
// the wire encoding for batch-query ids, sub-query payloads, and the embedded
// messages carried by token send calls.
func EncodeJSONToB64(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode to base64 json: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeB64ToJSON reverses EncodeJSONToB64 into out.
func DecodeB64ToJSON(encoded string, out any) error {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode base64 json: %w", err)
	}
	return nil
}
