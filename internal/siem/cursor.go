package siem

import (
	"encoding/base64"
	"fmt"
)

// Cursors are the search_after sort values of the last returned document,
// JSON-serialized and base64url-encoded. Decoding an encoded cursor yields
// the original sort values.

// EncodeCursor serializes sort values into an opaque token.
func EncodeCursor(sortValues []any) (string, error) {
	if len(sortValues) == 0 {
		return "", nil
	}
	data, err := json.Marshal(sortValues)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeCursor recovers the sort values from a token produced by
// EncodeCursor.
func DecodeCursor(token string) ([]any, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var values []any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("malformed cursor payload: %w", err)
	}
	return values, nil
}
