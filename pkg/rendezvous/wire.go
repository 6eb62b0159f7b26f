package rendezvous

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodePaths serializes paths as the handoff payload: a UTF-8 JSON array of strings.
func EncodePaths(paths []string) ([]byte, error) {
	if paths == nil {
		paths = []string{}
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return nil, fmt.Errorf("encoding paths: %w", err)
	}
	return data, nil
}

// DecodePaths parses a handoff payload. Anything other than a JSON array of strings is an
// error. Empty strings are dropped.
func DecodePaths(data []byte) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, fmt.Errorf("decoding paths: payload is not a JSON array")
	}

	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding paths: %w", err)
	}

	paths := raw[:0]
	for _, p := range raw {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}
