package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractList walks path through nested objects of doc and returns the list
// found at the end of it. SNIH wraps every payload in "d", and time-series
// payloads again in "Mediciones".
func ExtractList(doc []byte, path ...string) ([]json.RawMessage, error) {
	cur := json.RawMessage(doc)
	for _, key := range path {
		var obj map[string]json.RawMessage
		if !isObject(cur) || json.Unmarshal(cur, &obj) != nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingListProperty, key)
		}
		next, ok := obj[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingListProperty, key)
		}
		cur = next
	}

	trimmed := bytes.TrimSpace(cur)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedNonList, strings.Join(path, "."))
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnexpectedNonList, strings.Join(path, "."), err)
	}
	return items, nil
}

// DecodeRawRecords decodes list items into ordered raw records.
func DecodeRawRecords(items []json.RawMessage) ([]RawRecord, error) {
	out := make([]RawRecord, 0, len(items))
	for i, item := range items {
		var rec RawRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
