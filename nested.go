package shadowban

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// decodeResponse decodes a JSON object, keeping numbers as json.Number so 64-bit
// ids and sort indexes survive.
func decodeResponse(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("decode response: not a JSON object")
	}
	return obj, nil
}

// lookup walks obj along path. It reports false when any step is missing or is
// not an object, so callers never have to guard intermediate keys.
func lookup(obj any, path ...string) (any, bool) {
	cur := obj
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func lookupMap(obj any, path ...string) (map[string]any, bool) {
	v, ok := lookup(obj, path...)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func lookupSlice(obj any, path ...string) ([]any, bool) {
	v, ok := lookup(obj, path...)
	if !ok {
		return nil, false
	}
	s, ok := v.([]any)
	return s, ok
}

// lookupString returns string values as-is and renders numbers in decimal,
// since the API mixes `"id": 123` and `"id_str": "123"`.
func lookupString(obj any, path ...string) (string, bool) {
	v, ok := lookup(obj, path...)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	}
	return "", false
}

// lookupInt accepts JSON numbers and numeric strings (sortIndex is a string).
func lookupInt(obj any, path ...string) (int64, bool) {
	v, ok := lookup(obj, path...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(n), true
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func lookupBool(obj any, path ...string) (bool, bool) {
	v, ok := lookup(obj, path...)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// tweetsOf returns the response's global tweet map.
func tweetsOf(resp map[string]any) (map[string]any, bool) {
	return lookupMap(resp, "globalObjects", "tweets")
}
