package ingest

import (
	"fmt"
	"time"
)

// Item field helpers. Upstream payloads arrive as generic JSON maps; these
// pull typed values out and map absence to nil so optional fields land as
// SQL NULL.

const dateLayout = "2006-01-02"

func strField(item map[string]any, key string) any {
	if s, ok := item[key].(string); ok && s != "" {
		return s
	}
	return nil
}

// requireStr is for fields that feed the conflict key; absence fails the item.
func requireStr(item map[string]any, key string) (string, error) {
	s, ok := item[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("missing required field %q", key)
	}
	return s, nil
}

func requireInt(item map[string]any, key string) (int, error) {
	switch v := item[key].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("missing required field %q", key)
	}
}

func intField(item map[string]any, key string) any {
	switch v := item[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return nil
	}
}

// firstStrField handles fields that arrive as either a string or a list of
// strings, keeping the first entry.
func firstStrField(item map[string]any, key string) any {
	switch v := item[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s != "" {
				return s
			}
		}
	}
	return nil
}

func boolField(item map[string]any, key string) any {
	if b, ok := item[key].(bool); ok {
		return b
	}
	return nil
}

func mapField(item map[string]any, key string) map[string]any {
	m, _ := item[key].(map[string]any)
	return m
}

func listField(item map[string]any, key string) []map[string]any {
	raw, _ := item[key].([]any)
	if raw == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func strListField(item map[string]any, key string) []string {
	raw, _ := item[key].([]any)
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// dateField parses a YYYY-MM-DD value; unparseable or absent is nil.
func dateField(item map[string]any, key string) any {
	s, ok := item[key].(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return t
}

// timestampField parses an ISO timestamp, with or without zone; unparseable
// or absent is nil.
func timestampField(item map[string]any, key string) any {
	s, ok := item[key].(string)
	if !ok || s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return nil
}
