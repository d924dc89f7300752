package classify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject trims markdown fences and anything outside the outermost
// object braces. Providers occasionally wrap the payload despite the prompt.
func ExtractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return text[start : end+1], nil
}

// SanitizeResult normalizes a raw classification document so a slightly
// sloppy but usable payload can still validate:
//   - lowercases/trims the type discriminant
//   - trims title/summary, dropping them when empty
//   - coerces generic-bag values to strings (numbers arrive occasionally)
//   - removes unknown top-level keys (strict additionalProperties friendliness)
//
// Returns the cleaned document and the list of touched keys.
func SanitizeResult(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var touched []string

	if v, ok := m["type"].(string); ok {
		m["type"] = strings.ToLower(strings.TrimSpace(v))
	}

	for _, k := range []string{"title", "summary"} {
		if v, ok := m[k].(string); ok {
			s := strings.TrimSpace(v)
			if s == "" {
				delete(m, k)
				touched = append(touched, k+"(empty)")
			} else {
				m[k] = s
			}
		}
	}

	if bag, ok := m["fields"].(map[string]any); ok {
		for k, v := range bag {
			switch t := v.(type) {
			case string:
				bag[k] = strings.TrimSpace(t)
			case float64:
				bag[k] = trimFloat(t)
				touched = append(touched, "fields."+k+"(number)")
			case bool:
				bag[k] = fmt.Sprintf("%t", t)
				touched = append(touched, "fields."+k+"(bool)")
			case nil:
				delete(bag, k)
				touched = append(touched, "fields."+k+"(null)")
			default:
				delete(bag, k)
				touched = append(touched, "fields."+k+"(type)")
			}
		}
	}

	allowed := map[string]struct{}{
		"type": {}, "title": {}, "summary": {}, "fields": {},
		"event": {}, "contact": {}, "expense": {}, "address": {},
		"note": {}, "document": {},
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			touched = append(touched, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, touched, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, touched, nil
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
