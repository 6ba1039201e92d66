package llm

import (
	"encoding/json"
	"strconv"
	"strings"
)

// StripJSONFences removes markdown code fences and any prose around the
// JSON object. Vision models routinely wrap their answer in ```json
// blocks or prepend a sentence before the payload.
func StripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// SanitizeDocumentJSON repairs common extraction defects before
// validation: numeric fields returned as strings and null entries in
// the candidate or item arrays. It returns the raw input unchanged when
// it cannot decode the payload at all.
func SanitizeDocumentJSON(raw []byte) []byte {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return raw
	}

	if items, ok := doc["items"].([]any); ok {
		cleaned := make([]any, 0, len(items))
		for _, entry := range items {
			item, ok := entry.(map[string]any)
			if !ok || item == nil {
				continue
			}
			coerceNumber(item, "qty")
			coerceNumber(item, "price")
			cleaned = append(cleaned, item)
		}
		doc["items"] = cleaned
	}

	if candidates, ok := doc["style_candidates"].([]any); ok {
		cleaned := make([]any, 0, len(candidates))
		for _, entry := range candidates {
			if cand, ok := entry.(map[string]any); ok && cand != nil {
				cleaned = append(cleaned, cand)
			}
		}
		doc["style_candidates"] = cleaned
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return raw
	}
	return out
}

func coerceNumber(m map[string]any, key string) {
	s, ok := m[key].(string)
	if !ok {
		return
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		delete(m, key)
		return
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		m[key] = f
	}
}
