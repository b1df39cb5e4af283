package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals an LLM text response into v, tolerating the common
// failure modes of model output: fenced code blocks and prose surrounding
// the JSON object. It first strips Markdown fences, then attempts a direct
// parse, then falls back to the outermost braced region.
func DecodeJSON(text string, v any) error {
	cleaned := StripFences(text)
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}
	start := strings.IndexAny(cleaned, "{[")
	if start < 0 {
		return fmt.Errorf("model: no JSON found in response")
	}
	var end int
	if cleaned[start] == '{' {
		end = strings.LastIndex(cleaned, "}")
	} else {
		end = strings.LastIndex(cleaned, "]")
	}
	if end <= start {
		return fmt.Errorf("model: no JSON found in response")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), v); err != nil {
		return fmt.Errorf("model: decode response JSON: %w", err)
	}
	return nil
}

// StripFences removes a surrounding Markdown code fence, with or without a
// language tag, from the response text.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line (for example "json").
		first := strings.TrimSpace(s[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}[]") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
