package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// decodeField extracts the JSON object in text and decodes its field into out.
// Code fences and surrounding prose are tolerated.
func decodeField(text, field string, out any) error {
	obj := extractJSONObject(text)
	if obj == "" {
		return errors.New("no JSON object in response")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return fmt.Errorf("failed to parse structured response: %w", err)
	}
	raw, ok := fields[field]
	if !ok {
		return fmt.Errorf("structured response is missing %q", field)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse %q: %w", field, err)
	}
	return nil
}

func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
