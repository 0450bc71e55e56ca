package providers

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fenceOpenRe  = regexp.MustCompile("^```[a-zA-Z]*")
	jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// parseJSONObject extracts a JSON object from model output, tolerating
// markdown fences and surrounding prose. Returns nil when nothing usable
// is found.
func parseJSONObject(raw string) map[string]any {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimSpace(fenceOpenRe.ReplaceAllString(text, ""))
		text = strings.TrimSpace(strings.TrimSuffix(text, "```"))
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed
	}
	if match := jsonObjectRe.FindString(text); match != "" {
		if err := json.Unmarshal([]byte(match), &parsed); err == nil {
			return parsed
		}
	}
	return nil
}

// asFloat coerces the numeric shapes JSON decoding produces.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		var f float64
		if err := json.Unmarshal([]byte(n), &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
