package llm

import (
	"encoding/json"
	"strings"
)

// SanitizeJSON prepares a model response for json.Unmarshal: strips
// markdown code fences and, when the result still fails to parse, repairs
// the escape mistakes models commonly make inside string values.
func SanitizeJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// A valid document may legitimately contain the sequences the repairs
	// rewrite, so they only run on input that does not parse as-is.
	if json.Valid([]byte(s)) {
		return s
	}

	// `\'` is not a valid JSON escape; a bare apostrophe is what was meant.
	s = strings.ReplaceAll(s, `\'`, `'`)
	// Double-escaped quotes inside values.
	s = strings.ReplaceAll(s, `\\"`, `\"`)

	return s
}
