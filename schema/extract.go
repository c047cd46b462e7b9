package schema

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON pulls the JSON document out of model output that may wrap it in
// a markdown fence or surround it with prose. Text without any recognisable
// document is returned trimmed, so the parser reports the failure.
func ExtractJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return text
	}
	if text[0] == '{' || text[0] == '[' {
		return text
	}

	if strings.Contains(text, "```") {
		if m := fencedBlock.FindStringSubmatch(text); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		return text[start : end+1]
	}
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
