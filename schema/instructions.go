package schema

import (
	"sort"
	"strings"
)

// Instructions renders the system prompt block that asks the model to answer
// with a single JSON document conforming to s.
func Instructions(s *JSONSchema) string {
	if s == nil {
		return ""
	}
	data, err := s.ToJSONIndent()
	if err != nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("You MUST respond with valid JSON that conforms to the schema below.\n")
	sb.WriteString("Do NOT include any text before or after the JSON.\n")
	if req := requiredNames(s); len(req) > 0 {
		sb.WriteString("Required fields: ")
		sb.WriteString(strings.Join(req, ", "))
		sb.WriteString(".\n")
	}
	sb.WriteString("Follow every constraint in the schema (enum values, ranges, lengths, formats, patterns).\n\n")
	sb.WriteString("JSON Schema:\n```json\n")
	sb.Write(data)
	sb.WriteString("\n```\n")
	return sb.String()
}

// requiredNames lists the top-level required fields that have a definition.
func requiredNames(s *JSONSchema) []string {
	if s.EffectiveType() != TypeObject {
		return nil
	}
	names := make([]string, 0, len(s.Required))
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
