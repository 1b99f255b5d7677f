package condition

import (
	"fmt"
	"strings"
)

// Format renders a single condition to the human-readable form used by the
// list and simulate commands, e.g. fileExists("docs/") or
// fileContains("go.mod", /^module /).
func Format(c Condition) string {
	if len(c) != 1 {
		return fmt.Sprintf("%v", map[string]any(c))
	}

	var condType string
	var condValue any
	for k, v := range c {
		condType, condValue = k, v
	}

	switch condType {
	case "not":
		if wrapped, ok := condValue.(map[string]any); ok {
			return fmt.Sprintf("not(%s)", Format(Condition(wrapped)))
		}
		return fmt.Sprintf("not(%v)", condValue)
	case "fileExists":
		return fmt.Sprintf("fileExists(%q)", condValue)
	case "gitBranch":
		return fmt.Sprintf("gitBranch(%q)", condValue)
	case "envSet":
		return fmt.Sprintf("envSet(%q)", condValue)
	case "envEquals":
		if fields, ok := condValue.(map[string]any); ok {
			varName := stringOr(fields["var"], "?")
			val := stringOr(fields["value"], "?")
			return fmt.Sprintf("envEquals(%s, %q)", varName, val)
		}
		return fmt.Sprintf("envEquals(%v)", condValue)
	case "fileContains":
		if fields, ok := condValue.(map[string]any); ok {
			file := stringOr(fields["file"], "?")
			pattern := stringOr(fields["pattern"], "?")
			if fields["regex"] == true {
				return fmt.Sprintf("fileContains(%q, /%s/)", file, pattern)
			}
			return fmt.Sprintf("fileContains(%q, %q)", file, pattern)
		}
		return fmt.Sprintf("fileContains(%v)", condValue)
	}

	return fmt.Sprintf("%s(%v)", condType, condValue)
}

// FormatAll joins multiple conditions with AND. An empty list renders as
// "(none)".
func FormatAll(conditions []Condition) string {
	if len(conditions) == 0 {
		return "(none)"
	}
	parts := make([]string, 0, len(conditions))
	for _, c := range conditions {
		parts = append(parts, Format(c))
	}
	return strings.Join(parts, " AND ")
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return fallback
	}
	return fmt.Sprintf("%v", v)
}
