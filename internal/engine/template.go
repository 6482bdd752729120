package engine

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// ResolveTemplate substitutes {{path}} placeholders with values from the
// execution context. Paths are dot-separated and resolved against nested
// maps. A placeholder whose path does not resolve is left in the output
// verbatim, so a typo in a workflow surfaces in the message instead of
// silently producing an empty string.
func ResolveTemplate(template string, context map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(placeholderPattern.FindStringSubmatch(match)[1])

		value, ok := lookupPath(context, path)
		if !ok || value == nil {
			return match
		}

		return formatValue(value)
	})
}

// formatValue renders a resolved value for message interpolation.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; render whole values without
		// a trailing ".0".
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
