package internal

import (
	"strings"
)

// FilterAttributes projects attributes onto the requested names.
// If attrs is empty the original map is returned unchanged; names that are
// blank or absent are skipped.
func FilterAttributes(attributes map[string]any, attrs []string) map[string]any {
	if len(attrs) == 0 {
		return attributes
	}

	result := make(map[string]any, len(attrs))
	for _, name := range attrs {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if val, ok := attributes[name]; ok {
			result[name] = val
		}
	}
	return result
}
