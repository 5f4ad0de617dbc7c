package main

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"latdyn/internal/services"
)

// parseFields turns repeated key=value flags into document fields. Values are
// decoded as YAML scalars so numbers and booleans keep their type.
func parseFields(values []string) (map[string]any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, services.Wrap(services.ErrValidation, "flags", "field", fmt.Sprintf("%q: expected key=value", raw), nil)
		}
		var decoded any
		if err := yaml.Unmarshal([]byte(value), &decoded); err != nil || decoded == nil {
			decoded = value
		}
		out[key] = decoded
	}
	return out, nil
}
