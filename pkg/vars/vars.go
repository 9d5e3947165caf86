// Package vars parses the repeatable -e/--extra-vars CLI values the
// controller passes through to playbook jobs. Accepted forms, matching the
// upstream playbook CLI: "key=value", inline JSON or YAML mappings, and
// "@file" loading a JSON or YAML file. Later values win on key collision.
package vars

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse merges a list of --extra-vars values into one mapping.
func Parse(values []string) (map[string]any, error) {
	merged := make(map[string]any)
	for _, v := range values {
		parsed, err := parseOne(v)
		if err != nil {
			return nil, err
		}
		for k, val := range parsed {
			merged[k] = val
		}
	}
	return merged, nil
}

func parseOne(value string) (map[string]any, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if strings.HasPrefix(value, "@") {
		path := value[1:]
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read extra-vars file %s: %w", path, err)
		}
		return parseMapping(string(data), path)
	}

	// YAML is a JSON superset, so one decoder covers both inline forms.
	if strings.HasPrefix(value, "{") {
		return parseMapping(value, "inline")
	}

	key, val, found := strings.Cut(value, "=")
	if !found || key == "" {
		return nil, fmt.Errorf("invalid extra-vars value %q: want key=value, JSON, or @file", value)
	}
	return map[string]any{key: val}, nil
}

func parseMapping(text, source string) (map[string]any, error) {
	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse extra-vars from %s: %w", source, err)
	}
	return parsed, nil
}
