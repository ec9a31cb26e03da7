package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// asJSON returns raw unchanged unless path names a YAML file, in which
// case the document is converted to JSON. One strict JSON decoder then
// serves both config formats.
func asJSON(path string, raw []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return raw, nil
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	out, err := json.Marshal(jsonSafe(doc))
	if err != nil {
		return nil, fmt.Errorf("yaml to json: %w", err)
	}
	return out, nil
}

// jsonSafe rewrites map keys to strings; YAML allows non-string keys that
// json.Marshal would otherwise choke on.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, elem := range t {
			t[k] = jsonSafe(elem)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			out[fmt.Sprint(k)] = jsonSafe(elem)
		}
		return out
	case []any:
		for i, elem := range t {
			t[i] = jsonSafe(elem)
		}
		return t
	default:
		return v
	}
}
