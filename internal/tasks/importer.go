package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"dayplan/internal/schedule"
)

// File is the on-disk import format. A bare list of tasks is accepted too.
type File struct {
	Tasks []schedule.Task `json:"tasks"`
}

// ParseFile decodes a task file. name picks the format: .yaml/.yml are YAML,
// anything else is JSON. Unknown fields are rejected in both.
func ParseFile(name string, data []byte) ([]schedule.Task, error) {
	jb := data
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%s: yaml: %w", name, err)
		}
		b, err := json.Marshal(stringKeys(v))
		if err != nil {
			return nil, fmt.Errorf("%s: yaml->json: %w", name, err)
		}
		jb = b
	}

	trimmed := bytes.TrimSpace(jb)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []schedule.Task
		if err := decodeStrict(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return list, nil
	}
	var f File
	if err := decodeStrict(trimmed, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return f.Tasks, nil
}

func decodeStrict(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("trailing data")
		}
		return err
	}
	return nil
}

func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}
