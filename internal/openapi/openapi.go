// Package openapi serves the API description of the user management
// endpoints.
package openapi

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var document []byte

// Document is the parsed description.
type Document map[string]any

func Load() (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(document, &doc); err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	return doc, nil
}

// JSON renders the description for /api/openapi.json.
func JSON() ([]byte, error) {
	doc, err := Load()
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// ErrorCodes lists the error codes the description allows.
func (d Document) ErrorCodes() []string {
	var codes []string
	enum, _ := dig(d, "components", "schemas", "Error", "properties", "error", "properties", "code", "enum").([]any)
	for _, v := range enum {
		if s, ok := v.(string); ok {
			codes = append(codes, s)
		}
	}
	return codes
}

// Paths lists the documented paths.
func (d Document) Paths() []string {
	paths, _ := d["paths"].(map[string]any)
	out := make([]string, 0, len(paths))
	for p := range paths {
		out = append(out, p)
	}
	return out
}

func dig(v any, keys ...string) any {
	for _, k := range keys {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[k]
	}
	return v
}
