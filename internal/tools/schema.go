package tools

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Schema is a typed subset of JSON schema used for tool parameters.
// Supported types: string, integer, number, boolean, array, object.
type Schema struct {
	Type                 string             `json:"type"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	Minimum              *float64           `json:"minimum,omitempty"`
	Maximum              *float64           `json:"maximum,omitempty"`
	MinLength            *int               `json:"minLength,omitempty"`
	MaxLength            *int               `json:"maxLength,omitempty"`
	Pattern              string             `json:"pattern,omitempty"`
	AdditionalProperties bool               `json:"additionalProperties,omitempty"`
}

// ObjectSchema builds an object schema from property definitions.
func ObjectSchema(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: props, Required: required}
}

// StringProp builds a string property schema.
func StringProp(desc string) *Schema { return &Schema{Type: "string", Description: desc} }

// ValidationError aggregates every violation found in one pass.
type ValidationError struct {
	Tool       string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid args for %s: %s", e.Tool, strings.Join(e.Violations, "; "))
}

var knownTypes = map[string]bool{
	"string": true, "integer": true, "number": true,
	"boolean": true, "array": true, "object": true,
}

// Check verifies the schema itself is structurally valid.
func (s *Schema) Check() error {
	if s == nil {
		return nil
	}
	if !knownTypes[s.Type] {
		return fmt.Errorf("unknown schema type %q", s.Type)
	}
	if s.Pattern != "" {
		if _, err := regexp.Compile(s.Pattern); err != nil {
			return fmt.Errorf("bad pattern %q: %w", s.Pattern, err)
		}
	}
	for _, req := range s.Required {
		if _, ok := s.Properties[req]; !ok {
			return fmt.Errorf("required field %q has no property definition", req)
		}
	}
	for name, prop := range s.Properties {
		if err := prop.Check(); err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
	}
	if s.Items != nil {
		if err := s.Items.Check(); err != nil {
			return fmt.Errorf("items: %w", err)
		}
	}
	return nil
}

// Validate checks args against the schema and returns every violation.
// A nil schema accepts anything.
func (s *Schema) Validate(args map[string]any) []string {
	if s == nil {
		return nil
	}
	var violations []string
	s.validateObject("", args, &violations)
	return violations
}

func (s *Schema) validateObject(path string, obj map[string]any, out *[]string) {
	for _, req := range s.Required {
		if v, ok := obj[req]; !ok || v == nil {
			*out = append(*out, fmt.Sprintf("missing required field %q", join(path, req)))
		}
	}
	if !s.AdditionalProperties {
		var extra []string
		for key := range obj {
			if _, ok := s.Properties[key]; !ok {
				extra = append(extra, join(path, key))
			}
		}
		sort.Strings(extra)
		for _, key := range extra {
			*out = append(*out, fmt.Sprintf("unknown field %q", key))
		}
	}
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		prop, ok := s.Properties[key]
		if !ok || obj[key] == nil {
			continue
		}
		prop.validateValue(join(path, key), obj[key], out)
	}
}

func (s *Schema) validateValue(path string, v any, out *[]string) {
	switch s.Type {
	case "string":
		str, ok := v.(string)
		if !ok {
			*out = append(*out, fmt.Sprintf("%s: expected string, got %T", path, v))
			return
		}
		if s.MinLength != nil && len(str) < *s.MinLength {
			*out = append(*out, fmt.Sprintf("%s: shorter than minLength %d", path, *s.MinLength))
		}
		if s.MaxLength != nil && len(str) > *s.MaxLength {
			*out = append(*out, fmt.Sprintf("%s: longer than maxLength %d", path, *s.MaxLength))
		}
		if s.Pattern != "" {
			if re, err := regexp.Compile(s.Pattern); err == nil && !re.MatchString(str) {
				*out = append(*out, fmt.Sprintf("%s: does not match pattern %s", path, s.Pattern))
			}
		}
	case "integer":
		n, ok := asNumber(v)
		if !ok || n != float64(int64(n)) {
			*out = append(*out, fmt.Sprintf("%s: expected integer, got %v", path, v))
			return
		}
		s.checkBounds(path, n, out)
	case "number":
		n, ok := asNumber(v)
		if !ok {
			*out = append(*out, fmt.Sprintf("%s: expected number, got %T", path, v))
			return
		}
		s.checkBounds(path, n, out)
	case "boolean":
		if _, ok := v.(bool); !ok {
			*out = append(*out, fmt.Sprintf("%s: expected boolean, got %T", path, v))
		}
	case "array":
		arr, ok := v.([]any)
		if !ok {
			*out = append(*out, fmt.Sprintf("%s: expected array, got %T", path, v))
			return
		}
		if s.Items != nil {
			for i, item := range arr {
				s.Items.validateValue(fmt.Sprintf("%s[%d]", path, i), item, out)
			}
		}
	case "object":
		obj, ok := v.(map[string]any)
		if !ok {
			*out = append(*out, fmt.Sprintf("%s: expected object, got %T", path, v))
			return
		}
		s.validateObject(path, obj, out)
	}

	if len(s.Enum) > 0 {
		for _, allowed := range s.Enum {
			if equalScalar(v, allowed) {
				return
			}
		}
		*out = append(*out, fmt.Sprintf("%s: value %v not in enum", path, v))
	}
}

func (s *Schema) checkBounds(path string, n float64, out *[]string) {
	if s.Minimum != nil && n < *s.Minimum {
		*out = append(*out, fmt.Sprintf("%s: %v below minimum %v", path, n, *s.Minimum))
	}
	if s.Maximum != nil && n > *s.Maximum {
		*out = append(*out, fmt.Sprintf("%s: %v above maximum %v", path, n, *s.Maximum))
	}
}

// asNumber accepts the numeric shapes JSON decoding and in-process callers
// produce.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func equalScalar(a, b any) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an == bn
		}
		return false
	}
	return a == b
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
