// Package schema models output schemas as data rather than as Go types.
// A Schema is declared once, rendered into model instructions, and used to
// validate the payload the model returns. Keeping the schema as a value lets
// it be versioned and evolved independently of any struct definition.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Schema describes the expected shape of a JSON value.
// Type is one of "object", "array", "string", "integer", "number", "boolean".
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Minimum     *float64           `json:"minimum,omitempty"`
	Maximum     *float64           `json:"maximum,omitempty"`
}

// Object builds an object schema from its property map and required list.
func Object(description string, properties map[string]*Schema, required []string) *Schema {
	return &Schema{
		Type:        "object",
		Description: description,
		Properties:  properties,
		Required:    required,
	}
}

// String builds a string schema.
func String(description string) *Schema {
	return &Schema{Type: "string", Description: description}
}

// Integer builds an integer schema with an inclusive range.
func Integer(description string, min, max float64) *Schema {
	return &Schema{Type: "integer", Description: description, Minimum: &min, Maximum: &max}
}

// Number builds a number schema with an inclusive range.
func Number(description string, min, max float64) *Schema {
	return &Schema{Type: "number", Description: description, Minimum: &min, Maximum: &max}
}

// ValidationError reports every problem found while validating a payload
// against a schema. It is returned as a single error so callers can surface
// the full list instead of fixing problems one round-trip at a time.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed: %s", strings.Join(e.Problems, "; "))
}

// Validate checks a decoded JSON value (the result of json.Unmarshal into
// any) against the schema. Unknown object keys are tolerated; missing
// required keys, type mismatches, range violations, and enum violations are
// collected into a *ValidationError.
func (s *Schema) Validate(v any) error {
	var problems []string
	s.validate("$", v, &problems)
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (s *Schema) validate(path string, v any, problems *[]string) {
	if v == nil {
		*problems = append(*problems, fmt.Sprintf("%s: expected %s, got null", path, s.Type))
		return
	}

	switch s.Type {
	case "object":
		obj, ok := v.(map[string]any)
		if !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected object, got %T", path, v))
			return
		}
		for _, name := range s.Required {
			if _, present := obj[name]; !present {
				*problems = append(*problems, fmt.Sprintf("%s.%s: required field missing", path, name))
			}
		}
		// Walk properties in a stable order so problem lists are deterministic.
		names := make([]string, 0, len(s.Properties))
		for name := range s.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			val, present := obj[name]
			if !present {
				continue
			}
			s.Properties[name].validate(path+"."+name, val, problems)
		}

	case "array":
		arr, ok := v.([]any)
		if !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected array, got %T", path, v))
			return
		}
		if s.Items != nil {
			for i, item := range arr {
				s.Items.validate(fmt.Sprintf("%s[%d]", path, i), item, problems)
			}
		}

	case "string":
		str, ok := v.(string)
		if !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected string, got %T", path, v))
			return
		}
		if len(s.Enum) > 0 && !contains(s.Enum, str) {
			*problems = append(*problems, fmt.Sprintf("%s: %q is not one of %s", path, str, strings.Join(s.Enum, ", ")))
		}

	case "integer":
		num, ok := v.(float64)
		if !ok || num != math.Trunc(num) {
			*problems = append(*problems, fmt.Sprintf("%s: expected integer, got %v", path, describe(v)))
			return
		}
		s.checkRange(path, num, problems)

	case "number":
		num, ok := v.(float64)
		if !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected number, got %v", path, describe(v)))
			return
		}
		s.checkRange(path, num, problems)

	case "boolean":
		if _, ok := v.(bool); !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected boolean, got %T", path, v))
		}

	default:
		*problems = append(*problems, fmt.Sprintf("%s: unknown schema type %q", path, s.Type))
	}
}

func (s *Schema) checkRange(path string, num float64, problems *[]string) {
	if s.Minimum != nil && num < *s.Minimum {
		*problems = append(*problems, fmt.Sprintf("%s: %v is below minimum %v", path, num, *s.Minimum))
	}
	if s.Maximum != nil && num > *s.Maximum {
		*problems = append(*problems, fmt.Sprintf("%s: %v is above maximum %v", path, num, *s.Maximum))
	}
}

// Instructions renders the schema as a JSON document suitable for embedding
// in a model instruction ("respond with JSON matching this schema").
func (s *Schema) Instructions() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		// Schema values are built from literals; marshal cannot fail in practice.
		return "{}"
	}
	return string(data)
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

// describe formats a decoded JSON value for an error message, showing strings
// quoted so `"7"` and `7` read differently.
func describe(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v (%T)", v, v)
}
