package tool

import (
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf8"
)

// Validator checks tool inputs against a ToolSchema before the tool runs.
// It covers the subset of JSON Schema PropertyDef can express.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateInput checks required fields and the type and bounds of every
// known property. Unknown properties are allowed.
func (v *Validator) ValidateInput(schema ToolSchema, input json.RawMessage) error {
	if schema.Type != "object" {
		return fmt.Errorf("schema type must be 'object', got '%s'", schema.Type)
	}

	var fields map[string]any
	if len(input) == 0 {
		fields = map[string]any{}
	} else if err := json.Unmarshal(input, &fields); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}

	for _, name := range schema.Required {
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("missing required field: %s", name)
		}
	}

	for name, def := range schema.Properties {
		if value, ok := fields[name]; ok {
			if err := v.check(name, def, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Validator) check(path string, def PropertyDef, value any) error {
	if value == nil {
		return nil
	}

	switch def.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return typeError(path, def.Type, value)
		}
		if len(def.Enum) > 0 && !slices.Contains(def.Enum, s) {
			return fmt.Errorf("field '%s': value '%s' not in allowed values %v", path, s, def.Enum)
		}
		n := utf8.RuneCountInString(s)
		if def.MinLength != nil && n < *def.MinLength {
			return fmt.Errorf("field '%s': string length %d is less than minimum %d", path, n, *def.MinLength)
		}
		if def.MaxLength != nil && n > *def.MaxLength {
			return fmt.Errorf("field '%s': string length %d exceeds maximum %d", path, n, *def.MaxLength)
		}

	case "number", "integer":
		f, ok := value.(float64)
		if !ok {
			return typeError(path, def.Type, value)
		}
		if def.Type == "integer" && f != float64(int64(f)) {
			return fmt.Errorf("field '%s': expected integer, got float %v", path, f)
		}
		if def.Minimum != nil && f < *def.Minimum {
			return fmt.Errorf("field '%s': value %v is less than minimum %v", path, f, *def.Minimum)
		}
		if def.Maximum != nil && f > *def.Maximum {
			return fmt.Errorf("field '%s': value %v exceeds maximum %v", path, f, *def.Maximum)
		}

	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeError(path, def.Type, value)
		}

	case "array":
		items, ok := value.([]any)
		if !ok {
			return typeError(path, def.Type, value)
		}
		if def.Items != nil {
			for i, item := range items {
				if err := v.check(fmt.Sprintf("%s[%d]", path, i), *def.Items, item); err != nil {
					return err
				}
			}
		}

	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return typeError(path, def.Type, value)
		}
		for name, nested := range def.Properties {
			if nv, ok := obj[name]; ok {
				if err := v.check(path+"."+name, nested, nv); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func typeError(path, want string, got any) error {
	return fmt.Errorf("field '%s': expected %s, got %T", path, want, got)
}
