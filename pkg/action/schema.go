package action

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/parlancehq/parlance/pkg/errors"
)

// Kind is the declared type of a payload field.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindEnum   Kind = "enum"
	KindList   Kind = "list"
)

// Field is a single payload field descriptor.
type Field struct {
	Name        string
	Kind        Kind
	Required    bool
	Description string
	Enum        []string
	Minimum     *float64
	Maximum     *float64
	Default     any
}

// Schema is an ordered list of field descriptors. Order is preserved so
// prompts and error reports stay stable.
type Schema struct {
	Fields []Field
}

// NewSchema builds a schema from fields, marking the named ones required.
func NewSchema(fields []Field, required ...string) Schema {
	for _, name := range required {
		for i := range fields {
			if fields[i].Name == name {
				fields[i].Required = true
			}
		}
	}
	return Schema{Fields: fields}
}

// StringField creates a string field descriptor.
func StringField(name, desc string) Field {
	return Field{Name: name, Kind: KindString, Description: desc}
}

// IntField creates an integer field descriptor.
func IntField(name, desc string) Field {
	return Field{Name: name, Kind: KindInt, Description: desc}
}

// FloatField creates a floating-point field descriptor.
func FloatField(name, desc string) Field {
	return Field{Name: name, Kind: KindFloat, Description: desc}
}

// BoolField creates a boolean field descriptor.
func BoolField(name, desc string) Field {
	return Field{Name: name, Kind: KindBool, Description: desc}
}

// EnumField creates a string field constrained to specific values.
func EnumField(name, desc string, values ...string) Field {
	return Field{Name: name, Kind: KindEnum, Description: desc, Enum: values}
}

// ListField creates a list-of-strings field descriptor.
func ListField(name, desc string) Field {
	return Field{Name: name, Kind: KindList, Description: desc}
}

// WithDefault sets the value used when the field is absent.
func (f Field) WithDefault(v any) Field {
	f.Default = v
	return f
}

// WithRange bounds a numeric field inclusively.
func (f Field) WithRange(min, max float64) Field {
	f.Minimum = &min
	f.Maximum = &max
	return f
}

// WithMinimum bounds a numeric field from below.
func (f Field) WithMinimum(min float64) Field {
	f.Minimum = &min
	return f
}

// Validate checks a raw payload against the schema and returns the
// normalized payload: defaults applied, values coerced to the declared kind,
// unknown keys dropped. It is a pure function; failures carry a field-level
// message and the VALIDATION_FAILED code.
func (s Schema) Validate(raw map[string]any) (Payload, error) {
	out := make(Payload, len(s.Fields))

	for _, field := range s.Fields {
		value, present := raw[field.Name]
		if !present || value == nil {
			if field.Default != nil {
				out[field.Name] = field.Default
				continue
			}
			if field.Required {
				return nil, errors.Newf(errors.ErrCodeValidation,
					"field %q is required", field.Name).
					WithContext("field", field.Name)
			}
			continue
		}

		coerced, err := coerce(field, value)
		if err != nil {
			return nil, err
		}
		out[field.Name] = coerced
	}

	return out, nil
}

func coerce(field Field, value any) (any, error) {
	switch field.Kind {
	case KindString:
		str, ok := value.(string)
		if !ok {
			return nil, typeError(field, "a string", value)
		}
		return str, nil

	case KindEnum:
		str, ok := value.(string)
		if !ok {
			return nil, typeError(field, "a string", value)
		}
		for _, allowed := range field.Enum {
			if str == allowed {
				return str, nil
			}
		}
		return nil, errors.Newf(errors.ErrCodeValidation,
			"field %q must be one of [%s]", field.Name, strings.Join(field.Enum, ", ")).
			WithContext("field", field.Name)

	case KindInt:
		n, err := toFloat(value)
		if err != nil {
			return nil, typeError(field, "an integer", value)
		}
		if n != math.Trunc(n) {
			return nil, typeError(field, "an integer", value)
		}
		if err := checkRange(field, n); err != nil {
			return nil, err
		}
		return int(n), nil

	case KindFloat:
		n, err := toFloat(value)
		if err != nil {
			return nil, typeError(field, "a number", value)
		}
		if err := checkRange(field, n); err != nil {
			return nil, err
		}
		return n, nil

	case KindBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, typeError(field, "a boolean", value)
			}
			return b, nil
		default:
			return nil, typeError(field, "a boolean", value)
		}

	case KindList:
		switch v := value.(type) {
		case []any:
			return v, nil
		case []string:
			items := make([]any, len(v))
			for i, s := range v {
				items[i] = s
			}
			return items, nil
		default:
			return nil, typeError(field, "a list", value)
		}

	default:
		return nil, errors.Newf(errors.ErrCodeValidation,
			"field %q has unknown kind %q", field.Name, field.Kind).
			WithContext("field", field.Name)
	}
}

// toFloat accepts the numeric shapes JSON decoding and rule extraction
// produce: float64 from encoding/json, native ints from Go callers, and
// numeric strings from regex captures and AI replies.
func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("not numeric: %T", value)
	}
}

func checkRange(field Field, n float64) error {
	if field.Minimum != nil && n < *field.Minimum {
		return errors.Newf(errors.ErrCodeValidation,
			"field %q must be at least %v", field.Name, *field.Minimum).
			WithContext("field", field.Name)
	}
	if field.Maximum != nil && n > *field.Maximum {
		return errors.Newf(errors.ErrCodeValidation,
			"field %q must be at most %v", field.Name, *field.Maximum).
			WithContext("field", field.Name)
	}
	return nil
}

func typeError(field Field, want string, got any) error {
	return errors.Newf(errors.ErrCodeValidation,
		"field %q must be %s", field.Name, want).
		WithContext("field", field.Name).
		WithContext("got", fmt.Sprintf("%T", got))
}

// JSONSchema renders the schema as a JSON-Schema object map, the shape the
// structured parser sends to the model.
func (s Schema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Fields))
	var required []string

	for _, field := range s.Fields {
		prop := map[string]any{
			"type": jsonType(field.Kind),
		}
		if field.Description != "" {
			prop["description"] = field.Description
		}
		if len(field.Enum) > 0 {
			prop["enum"] = field.Enum
		}
		if field.Kind == KindList {
			prop["items"] = map[string]any{"type": "string"}
		}
		if field.Minimum != nil {
			prop["minimum"] = *field.Minimum
		}
		if field.Maximum != nil {
			prop["maximum"] = *field.Maximum
		}
		if field.Default != nil {
			prop["default"] = field.Default
		}
		properties[field.Name] = prop

		if field.Required {
			required = append(required, field.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonType(kind Kind) string {
	switch kind {
	case KindInt:
		return "integer"
	case KindFloat:
		return "number"
	case KindBool:
		return "boolean"
	case KindList:
		return "array"
	default:
		return "string"
	}
}
