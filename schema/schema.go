package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
)

// SchemaType represents JSON Schema types.
type SchemaType string

const (
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
)

// StringFormat represents common string format constraints.
type StringFormat string

const (
	FormatDateTime StringFormat = "date-time"
	FormatDate     StringFormat = "date"
	FormatTime     StringFormat = "time"
	FormatEmail    StringFormat = "email"
	FormatURI      StringFormat = "uri"
	FormatUUID     StringFormat = "uuid"
	FormatHostname StringFormat = "hostname"
	FormatIPv4     StringFormat = "ipv4"
	FormatIPv6     StringFormat = "ipv6"
)

// JSONSchema is the declarative contract for one value. Objects nest other
// schemas through Properties, lists through Items.
//
// A schema is treated as an immutable value once it has been handed to a
// validator or client: its Identity feeds the cache fingerprint, so mutating
// it afterwards silently changes which cached results it matches.
type JSONSchema struct {
	Schema      string     `json:"$schema,omitempty"`
	ID          string     `json:"$id,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Type        SchemaType `json:"type,omitempty"`

	// Object
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`

	// Array
	Items    *JSONSchema `json:"items,omitempty"`
	MinItems *int        `json:"minItems,omitempty"`
	MaxItems *int        `json:"maxItems,omitempty"`

	// Enum, string only
	Enum []string `json:"enum,omitempty"`

	// String
	MinLength *int         `json:"minLength,omitempty"`
	MaxLength *int         `json:"maxLength,omitempty"`
	Pattern   string       `json:"pattern,omitempty"`
	Format    StringFormat `json:"format,omitempty"`

	// Numeric
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	Default any `json:"default,omitempty"`
}

// NewObjectSchema creates a new object schema.
func NewObjectSchema() *JSONSchema {
	return &JSONSchema{
		Type:       TypeObject,
		Properties: make(map[string]*JSONSchema),
	}
}

// NewArraySchema creates a list-of-schema.
func NewArraySchema(items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: TypeArray, Items: items}
}

// NewStringSchema creates a new string schema.
func NewStringSchema() *JSONSchema {
	return &JSONSchema{Type: TypeString}
}

// NewNumberSchema creates a new number schema.
func NewNumberSchema() *JSONSchema {
	return &JSONSchema{Type: TypeNumber}
}

// NewIntegerSchema creates a new integer schema.
func NewIntegerSchema() *JSONSchema {
	return &JSONSchema{Type: TypeInteger}
}

// NewBooleanSchema creates a new boolean schema.
func NewBooleanSchema() *JSONSchema {
	return &JSONSchema{Type: TypeBoolean}
}

// NewEnumSchema creates a string schema restricted to values.
func NewEnumSchema(values ...string) *JSONSchema {
	return &JSONSchema{Type: TypeString, Enum: values}
}

// WithTitle sets the title and returns the schema for chaining.
func (s *JSONSchema) WithTitle(title string) *JSONSchema {
	s.Title = title
	return s
}

// WithDescription sets the description and returns the schema for chaining.
func (s *JSONSchema) WithDescription(desc string) *JSONSchema {
	s.Description = desc
	return s
}

// WithDefault sets the value filled in when an optional field is absent.
func (s *JSONSchema) WithDefault(def any) *JSONSchema {
	s.Default = def
	return s
}

// AddProperty adds a property to an object schema.
func (s *JSONSchema) AddProperty(name string, prop *JSONSchema) *JSONSchema {
	if s.Properties == nil {
		s.Properties = make(map[string]*JSONSchema)
	}
	s.Properties[name] = prop
	return s
}

// AddRequired adds required field names to an object schema.
func (s *JSONSchema) AddRequired(names ...string) *JSONSchema {
	s.Required = append(s.Required, names...)
	return s
}

// WithRange sets an inclusive numeric range.
func (s *JSONSchema) WithRange(min, max float64) *JSONSchema {
	s.Minimum = &min
	s.Maximum = &max
	return s
}

// WithMinimum sets the minimum value for numeric schema.
func (s *JSONSchema) WithMinimum(min float64) *JSONSchema {
	s.Minimum = &min
	return s
}

// WithMaximum sets the maximum value for numeric schema.
func (s *JSONSchema) WithMaximum(max float64) *JSONSchema {
	s.Maximum = &max
	return s
}

// WithLength sets an inclusive string length range.
func (s *JSONSchema) WithLength(min, max int) *JSONSchema {
	s.MinLength = &min
	s.MaxLength = &max
	return s
}

// WithMinLength sets the minimum length for string schema.
func (s *JSONSchema) WithMinLength(min int) *JSONSchema {
	s.MinLength = &min
	return s
}

// WithMaxLength sets the maximum length for string schema.
func (s *JSONSchema) WithMaxLength(max int) *JSONSchema {
	s.MaxLength = &max
	return s
}

// WithPattern sets a regular expression the string must match.
func (s *JSONSchema) WithPattern(pattern string) *JSONSchema {
	s.Pattern = pattern
	return s
}

// WithFormat sets a named string format such as FormatDate.
func (s *JSONSchema) WithFormat(format StringFormat) *JSONSchema {
	s.Format = format
	return s
}

// WithMinItems sets the minimum items for array schema.
func (s *JSONSchema) WithMinItems(min int) *JSONSchema {
	s.MinItems = &min
	return s
}

// WithMaxItems sets the maximum items for array schema.
func (s *JSONSchema) WithMaxItems(max int) *JSONSchema {
	s.MaxItems = &max
	return s
}

// WithAdditionalProperties overrides the validator's policy for unexpected
// fields on this object.
func (s *JSONSchema) WithAdditionalProperties(allowed bool) *JSONSchema {
	s.AdditionalProperties = &allowed
	return s
}

// IsRequired checks if a property is required.
func (s *JSONSchema) IsRequired(name string) bool {
	for _, req := range s.Required {
		if req == name {
			return true
		}
	}
	return false
}

// Identity returns a stable digest of the schema. Two schemas with the same
// content share an identity regardless of how they were built: map keys are
// sorted by encoding/json, and Required is order-sensitive on purpose since
// it is part of the rendered prompt.
func (s *JSONSchema) Identity() string {
	if s == nil {
		return ""
	}
	data, err := json.Marshal(s)
	if err != nil {
		// Default values that cannot be marshaled still need a stable key.
		data = []byte(fmt.Sprintf("%#v", s))
	}
	sum := sha256.Sum256(data)
	return "schema:" + hex.EncodeToString(sum[:16])
}

// Label is a short human name for logs: the $id or title when present.
func (s *JSONSchema) Label() string {
	switch {
	case s == nil:
		return ""
	case s.ID != "":
		return s.ID
	case s.Title != "":
		return s.Title
	default:
		return string(s.EffectiveType())
	}
}

// EffectiveType returns Type, or the type implied by the keywords present
// when Type is omitted: properties/required imply an object, items an array,
// string constraints a string and numeric bounds a number. A schema with no
// constraining keyword at all yields "" and accepts any value.
func (s *JSONSchema) EffectiveType() SchemaType {
	switch {
	case s == nil:
		return ""
	case s.Type != "":
		return s.Type
	case len(s.Properties) > 0, len(s.Required) > 0, s.AdditionalProperties != nil:
		return TypeObject
	case s.Items != nil, s.MinItems != nil, s.MaxItems != nil:
		return TypeArray
	case len(s.Enum) > 0, s.MinLength != nil, s.MaxLength != nil, s.Pattern != "", s.Format != "":
		return TypeString
	case s.Minimum != nil, s.Maximum != nil:
		return TypeNumber
	}
	return ""
}

// ToJSONIndent serializes the schema to indented JSON.
func (s *JSONSchema) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FromJSON deserializes a schema from JSON. Keywords the validator does not
// implement are rejected rather than ignored.
func FromJSON(data []byte) (*JSONSchema, error) {
	var s JSONSchema
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON schema: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("failed to unmarshal JSON schema: trailing data after document")
	}
	if err := s.Check(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Check reports schema definitions the validator cannot honour, such as a
// required field without a property or an array without items.
func (s *JSONSchema) Check() error {
	return s.check("")
}

func (s *JSONSchema) check(path string) error {
	if s == nil {
		return fmt.Errorf("%s: schema is nil", displayPath(path))
	}
	t := s.EffectiveType()
	switch t {
	case "", TypeString, TypeNumber, TypeInteger, TypeBoolean:
	case TypeObject:
		for _, req := range s.Required {
			if _, ok := s.Properties[req]; !ok {
				return fmt.Errorf("%s: required field %q has no property definition", displayPath(path), req)
			}
		}
		for name, prop := range s.Properties {
			if err := prop.check(joinPath(path, name)); err != nil {
				return err
			}
		}
	case TypeArray:
		if s.Items == nil {
			return fmt.Errorf("%s: array schema needs items", displayPath(path))
		}
		return s.Items.check(path + "[]")
	default:
		return fmt.Errorf("%s: unsupported type %q", displayPath(path), s.Type)
	}
	if len(s.Enum) > 0 && t != TypeString {
		return fmt.Errorf("%s: enum is only supported on string schemas", displayPath(path))
	}
	if (s.Pattern != "" || s.Format != "") && t != TypeString {
		return fmt.Errorf("%s: pattern and format are only supported on string schemas", displayPath(path))
	}
	if s.Pattern != "" {
		if _, err := regexp.Compile(s.Pattern); err != nil {
			return fmt.Errorf("%s: invalid pattern %q: %w", displayPath(path), s.Pattern, err)
		}
	}
	if s.Minimum != nil && s.Maximum != nil && *s.Minimum > *s.Maximum {
		return fmt.Errorf("%s: minimum %v exceeds maximum %v", displayPath(path), *s.Minimum, *s.Maximum)
	}
	return nil
}
