package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Validator turns a raw payload into a Result or a *ValidationError.
type Validator interface {
	Validate(raw string, schema *JSONSchema) (*Result, error)
}

// FieldError is one violation, located by field path.
type FieldError struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Message  string `json:"message"`
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s (expected %s)", displayPath(e.Path), e.Message, e.Expected)
}

// ValidationError collects every violation found in one payload.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return "validation failed: " + e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Error())
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Paths lists the offending field paths in report order.
func (e *ValidationError) Paths() []string {
	paths := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		paths = append(paths, fe.Path)
	}
	return paths
}

// HasPath reports whether path is among the violations.
func (e *ValidationError) HasPath(path string) bool {
	for _, fe := range e.Errors {
		if fe.Path == path {
			return true
		}
	}
	return false
}

// AdditionalPolicy decides what happens to fields a schema does not declare.
type AdditionalPolicy int

const (
	// IgnoreAdditional drops undeclared fields from the validated value.
	IgnoreAdditional AdditionalPolicy = iota
	// RejectAdditional reports undeclared fields as violations.
	RejectAdditional
)

// ValidatorOption configures a DefaultValidator.
type ValidatorOption func(*DefaultValidator)

// WithAdditionalFields sets the policy for undeclared fields. A schema's own
// additionalProperties setting takes precedence.
func WithAdditionalFields(policy AdditionalPolicy) ValidatorOption {
	return func(v *DefaultValidator) { v.additional = policy }
}

// WithStrictJSON requires the payload to be a bare JSON document, disabling
// extraction from fenced or prose-wrapped output.
func WithStrictJSON() ValidatorOption {
	return func(v *DefaultValidator) { v.strict = true }
}

// WithFormatChecker registers a checker for a named string format, replacing
// the built-in one of the same name.
func WithFormatChecker(format StringFormat, check func(string) bool) ValidatorOption {
	return func(v *DefaultValidator) { v.formats[format] = check }
}

// Rule is a cross-field check run on a value that already passed the schema.
// Returned errors are reported like schema violations.
type Rule func(value any, schema *JSONSchema) []FieldError

// WithRules appends rules run after structural validation succeeds.
func WithRules(rules ...Rule) ValidatorOption {
	return func(v *DefaultValidator) { v.rules = append(v.rules, rules...) }
}

// DefaultValidator is the default implementation of Validator. Once
// constructed it is safe for concurrent use.
type DefaultValidator struct {
	additional AdditionalPolicy
	strict     bool
	formats    map[StringFormat]func(string) bool
	rules      []Rule
	patterns   sync.Map // pattern -> *regexp.Regexp
}

// NewValidator creates a DefaultValidator with built-in format checkers.
func NewValidator(opts ...ValidatorOption) *DefaultValidator {
	v := &DefaultValidator{formats: builtinFormats()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// RegisterFormat registers a custom format checker. It must not be called
// concurrently with Validate.
func (v *DefaultValidator) RegisterFormat(format StringFormat, check func(string) bool) {
	v.formats[format] = check
}

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	uriPattern      = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://\S+$`)
	uuidPattern     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
)

func builtinFormats() map[StringFormat]func(string) bool {
	return map[StringFormat]func(string) bool{
		FormatEmail: emailPattern.MatchString,
		FormatURI:   uriPattern.MatchString,
		FormatUUID:  uuidPattern.MatchString,
		FormatDateTime: func(s string) bool {
			_, err := time.Parse(time.RFC3339, s)
			return err == nil
		},
		FormatDate: func(s string) bool {
			_, err := time.Parse(time.DateOnly, s)
			return err == nil
		},
		FormatTime: func(s string) bool {
			_, err := time.Parse("15:04:05Z07:00", s)
			if err != nil {
				_, err = time.Parse(time.TimeOnly, s)
			}
			return err == nil
		},
		FormatIPv4: func(s string) bool {
			ip := net.ParseIP(s)
			return ip != nil && ip.To4() != nil && !strings.Contains(s, ":")
		},
		FormatIPv6: func(s string) bool {
			ip := net.ParseIP(s)
			return ip != nil && strings.Contains(s, ":")
		},
		FormatHostname: func(s string) bool {
			return len(s) <= 253 && hostnamePattern.MatchString(s)
		},
	}
}

// Validate parses raw and checks it against schema. It never returns a
// partially valid value: any violation fails the whole payload.
func (v *DefaultValidator) Validate(raw string, schema *JSONSchema) (*Result, error) {
	if schema == nil {
		return nil, &ValidationError{Errors: []FieldError{{Expected: "schema", Message: "no schema supplied"}}}
	}

	doc := raw
	if !v.strict {
		doc = ExtractJSON(raw)
	}

	var value any
	if err := json.Unmarshal([]byte(doc), &value); err != nil {
		return nil, &ValidationError{Errors: []FieldError{{
			Expected: "a JSON document",
			Message:  fmt.Sprintf("invalid JSON: %v", err),
		}}}
	}

	var errs []FieldError
	out := v.validateValue(value, schema, "", &errs)
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	for _, rule := range v.rules {
		errs = append(errs, rule(out, schema)...)
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, &ValidationError{Errors: []FieldError{{
			Expected: "a JSON-encodable value",
			Message:  fmt.Sprintf("encode validated value: %v", err),
		}}}
	}
	return &Result{SchemaID: schema.Identity(), Value: out, JSON: data}, nil
}

// validateValue checks value and returns the normalised copy that goes into
// the Result.
func (v *DefaultValidator) validateValue(value any, schema *JSONSchema, path string, errs *[]FieldError) any {
	switch schema.EffectiveType() {
	case TypeString:
		return v.validateString(value, schema, path, errs)
	case TypeNumber:
		return v.validateNumber(value, schema, path, errs, false)
	case TypeInteger:
		return v.validateNumber(value, schema, path, errs, true)
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			addError(errs, path, "boolean", "got %s", describe(value))
		}
		return value
	case TypeObject:
		return v.validateObject(value, schema, path, errs)
	case TypeArray:
		return v.validateArray(value, schema, path, errs)
	case "":
		return value
	default:
		addError(errs, path, "a supported schema type", "schema declares unknown type %q", schema.Type)
		return nil
	}
}

func (v *DefaultValidator) validateString(value any, schema *JSONSchema, path string, errs *[]FieldError) any {
	str, ok := value.(string)
	if !ok {
		addError(errs, path, expectString(schema), "got %s", describe(value))
		return nil
	}

	if len(schema.Enum) > 0 {
		found := false
		for _, allowed := range schema.Enum {
			if str == allowed {
				found = true
				break
			}
		}
		if !found {
			addError(errs, path, fmt.Sprintf("one of %v", schema.Enum), "value %q is not allowed", str)
		}
	}

	n := utf8.RuneCountInString(str)
	if schema.MinLength != nil && n < *schema.MinLength {
		addError(errs, path, expectString(schema), "string length %d is less than minimum %d", n, *schema.MinLength)
	}
	if schema.MaxLength != nil && n > *schema.MaxLength {
		addError(errs, path, expectString(schema), "string length %d exceeds maximum %d", n, *schema.MaxLength)
	}

	if schema.Pattern != "" {
		re, err := v.compile(schema.Pattern)
		switch {
		case err != nil:
			addError(errs, path, expectString(schema), "invalid pattern %q: %v", schema.Pattern, err)
		case !re.MatchString(str):
			addError(errs, path, expectString(schema), "string does not match pattern %q", schema.Pattern)
		}
	}

	if schema.Format != "" {
		check, ok := v.formats[schema.Format]
		switch {
		case !ok:
			addError(errs, path, expectString(schema), "unknown format %q", schema.Format)
		case !check(str):
			addError(errs, path, expectString(schema), "string does not match format %q", schema.Format)
		}
	}
	return str
}

func (v *DefaultValidator) compile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := v.patterns.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	v.patterns.Store(pattern, re)
	return re, nil
}

func (v *DefaultValidator) validateNumber(value any, schema *JSONSchema, path string, errs *[]FieldError, integer bool) any {
	num, ok := value.(float64)
	if !ok {
		addError(errs, path, expectNumber(schema, integer), "got %s", describe(value))
		return nil
	}
	if integer && num != math.Trunc(num) {
		addError(errs, path, expectNumber(schema, integer), "value %v is not an integer", num)
		return nil
	}
	if schema.Minimum != nil && num < *schema.Minimum {
		addError(errs, path, expectNumber(schema, integer), "value %v is less than minimum %v", num, *schema.Minimum)
	}
	if schema.Maximum != nil && num > *schema.Maximum {
		addError(errs, path, expectNumber(schema, integer), "value %v exceeds maximum %v", num, *schema.Maximum)
	}
	return num
}

func (v *DefaultValidator) validateObject(value any, schema *JSONSchema, path string, errs *[]FieldError) any {
	obj, ok := value.(map[string]any)
	if !ok {
		addError(errs, path, "object", "got %s", describe(value))
		return nil
	}

	out := make(map[string]any, len(schema.Properties))
	for _, name := range sortedKeys(schema.Properties) {
		prop := schema.Properties[name]
		fieldPath := joinPath(path, name)
		val, present := obj[name]

		if !present || val == nil {
			switch {
			case schema.IsRequired(name) && !present:
				addError(errs, fieldPath, describeSchema(prop), "required field is missing")
			case schema.IsRequired(name):
				addError(errs, fieldPath, describeSchema(prop), "required field must not be null")
			case prop != nil && prop.Default != nil:
				out[name] = copyValue(prop.Default)
			}
			continue
		}
		if prop == nil {
			out[name] = val
			continue
		}
		out[name] = v.validateValue(val, prop, fieldPath, errs)
	}

	// Required names without a property definition still demand presence.
	for _, name := range schema.Required {
		if _, declared := schema.Properties[name]; declared {
			continue
		}
		val, present := obj[name]
		if !present || val == nil {
			addError(errs, joinPath(path, name), "a value", "required field is missing")
			continue
		}
		out[name] = val
	}

	for _, name := range sortedKeys(obj) {
		if _, declared := schema.Properties[name]; declared || schema.IsRequired(name) {
			continue
		}
		switch {
		case schema.AdditionalProperties != nil && *schema.AdditionalProperties:
			out[name] = obj[name]
		case schema.AdditionalProperties != nil, v.additional == RejectAdditional:
			addError(errs, joinPath(path, name), "no undeclared fields", "additional property not allowed")
		}
	}
	return out
}

func (v *DefaultValidator) validateArray(value any, schema *JSONSchema, path string, errs *[]FieldError) any {
	arr, ok := value.([]any)
	if !ok {
		addError(errs, path, describeSchema(schema), "got %s", describe(value))
		return nil
	}

	if schema.MinItems != nil && len(arr) < *schema.MinItems {
		addError(errs, path, describeSchema(schema), "array has %d items, minimum is %d", len(arr), *schema.MinItems)
	}
	if schema.MaxItems != nil && len(arr) > *schema.MaxItems {
		addError(errs, path, describeSchema(schema), "array has %d items, maximum is %d", len(arr), *schema.MaxItems)
	}

	out := make([]any, len(arr))
	for i, item := range arr {
		if schema.Items == nil {
			out[i] = item
			continue
		}
		out[i] = v.validateValue(item, schema.Items, fmt.Sprintf("%s[%d]", path, i), errs)
	}
	return out
}

func addError(errs *[]FieldError, path, expected, format string, args ...any) {
	*errs = append(*errs, FieldError{
		Path:     path,
		Expected: expected,
		Message:  fmt.Sprintf(format, args...),
	})
}

func expectString(s *JSONSchema) string {
	if len(s.Enum) > 0 {
		return fmt.Sprintf("one of %v", s.Enum)
	}
	var parts []string
	if s.MinLength != nil {
		parts = append(parts, fmt.Sprintf("length >= %d", *s.MinLength))
	}
	if s.MaxLength != nil {
		parts = append(parts, fmt.Sprintf("length <= %d", *s.MaxLength))
	}
	if s.Format != "" {
		parts = append(parts, fmt.Sprintf("format %s", s.Format))
	}
	if s.Pattern != "" {
		parts = append(parts, fmt.Sprintf("pattern %s", s.Pattern))
	}
	if len(parts) == 0 {
		return "string"
	}
	return "string with " + strings.Join(parts, " and ")
}

func expectNumber(s *JSONSchema, integer bool) string {
	kind := "number"
	if integer {
		kind = "integer"
	}
	switch {
	case s.Minimum != nil && s.Maximum != nil:
		return fmt.Sprintf("%s in [%v, %v]", kind, *s.Minimum, *s.Maximum)
	case s.Minimum != nil:
		return fmt.Sprintf("%s >= %v", kind, *s.Minimum)
	case s.Maximum != nil:
		return fmt.Sprintf("%s <= %v", kind, *s.Maximum)
	}
	return kind
}

func describeSchema(s *JSONSchema) string {
	if s == nil {
		return "a value"
	}
	switch s.EffectiveType() {
	case TypeString:
		return expectString(s)
	case TypeNumber:
		return expectNumber(s, false)
	case TypeInteger:
		return expectNumber(s, true)
	case TypeArray:
		if s.Items != nil {
			return "array of " + describeSchema(s.Items)
		}
		return "array"
	case "":
		return "a value"
	}
	return string(s.EffectiveType())
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", value)
}

// copyValue detaches a schema default so results never alias it.
func copyValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinPath(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + "." + segment
}

func displayPath(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}
