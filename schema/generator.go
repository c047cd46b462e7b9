package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// For 从 Go 类型 T 生成 JSON Schema.
func For[T any]() (*JSONSchema, error) {
	return FromType(reflect.TypeOf((*T)(nil)).Elem())
}

// FromType 利用反射从 Go 类型生成 JSON Schema.
//
// 字段名取自 "json" 标签, 约束取自 "schema" 标签, 例如:
//
//	Label      string   `json:"label" schema:"required,enum=positive|negative|neutral"`
//	Confidence float64  `json:"confidence" schema:"required,min=0,max=1"`
//	Keywords   []string `json:"keywords" schema:"default=[]"`
//	Summary    string   `json:"summary" schema:"required,maxLength=200,description=one sentence"`
//
// 支持的选项: required, enum=a|b, min, max, minLength, maxLength, minItems,
// maxItems, pattern, format, default, description. description 必须放在最后,
// 其值可以包含逗号; pattern 不能包含逗号, 需要时请改用 WithPattern.
// time.Time 字段生成 format 为 date-time 的字符串.
func FromType(t reflect.Type) (*JSONSchema, error) {
	g := &typeWalker{visiting: make(map[reflect.Type]bool)}
	return g.walk(t)
}

type typeWalker struct {
	// 正在展开的结构体, 用于截断递归类型
	visiting map[reflect.Type]bool
}

func (g *typeWalker) walk(t reflect.Type) (*JSONSchema, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot derive schema for nil type")
	}
	if t.Kind() == reflect.Ptr {
		return g.walk(t.Elem())
	}
	if t == timeType {
		return NewStringSchema().WithFormat(FormatDateTime), nil
	}

	switch t.Kind() {
	case reflect.String:
		return NewStringSchema(), nil
	case reflect.Bool:
		return NewBooleanSchema(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return NewIntegerSchema(), nil
	case reflect.Float32, reflect.Float64:
		return NewNumberSchema(), nil
	case reflect.Slice, reflect.Array:
		items, err := g.walk(t.Elem())
		if err != nil {
			return nil, fmt.Errorf("array element: %w", err)
		}
		return NewArraySchema(items), nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key must be string, got %s", t.Key())
		}
		return NewObjectSchema().WithAdditionalProperties(true), nil
	case reflect.Struct:
		return g.walkStruct(t)
	case reflect.Interface:
		return &JSONSchema{}, nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", t.Kind())
	}
}

func (g *typeWalker) walkStruct(t reflect.Type) (*JSONSchema, error) {
	if g.visiting[t] {
		// 递归类型: 退化为不带属性的对象
		return NewObjectSchema().WithAdditionalProperties(true), nil
	}
	g.visiting[t] = true
	defer delete(g.visiting, t)

	s := NewObjectSchema().WithTitle(t.Name())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := jsonFieldName(field)
		if name == "-" {
			continue
		}

		prop, err := g.walk(field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		required, err := applyTag(prop, field)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		s.AddProperty(name, prop)
		if required {
			s.AddRequired(name)
		}
	}
	return s, nil
}

func jsonFieldName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

// applyTag 将 schema 标签约束应用到 prop, 并返回字段是否必填.
func applyTag(prop *JSONSchema, field reflect.StructField) (bool, error) {
	tag, ok := field.Tag.Lookup("schema")
	if !ok || tag == "" {
		return false, nil
	}

	required := false
	for _, opt := range splitTag(tag) {
		key, value, _ := strings.Cut(opt, "=")
		var err error
		switch key {
		case "required":
			required = true
		case "enum":
			if prop.Type != TypeString {
				return false, fmt.Errorf("enum requires a string field")
			}
			prop.Enum = strings.Split(value, "|")
		case "min":
			prop.Minimum, err = parseFloat(key, value)
		case "max":
			prop.Maximum, err = parseFloat(key, value)
		case "minLength":
			prop.MinLength, err = parseInt(key, value)
		case "maxLength":
			prop.MaxLength, err = parseInt(key, value)
		case "minItems":
			prop.MinItems, err = parseInt(key, value)
		case "maxItems":
			prop.MaxItems, err = parseInt(key, value)
		case "pattern", "format":
			if prop.Type != TypeString {
				return false, fmt.Errorf("%s requires a string field", key)
			}
			if key == "format" {
				prop.Format = StringFormat(value)
				break
			}
			if _, cerr := regexp.Compile(value); cerr != nil {
				err = fmt.Errorf("invalid pattern %q: %w", value, cerr)
				break
			}
			prop.Pattern = value
		case "description":
			prop.Description = value
		case "default":
			prop.Default, err = parseDefault(value, field.Type)
		default:
			return false, fmt.Errorf("unknown schema tag option %q", key)
		}
		if err != nil {
			return false, err
		}
	}
	return required, nil
}

// splitTag 按逗号切分, description= 之后的内容整体保留.
func splitTag(tag string) []string {
	var parts []string
	for tag != "" {
		if strings.HasPrefix(tag, "description=") {
			parts = append(parts, tag)
			break
		}
		part, rest, found := strings.Cut(tag, ",")
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
		if !found {
			break
		}
		tag = strings.TrimLeft(rest, " ")
	}
	return parts
}

func parseFloat(key, value string) (*float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return &v, nil
}

func parseInt(key, value string) (*int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return &v, nil
}

// parseDefault 把默认值字符串解析为与字段类型一致的 JSON 值.
func parseDefault(value string, t reflect.Type) (any, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() == reflect.String {
		return value, nil
	}
	var out any
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil, fmt.Errorf("invalid default %q: %w", value, err)
	}
	return out, nil
}
