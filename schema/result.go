package schema

import (
	"encoding/json"
	"fmt"
)

// Result is a value that passed validation, tagged with the identity of the
// schema it was checked against. Results are shared read-only between cache
// waiters; callers must not mutate Value.
type Result struct {
	SchemaID string          `json:"schema_id"`
	Value    any             `json:"-"`
	JSON     json.RawMessage `json:"data"`
}

// NewResult rebuilds a Result from its canonical JSON, for example when it is
// read back from a shared store.
func NewResult(schemaID string, data json.RawMessage) (*Result, error) {
	if schemaID == "" {
		return nil, fmt.Errorf("result has no schema identity")
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("decode result data: %w", err)
	}
	return &Result{SchemaID: schemaID, Value: value, JSON: data}, nil
}

// UnmarshalJSON keeps Value in sync with the decoded data.
func (r *Result) UnmarshalJSON(data []byte) error {
	var wire struct {
		SchemaID string          `json:"schema_id"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	decoded, err := NewResult(wire.SchemaID, wire.Data)
	if err != nil {
		return err
	}
	*r = *decoded
	return nil
}

// Decode unmarshals the validated value into out.
func (r *Result) Decode(out any) error {
	if r == nil {
		return fmt.Errorf("nil result")
	}
	return json.Unmarshal(r.JSON, out)
}

// Field returns a top-level field of an object result.
func (r *Result) Field(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	obj, ok := r.Value.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[name]
	return v, ok
}

// String returns the canonical JSON text.
func (r *Result) String() string {
	if r == nil {
		return ""
	}
	return string(r.JSON)
}

// As decodes a result into T.
func As[T any](r *Result) (T, error) {
	var out T
	if err := r.Decode(&out); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}
