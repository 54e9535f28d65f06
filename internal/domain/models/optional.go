package models

import (
	"bytes"
	"encoding/json"
)

// Optional distinguishes a field that was absent from a JSON object, one that
// was explicitly null and one that carried a value.
type Optional[T any] struct {
	Value T
	Set   bool
	Null  bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// Ptr returns nil for an explicit null and a pointer to the value otherwise.
func (o Optional[T]) Ptr() *T {
	if o.Null {
		return nil
	}
	v := o.Value
	return &v
}

func (o Optional[T]) IsZero() bool {
	return !o.Set
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Value = zero
		o.Null = true
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
