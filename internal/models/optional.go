package models

import (
	"bytes"
	"encoding/json"
)

// Optional wraps a JSON field whose absence, explicit null, and value
// are three distinct states. encoding/json leaves absent fields
// untouched, so Set stays false for them; a decoded null sets Set with
// Valid=false; a decoded value sets both.
//
// The distinction is load-bearing for custody edits: an absent
// handoff_day asks the engine to infer, while an explicit false is an
// override that must win over inference.
type Optional[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// OptionalOf returns a present Optional holding v.
func OptionalOf[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Valid: true, Value: v}
}

// Ptr returns a pointer to the value when one was supplied, and nil for
// both the absent and the explicit-null states.
func (o Optional[T]) Ptr() *T {
	if !o.Set || !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Valid = false
		var zero T
		o.Value = zero
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
