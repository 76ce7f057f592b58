package domain

import "encoding/json"

// Included marks a context field that was either looked up (Present) or not.
// A zero Included is omitted from JSON via the omitzero tag option; a present
// one always serialises its value, even when that value is empty or nil.
type Included[T any] struct {
	Value   T
	Present bool
}

// Include wraps a looked-up value.
func Include[T any](v T) Included[T] {
	return Included[T]{Value: v, Present: true}
}

// IsZero reports whether the field was never looked up.
func (i Included[T]) IsZero() bool { return !i.Present }

func (i Included[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.Value)
}

// UnmarshalJSON marks the field present whenever the key appears, including
// an explicit null.
func (i *Included[T]) UnmarshalJSON(data []byte) error {
	i.Present = true
	return json.Unmarshal(data, &i.Value)
}
