// Package utils converts between Go zero values and nullable database columns.
package utils

// Value dereferences v, returning the zero value for a nil pointer (a NULL column).
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

// NilIfZero returns nil for the zero value so it is stored as NULL.
func NilIfZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}
