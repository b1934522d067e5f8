package util

import (
	"fmt"
	"strconv"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// orZero drops the found flag and error of an unstructured accessor.
func orZero[T any](v T, found bool, err error) T {
	if err != nil || !found {
		var zero T
		return zero
	}
	return v
}

// SafeNestedString returns the string at fields, or "" when it is missing
// or not a string.
func SafeNestedString(obj map[string]interface{}, fields ...string) string {
	return orZero(unstructured.NestedString(obj, fields...))
}

// SafeNestedMap returns a copy of the map at fields, or nil.
func SafeNestedMap(obj map[string]interface{}, fields ...string) map[string]interface{} {
	return orZero(unstructured.NestedMap(obj, fields...))
}

// SafeStringFromMap returns m[key] when it is a string.
func SafeStringFromMap(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// NestedScalarString renders the scalar at fields as a string.
//
// Quantities decoded from JSON may arrive as strings or bare numbers, so both
// are accepted. found is false when the path does not exist. An error is
// returned when the value exists but is not a scalar.
func NestedScalarString(obj map[string]interface{}, fields ...string) (string, bool, error) {
	val, found, err := unstructured.NestedFieldNoCopy(obj, fields...)
	if err != nil || !found {
		return "", false, err
	}
	switch v := val.(type) {
	case string:
		return v, true, nil
	case int64:
		return strconv.FormatInt(v, 10), true, nil
	case int:
		return strconv.Itoa(v), true, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true, nil
	}
	return "", true, fmt.Errorf("%v: expected scalar, got %T", fields, val)
}
