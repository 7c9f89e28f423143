package ingestion

import (
	"fmt"
	"reflect"
	"strings"
)

// SanitizeMetadata normalizes an arbitrary attribute map into the restricted
// scalar schema the vector index accepts: strings, integers, floats, booleans
// and nil pass through; a homogeneous list of scalars is joined into a single
// comma-separated string; anything else is converted to its string
// representation. The function is total over arbitrary input and never fails.
func SanitizeMetadata(raw map[string]any) map[string]any {
	sanitized := make(map[string]any, len(raw))
	for key, value := range raw {
		sanitized[key] = sanitizeValue(value)
	}
	return sanitized
}

func sanitizeValue(value any) any {
	if value == nil {
		return nil
	}
	if isScalar(value) {
		return value
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, 0, rv.Len())
		scalarOnly := true
		for i := 0; i < rv.Len(); i++ {
			item := rv.Index(i).Interface()
			if item == nil || !isScalar(item) {
				scalarOnly = false
				break
			}
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		if scalarOnly {
			return strings.Join(parts, ", ")
		}
	}

	return fmt.Sprintf("%v", value)
}

func isScalar(value any) bool {
	switch value.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

func copyMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
