package output

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// Marshal encodes v as deterministic JSON: sorted object keys, floats
// rounded to 6 decimal places, timestamps as RFC 3339 UTC, nil and
// omitempty-zero fields dropped.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalizeValue(v)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalIndent is Marshal with two-space indentation.
func MarshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(normalizeValue(v)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// normalizeValue rewrites v into maps, slices, and scalars that
// encoding/json renders deterministically. Map keys come out sorted
// because encoding/json sorts map[string] keys.
func normalizeValue(v any) any {
	if v == nil {
		return nil
	}

	val := reflect.ValueOf(v)
	for val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}

	// time.Time is a struct of unexported fields; reflecting into it
	// would erase the value. Render it before the struct case.
	if t, ok := val.Interface().(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}

	switch val.Kind() {
	case reflect.Map:
		return normalizeMap(val)
	case reflect.Slice, reflect.Array:
		return normalizeSlice(val)
	case reflect.Struct:
		return normalizeStruct(val)
	case reflect.Float32, reflect.Float64:
		return RoundFloat(val.Float())
	case reflect.Interface:
		if val.IsNil() {
			return nil
		}
		return normalizeValue(val.Interface())
	default:
		return val.Interface()
	}
}

func normalizeMap(val reflect.Value) any {
	if val.IsNil() {
		return nil
	}
	result := make(map[string]any, val.Len())
	iter := val.MapRange()
	for iter.Next() {
		if norm := normalizeValue(iter.Value().Interface()); norm != nil {
			result[iter.Key().String()] = norm
		}
	}
	return result
}

// normalizeSlice keeps non-nil empty slices as [] so array-valued keys
// survive encoding; only nil slices disappear.
func normalizeSlice(val reflect.Value) any {
	if val.Kind() == reflect.Slice && val.IsNil() {
		return nil
	}
	result := make([]any, val.Len())
	for i := 0; i < val.Len(); i++ {
		result[i] = normalizeValue(val.Index(i).Interface())
	}
	return result
}

func normalizeStruct(val reflect.Value) any {
	result := make(map[string]any)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		name, omitEmpty := parseJSONTag(field.Tag.Get("json"))
		if name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}

		norm := normalizeValue(val.Field(i).Interface())
		if norm == nil {
			continue
		}
		if omitEmpty && isEmptyValue(norm) {
			continue
		}
		result[name] = norm
	}
	return result
}

func parseJSONTag(tag string) (name string, omitEmpty bool) {
	if tag == "" {
		return "", false
	}
	parts := strings.Split(tag, ",")
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return parts[0], omitEmpty
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case bool:
		return !val
	case string:
		return val == ""
	case float64:
		return val == 0
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int() == 0
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return rv.Uint() == 0
		}
		return false
	}
}
