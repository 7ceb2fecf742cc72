package output

import (
	"bytes"
	"encoding/json"
)

// volatileFields are keys stripped before comparing encoded results.
// Graphs, warnings, and history snapshots all stamp a "timestamp".
var volatileFields = map[string]bool{
	"timestamp": true,
}

// StripVolatile removes time-varying fields wherever they appear in the
// encoded document and re-encodes deterministically.
func StripVolatile(data []byte) ([]byte, error) {
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return Marshal(stripValue(parsed))
}

// stripValue walks maps and arrays; volatile keys can sit at any depth,
// including inside warning and snapshot lists.
func stripValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for key, inner := range val {
			if volatileFields[key] {
				delete(val, key)
				continue
			}
			val[key] = stripValue(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = stripValue(inner)
		}
		return val
	default:
		return v
	}
}

// Equivalent reports whether two encoded results are identical modulo
// volatile fields. The second return names the first point of failure.
func Equivalent(a, b []byte) (bool, string) {
	sa, err := StripVolatile(a)
	if err != nil {
		return false, "first document is not valid JSON: " + err.Error()
	}
	sb, err := StripVolatile(b)
	if err != nil {
		return false, "second document is not valid JSON: " + err.Error()
	}
	if !bytes.Equal(sa, sb) {
		return false, "documents differ outside volatile fields"
	}
	return true, ""
}
