package output

import (
	"math"
	"strconv"
	"strings"
)

// RoundFloat rounds to at most 6 decimal places. float32-derived scores
// carry representation tails (0.8 becomes 0.800000011920929); rounding
// keeps encoded similarity values short and stable.
func RoundFloat(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

// FormatFloat renders a float for human output with trailing zeros
// trimmed: 0.8 not 0.800000, 1 not 1.000000.
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(RoundFloat(f), 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
