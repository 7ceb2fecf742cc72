package embed

import "math"

// MeanPool averages the hidden vectors at positions where the attention mask
// is 1. A mask with no active positions yields a zero vector rather than a
// division by zero.
func MeanPool(hidden [][]float32, mask []int64) []float32 {
	if len(hidden) == 0 {
		return nil
	}

	out := make([]float32, len(hidden[0]))
	var count float32
	for i, row := range hidden {
		if i >= len(mask) || mask[i] == 0 {
			continue
		}
		for j := range out {
			if j < len(row) {
				out[j] += row[j]
			}
		}
		count++
	}
	if count == 0 {
		return out
	}
	for j := range out {
		out[j] /= count
	}
	return out
}

// L2Normalize scales a vector to unit length. A zero vector is returned
// unchanged.
func L2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
