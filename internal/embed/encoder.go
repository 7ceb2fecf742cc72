package embed

import (
	"context"
	"errors"
)

// ErrEncoderUnavailable marks builds compiled without inference support.
// Callers degrade to running without embeddings.
var ErrEncoderUnavailable = errors.New("embedding encoder unavailable in this build")

// Encoder runs a tokenized sequence through a sentence-embedding model and
// returns per-token hidden vectors of fixed width.
type Encoder interface {
	Forward(ctx context.Context, ids, mask []int64) ([][]float32, error)
	Dims() int
	Close() error
}
