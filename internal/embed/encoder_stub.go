//go:build !cgo

package embed

// NewONNXEncoder requires cgo for the ONNX Runtime bindings. Without it the
// typed error lets callers disable embeddings instead of failing the run.
func NewONNXEncoder(modelPath string, dims int) (Encoder, error) {
	return nil, ErrEncoderUnavailable
}
