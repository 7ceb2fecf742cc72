//go:build cgo

package embed

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime brings up the ONNX Runtime environment once per process.
func initRuntime() error {
	ortInitOnce.Do(func() {
		if path := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); path != "" {
			ort.SetSharedLibraryPath(path)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

type onnxEncoder struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	dims    int
}

// NewONNXEncoder loads the sentence-embedding model at modelPath. The session
// is serialized internally; Forward is safe for concurrent use.
func NewONNXEncoder(modelPath string, dims int) (Encoder, error) {
	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}
	return &onnxEncoder{session: session, dims: dims}, nil
}

func (e *onnxEncoder) Dims() int {
	return e.dims
}

func (e *onnxEncoder) Forward(ctx context.Context, ids, mask []int64) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shape := ort.NewShape(1, int64(len(ids)))
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer func() { _ = idsTensor.Destroy() }()

	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("create mask tensor: %w", err)
	}
	defer func() { _ = maskTensor.Destroy() }()

	typeTensor, err := ort.NewTensor(shape, make([]int64, len(ids)))
	if err != nil {
		return nil, fmt.Errorf("create segment tensor: %w", err)
	}
	defer func() { _ = typeTensor.Destroy() }()

	// A nil output slot lets the runtime allocate the result tensor.
	outputs := []ort.Value{nil}
	e.mu.Lock()
	err = e.session.Run([]ort.Value{idsTensor, maskTensor, typeTensor}, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run inference: %w", err)
	}

	result, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected model output type %T", outputs[0])
	}
	defer func() { _ = result.Destroy() }()

	data := result.GetData()
	hidden := make([][]float32, len(ids))
	for i := range hidden {
		start := i * e.dims
		end := start + e.dims
		if end > len(data) {
			return nil, fmt.Errorf("model output holds %d values, expected %d", len(data), len(ids)*e.dims)
		}
		row := make([]float32, e.dims)
		copy(row, data[start:end])
		hidden[i] = row
	}
	return hidden, nil
}

func (e *onnxEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		_ = e.session.Destroy()
		e.session = nil
	}
	return nil
}
