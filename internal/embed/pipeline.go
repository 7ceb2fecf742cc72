package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"driftmap/internal/cache"
)

// FileText carries the content to embed for one file. The hash keys the
// cache, so unchanged files never reach the encoder.
type FileText struct {
	Path string
	Hash string
	Text string
}

// Pipeline turns file text into L2-normalized mean-pooled vectors, consulting
// the embedding cache before running inference.
type Pipeline struct {
	tokenizer *Tokenizer
	encoder   Encoder
	store     *cache.Store
	modelID   string
	logger    *slog.Logger
}

// NewPipeline wires a tokenizer and encoder over the shared cache store.
func NewPipeline(tokenizer *Tokenizer, encoder Encoder, store *cache.Store, modelID string, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		tokenizer: tokenizer,
		encoder:   encoder,
		store:     store,
		modelID:   modelID,
		logger:    logger,
	}
}

// ModelID reports which model the pipeline embeds with.
func (p *Pipeline) ModelID() string {
	return p.modelID
}

// EmbedFiles returns a vector per path. Files whose (hash, model) pair is
// cached skip inference; files that fail to embed are logged and left out of
// the result rather than failing the run. The only error is cancellation.
func (p *Pipeline) EmbedFiles(ctx context.Context, files []FileText) (map[string][]float32, error) {
	vectors := make(map[string][]float32, len(files))
	var fresh []cache.EmbeddingEntry
	hits := 0

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if p.store != nil {
			cached, ok, err := p.store.GetEmbedding(f.Path, f.Hash, p.modelID)
			if err != nil {
				p.logger.Warn("embedding cache read failed", "path", f.Path, "error", err)
			} else if ok {
				vectors[f.Path] = cached
				hits++
				continue
			}
		}

		vector, err := p.embedOne(ctx, f.Text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("embedding failed, file excluded from similarity analysis",
				"path", f.Path, "error", err)
			continue
		}

		vectors[f.Path] = vector
		fresh = append(fresh, cache.EmbeddingEntry{
			Path:      f.Path,
			Hash:      f.Hash,
			ModelID:   p.modelID,
			Vector:    vector,
			UpdatedAt: time.Now().UTC(),
		})
	}

	if p.store != nil && len(fresh) > 0 {
		if err := p.store.SetEmbeddingBatch(fresh); err != nil {
			p.logger.Warn("embedding cache write failed", "count", len(fresh), "error", err)
		}
	}

	p.logger.Debug("embedding pass complete",
		"files", len(files), "cacheHits", hits, "computed", len(fresh), "model", p.modelID)
	return vectors, nil
}

func (p *Pipeline) embedOne(ctx context.Context, text string) ([]float32, error) {
	enc := p.tokenizer.Encode(text)

	hidden, err := p.encoder.Forward(ctx, enc.IDs, enc.Mask)
	if err != nil {
		return nil, err
	}

	pooled := MeanPool(hidden, enc.Mask)
	if len(pooled) == 0 {
		return nil, fmt.Errorf("encoder returned no hidden states")
	}
	return L2Normalize(pooled), nil
}
