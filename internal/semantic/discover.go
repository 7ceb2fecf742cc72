// Package semantic finds pairs of files whose embeddings are close enough
// to suggest a hidden relationship no import expresses. Discovered pairs
// become similarity-weighted semantic edges in the graph.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"driftmap/internal/graph"
	"driftmap/internal/vecstore"
)

const defaultMaxPerFile = 3

// Pair is one discovered relationship, canonically ordered so A < B.
type Pair struct {
	A          string
	B          string
	Similarity float64
}

// Discoverer holds the tuning knobs shared by both discovery algorithms.
// Threshold and cap behave identically across them: swapping the backend
// changes performance, not the meaning of the output.
type Discoverer struct {
	threshold  float64
	maxPerFile int
	logger     *slog.Logger
}

// NewDiscoverer builds a discoverer. Non-positive maxPerFile falls back to
// the default cap.
func NewDiscoverer(threshold float64, maxPerFile int, logger *slog.Logger) *Discoverer {
	if maxPerFile <= 0 {
		maxPerFile = defaultMaxPerFile
	}
	return &Discoverer{threshold: threshold, maxPerFile: maxPerFile, logger: logger}
}

type candidate struct {
	other string
	sim   float64
}

// Discover runs the exact O(n²) scan over the embeddings map. Every
// unordered pair not already covered by a dependency edge and at or above
// the threshold is recorded as a candidate for both endpoints; each file
// keeps its top-maxPerFile candidates; the union is deduplicated by
// canonical pair key and sorted by similarity descending.
func (d *Discoverer) Discover(embeddings map[string][]float32, depEdges map[string]*graph.Edge) []Pair {
	files := sortedKeys(embeddings)

	perFile := make(map[string][]candidate)
	for i := 0; i < len(files); i++ {
		for j := i + 1; j < len(files); j++ {
			a, b := files[i], files[j]
			if depEdges[graph.PairKey(a, b)] != nil {
				continue
			}
			sim := vecstore.Dot(embeddings[a], embeddings[b])
			if sim < d.threshold {
				continue
			}
			perFile[a] = append(perFile[a], candidate{other: b, sim: sim})
			perFile[b] = append(perFile[b], candidate{other: a, sim: sim})
		}
	}

	seen := make(map[string]Pair)
	for _, file := range files {
		cands := perFile[file]
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].sim != cands[j].sim {
				return cands[i].sim > cands[j].sim
			}
			return cands[i].other < cands[j].other
		})
		if len(cands) > d.maxPerFile {
			cands = cands[:d.maxPerFile]
		}
		for _, c := range cands {
			key := graph.PairKey(file, c.other)
			if _, dup := seen[key]; !dup {
				seen[key] = canonicalPair(file, c.other, c.sim)
			}
		}
	}

	pairs := sortPairs(seen)
	d.logger.Debug("semantic discovery complete",
		"files", len(files), "pairs", len(pairs), "threshold", d.threshold)
	return pairs
}

// DiscoverANN asks the store for each file's nearest neighbors instead of
// scanning all pairs. Results are shape-compatible with Discover but not
// guaranteed identical: approximate indexes may miss neighbors the exact
// scan finds.
func (d *Discoverer) DiscoverANN(ctx context.Context, embeddings map[string][]float32, depEdges map[string]*graph.Edge, store vecstore.Store) ([]Pair, error) {
	files := sortedKeys(embeddings)

	seen := make(map[string]Pair)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := store.Query(ctx, embeddings[file], d.maxPerFile*2, vecstore.QueryOpts{})
		if err != nil {
			return nil, fmt.Errorf("neighbor query for %s: %w", file, err)
		}

		accepted := 0
		for _, m := range matches {
			if accepted >= d.maxPerFile {
				break
			}
			if m.ID == file || m.Score < d.threshold {
				continue
			}
			// Stale store rows (deleted files, other models) are not part
			// of this run.
			if _, ok := embeddings[m.ID]; !ok {
				continue
			}
			if depEdges[graph.PairKey(file, m.ID)] != nil {
				continue
			}

			key := graph.PairKey(file, m.ID)
			if _, dup := seen[key]; dup {
				// Already found from the other endpoint; it still
				// occupies one of this file's slots.
				accepted++
				continue
			}
			seen[key] = canonicalPair(file, m.ID, m.Score)
			accepted++
		}
	}

	pairs := sortPairs(seen)
	d.logger.Debug("semantic discovery complete",
		"files", len(files), "pairs", len(pairs), "threshold", d.threshold, "mode", "ann")
	return pairs, nil
}

// Attach appends pairs to the graph as semantic edges carrying their
// similarity.
func Attach(g *graph.Graph, pairs []Pair) {
	for _, p := range pairs {
		sim := p.Similarity
		e := g.AppendEdge(p.A, p.B, graph.LinkSemantic)
		e.Similarity = &sim
	}
}

func canonicalPair(a, b string, sim float64) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{A: a, B: b, Similarity: sim}
}

func sortPairs(seen map[string]Pair) []Pair {
	pairs := make([]Pair, 0, len(seen))
	for _, p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Similarity != pairs[j].Similarity {
			return pairs[i].Similarity > pairs[j].Similarity
		}
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

func sortedKeys(m map[string][]float32) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
