package engine

import (
	"context"
	"fmt"
	"sort"

	"driftmap/internal/conflict"
	"driftmap/internal/config"
	"driftmap/internal/derrors"
	"driftmap/internal/graph"
	"driftmap/internal/vecstore"
)

// defaultSimilarTopK caps similarity results when the caller passes no limit.
const defaultSimilarTopK = 10

// Direction selects which way ImpactRadius walks dependency edges.
type Direction string

const (
	// DirectionImporters walks toward the files that depend on the origin.
	DirectionImporters Direction = "importers"
	// DirectionImports walks toward the files the origin depends on.
	DirectionImports Direction = "imports"
	// DirectionBoth walks both ways.
	DirectionBoth Direction = "both"
)

// ImpactLevel is one breadth-first ring around the origin.
type ImpactLevel struct {
	Depth int      `json:"depth" yaml:"depth"`
	Paths []string `json:"paths" yaml:"paths"`
}

// ImpactResult is the bounded traversal from one file.
type ImpactResult struct {
	Origin    string        `json:"origin" yaml:"origin"`
	Direction Direction     `json:"direction" yaml:"direction"`
	Depth     int           `json:"depth" yaml:"depth"`
	Levels    []ImpactLevel `json:"levels" yaml:"levels"`
	Total     int           `json:"total" yaml:"total"`
}

// ImpactRadius walks dependency edges breadth-first from origin, up to depth
// hops. Semantic edges never contribute: a similarity link is not a change
// propagation path. Each node appears once, at its shortest distance.
func ImpactRadius(g *graph.Graph, origin string, depth int, dir Direction) (*ImpactResult, error) {
	if dir == "" {
		dir = DirectionBoth
	}
	switch dir {
	case DirectionImporters, DirectionImports, DirectionBoth:
	default:
		return nil, fmt.Errorf("unknown direction %q (expected imports, importers, or both)", dir)
	}
	if depth < 1 {
		return nil, fmt.Errorf("depth must be at least 1, got %d", depth)
	}
	if _, ok := g.Nodes[origin]; !ok {
		return nil, fmt.Errorf("file %q is not part of the analyzed tree", origin)
	}

	adjacency := make(map[string][]string)
	for _, e := range g.Edges {
		if e.Type != graph.LinkDependency {
			continue
		}
		if dir == DirectionImports || dir == DirectionBoth {
			adjacency[e.Source] = append(adjacency[e.Source], e.Target)
		}
		if dir == DirectionImporters || dir == DirectionBoth {
			adjacency[e.Target] = append(adjacency[e.Target], e.Source)
		}
	}

	res := &ImpactResult{Origin: origin, Direction: dir, Depth: depth}
	visited := map[string]bool{origin: true}
	frontier := []string{origin}

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		nextSet := make(map[string]bool)
		for _, node := range frontier {
			for _, neighbor := range adjacency[node] {
				if !visited[neighbor] {
					visited[neighbor] = true
					nextSet[neighbor] = true
				}
			}
		}
		if len(nextSet) == 0 {
			break
		}

		paths := make([]string, 0, len(nextSet))
		for p := range nextSet {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		res.Levels = append(res.Levels, ImpactLevel{Depth: level, Paths: paths})
		res.Total += len(paths)
		frontier = paths
	}
	return res, nil
}

// SimilarFile is one nearest-neighbor result.
type SimilarFile struct {
	Path       string  `json:"path" yaml:"path"`
	Similarity float64 `json:"similarity" yaml:"similarity"`
}

// NearestSimilar returns the topK files most similar to path, excluding the
// file itself. The file must have been embedded by a previous analysis.
func (e *Engine) NearestSimilar(ctx context.Context, path string, topK int, allNamespaces bool) ([]SimilarFile, error) {
	store := e.queryStore(ctx)
	if store == nil {
		return nil, derrors.New(derrors.ProviderUnavailable,
			"similarity search requires embeddings and an available vector store")
	}
	if topK <= 0 {
		topK = defaultSimilarTopK
	}

	recs, err := store.Fetch(ctx, []string{path})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("no embedding stored for %q; run an analysis first", path)
	}

	matches, err := store.Query(ctx, recs[0].Vector, topK+1, vecstore.QueryOpts{
		Namespace:     e.cfg.Vector.Namespace,
		AllNamespaces: allNamespaces,
	})
	if err != nil {
		return nil, err
	}

	out := make([]SimilarFile, 0, topK)
	for _, m := range matches {
		if m.ID == path {
			continue
		}
		out = append(out, SimilarFile{Path: m.ID, Similarity: m.Score})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// queryStore picks the store answering similarity queries: remote providers
// serve them only when cloud search is enabled, otherwise the local cache
// answers.
func (e *Engine) queryStore(ctx context.Context) vecstore.Store {
	remote := e.cfg.Vector.Provider != config.ProviderSQLite
	if remote && !e.cfg.Vector.CloudSearchEnabled && e.store != nil {
		return vecstore.NewSQLiteStore(e.store, e.cfg.Embeddings.ModelID, e.logger)
	}
	return e.readyVectors(ctx)
}

// Conflicts runs cross-branch conflict detection over the graph.
func (e *Engine) Conflicts(ctx context.Context, g *graph.Graph, opts conflict.Options) []conflict.Warning {
	return conflict.NewDetector(e.vcs, e.logger).Detect(ctx, g, opts)
}

// ChangedSeeds lists the graph's changed nodes, the default seed set for
// risk ranking.
func ChangedSeeds(g *graph.Graph) []string {
	seeds := make([]string, 0)
	for _, id := range g.SortedNodeIDs() {
		if g.Nodes[id].Status != graph.StatusUnchanged {
			seeds = append(seeds, id)
		}
	}
	return seeds
}
