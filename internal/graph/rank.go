package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// RankOptions configures risk propagation.
type RankOptions struct {
	// Damping is the probability of following an edge vs teleporting back to
	// a seed (default: 0.85)
	Damping float64

	// MaxIterations bounds the power iteration (default: 20)
	MaxIterations int

	// Tolerance for convergence detection (default: 1e-6)
	Tolerance float64

	// TopK is the number of top results to return (default: 20)
	TopK int

	// IncludePaths enables backtracking to explain how risk reached a node
	IncludePaths bool
}

// DefaultRankOptions returns sensible defaults.
func DefaultRankOptions() RankOptions {
	return RankOptions{
		Damping:       0.85,
		MaxIterations: 20,
		Tolerance:     1e-6,
		TopK:          20,
		IncludePaths:  true,
	}
}

// RankedNode is one node ranked by propagated risk.
type RankedNode struct {
	ID    string   `json:"id" yaml:"id"`
	Score float64  `json:"score" yaml:"score"`
	Path  []string `json:"path,omitempty" yaml:"path,omitempty"`
}

// RankOutput is the full risk propagation result.
type RankOutput struct {
	Results    []RankedNode `json:"results" yaml:"results"`
	Iterations int          `json:"iterations" yaml:"iterations"`
	Converged  bool         `json:"converged" yaml:"converged"`
	Seeds      []string     `json:"seeds" yaml:"seeds"`
}

// rankIndex is a sparse view of the graph oriented for propagation: risk
// flows from a file to its importers, so dependency edges are reversed.
// Semantic edges propagate both ways, weighted by their similarity.
type rankIndex struct {
	nodes    []string
	nodeIdx  map[string]int
	outEdges [][]rankEdge
	inEdges  [][]rankEdge
}

type rankEdge struct {
	target int
	weight float64
}

func newRankIndex(g *Graph) *rankIndex {
	idx := &rankIndex{
		nodes:   g.SortedNodeIDs(),
		nodeIdx: make(map[string]int, len(g.Nodes)),
	}
	for i, id := range idx.nodes {
		idx.nodeIdx[id] = i
	}
	idx.outEdges = make([][]rankEdge, len(idx.nodes))
	idx.inEdges = make([][]rankEdge, len(idx.nodes))

	for _, e := range g.Edges {
		src, okS := idx.nodeIdx[e.Source]
		dst, okT := idx.nodeIdx[e.Target]
		if !okS || !okT {
			continue
		}
		switch e.Type {
		case LinkDependency:
			idx.add(dst, src, 1.0)
		case LinkSemantic:
			weight := 0.5
			if e.Similarity != nil {
				weight = *e.Similarity
			}
			idx.add(src, dst, weight)
			idx.add(dst, src, weight)
		}
	}
	return idx
}

func (idx *rankIndex) add(src, dst int, weight float64) {
	idx.outEdges[src] = append(idx.outEdges[src], rankEdge{target: dst, weight: weight})
	idx.inEdges[dst] = append(idx.inEdges[dst], rankEdge{target: src, weight: weight})
}

func (idx *rankIndex) numEdges() int {
	total := 0
	for _, edges := range idx.outEdges {
		total += len(edges)
	}
	return total
}

// RiskRank scores nodes by their exposure to the seed set using personalized
// PageRank over the propagation index. Seeds are typically the changed files
// of the current diff; high-scoring nodes are the files most likely to feel
// those changes. Seeds absent from the graph are dropped.
func (g *Graph) RiskRank(_ context.Context, seeds []string, opts RankOptions) (*RankOutput, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no seed nodes provided")
	}

	idx := newRankIndex(g)
	if len(idx.nodes) == 0 {
		return &RankOutput{Results: []RankedNode{}, Seeds: seeds}, nil
	}

	if opts.Damping <= 0 || opts.Damping >= 1 {
		opts.Damping = 0.85
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 20
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-6
	}
	if opts.TopK <= 0 {
		opts.TopK = 20
	}

	seedIndices := make([]int, 0, len(seeds))
	validSeeds := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if i, ok := idx.nodeIdx[s]; ok {
			seedIndices = append(seedIndices, i)
			validSeeds = append(validSeeds, s)
		}
	}
	if len(seedIndices) == 0 {
		return &RankOutput{Results: []RankedNode{}, Seeds: seeds}, nil
	}

	n := len(idx.nodes)
	teleport := make([]float64, n)
	teleportWeight := 1.0 / float64(len(seedIndices))
	for _, i := range seedIndices {
		teleport[i] = teleportWeight
	}

	scores := make([]float64, n)
	copy(scores, teleport)

	outDegree := make([]float64, n)
	for i, edges := range idx.outEdges {
		for _, e := range edges {
			outDegree[i] += e.weight
		}
	}

	newScores := make([]float64, n)
	var iterations int
	var converged bool

	for iter := 0; iter < opts.MaxIterations; iter++ {
		iterations = iter + 1

		for i := range newScores {
			newScores[i] = 0
		}

		for i, edges := range idx.outEdges {
			if len(edges) == 0 || outDegree[i] == 0 {
				continue
			}
			contrib := scores[i] / outDegree[i]
			for _, e := range edges {
				newScores[e.target] += contrib * e.weight
			}
		}

		maxDiff := 0.0
		for i := range newScores {
			newScores[i] = opts.Damping*newScores[i] + (1-opts.Damping)*teleport[i]
			diff := newScores[i] - scores[i]
			if diff < 0 {
				diff = -diff
			}
			if diff > maxDiff {
				maxDiff = diff
			}
		}

		scores, newScores = newScores, scores

		if maxDiff < opts.Tolerance {
			converged = true
			break
		}
	}

	type scoredNode struct {
		idx   int
		score float64
	}
	ranked := make([]scoredNode, 0, n)
	for i, s := range scores {
		if s > 0 {
			ranked = append(ranked, scoredNode{idx: i, score: s})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return idx.nodes[ranked[i].idx] < idx.nodes[ranked[j].idx]
	})
	if len(ranked) > opts.TopK {
		ranked = ranked[:opts.TopK]
	}

	seedSet := make(map[int]bool, len(seedIndices))
	for _, i := range seedIndices {
		seedSet[i] = true
	}

	results := make([]RankedNode, len(ranked))
	for i, sn := range ranked {
		result := RankedNode{ID: idx.nodes[sn.idx], Score: sn.score}
		if opts.IncludePaths && !seedSet[sn.idx] {
			result.Path = idx.backtrackPath(sn.idx, seedSet, 5)
		}
		results[i] = result
	}

	return &RankOutput{
		Results:    results,
		Iterations: iterations,
		Converged:  converged,
		Seeds:      validSeeds,
	}, nil
}

// backtrackPath walks incoming propagation edges greedily by weight until it
// reaches a seed or maxDepth, then reverses so the path reads seed to target.
func (idx *rankIndex) backtrackPath(target int, seedSet map[int]bool, maxDepth int) []string {
	path := []string{idx.nodes[target]}
	current := target
	visited := map[int]bool{target: true}

	for depth := 0; depth < maxDepth; depth++ {
		bestPrev := -1
		bestWeight := 0.0
		for _, e := range idx.inEdges[current] {
			if !visited[e.target] && e.weight > bestWeight {
				bestWeight = e.weight
				bestPrev = e.target
			}
		}
		if bestPrev < 0 {
			break
		}

		path = append(path, idx.nodes[bestPrev])
		visited[bestPrev] = true
		if seedSet[bestPrev] {
			break
		}
		current = bestPrev
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// FilterRanked filters ranked nodes by a predicate.
func FilterRanked(results []RankedNode, predicate func(RankedNode) bool) []RankedNode {
	filtered := make([]RankedNode, 0, len(results))
	for _, r := range results {
		if predicate(r) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// FilterRankedByPrefix returns results whose ID has the given path prefix.
func FilterRankedByPrefix(results []RankedNode, prefix string) []RankedNode {
	return FilterRanked(results, func(r RankedNode) bool {
		return strings.HasPrefix(r.ID, prefix)
	})
}

// FilterRankedByMinScore returns results with score >= minScore.
func FilterRankedByMinScore(results []RankedNode, minScore float64) []RankedNode {
	return FilterRanked(results, func(r RankedNode) bool {
		return r.Score >= minScore
	})
}
