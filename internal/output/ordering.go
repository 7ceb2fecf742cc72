package output

import (
	"sort"

	"driftmap/internal/graph"
)

// SortEdges puts a graph's edges in canonical render order: dependency
// edges before semantic ones, then source ASC, then target ASC. Edge
// construction order is already deterministic; canonical order makes the
// encoded output independent of it.
func SortEdges(edges []*graph.Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		ri, rj := LinkRank(edges[i].Type), LinkRank(edges[j].Type)
		if ri != rj {
			return ri < rj
		}
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
}
