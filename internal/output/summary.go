package output

import "driftmap/internal/graph"

// GraphSummary is the one-line rollup printed after an analysis.
type GraphSummary struct {
	Files           int `json:"files" yaml:"files"`
	DependencyEdges int `json:"dependencyEdges" yaml:"dependencyEdges"`
	SemanticEdges   int `json:"semanticEdges" yaml:"semanticEdges"`
	BrokenEdges     int `json:"brokenEdges" yaml:"brokenEdges"`
	Changed         int `json:"changed" yaml:"changed"`
}

// Summarize counts a graph's nodes and edges by category.
func Summarize(g *graph.Graph) GraphSummary {
	s := GraphSummary{Files: len(g.Nodes)}
	for _, n := range g.Nodes {
		if n.Status != graph.StatusUnchanged {
			s.Changed++
		}
	}
	for _, e := range g.Edges {
		switch e.Type {
		case graph.LinkDependency:
			s.DependencyEdges++
		case graph.LinkSemantic:
			s.SemanticEdges++
		}
		if e.Broken {
			s.BrokenEdges++
		}
	}
	return s
}
