package output

import (
	"driftmap/internal/conflict"
	"driftmap/internal/graph"
)

// linkRank orders edge types for rendering. Lower sorts first.
var linkRank = map[graph.LinkType]int{
	graph.LinkDependency: 1,
	graph.LinkSemantic:   2,
}

// severityRank orders conflict severities for rendering. Lower sorts first.
var severityRank = map[conflict.Severity]int{
	conflict.SeverityHigh:   1,
	conflict.SeverityMedium: 2,
	conflict.SeverityLow:    3,
}

// LinkRank returns the render order for an edge type. Unknown types sort
// last.
func LinkRank(t graph.LinkType) int {
	if r, ok := linkRank[t]; ok {
		return r
	}
	return len(linkRank) + 1
}

// SeverityRank returns the render order for a severity. Unknown severities
// sort last.
func SeverityRank(s conflict.Severity) int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank) + 1
}
