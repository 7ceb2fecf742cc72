// Package graph builds the typed dependency graph: one node per source file,
// dependency edges from resolved imports, semantic edges from vector
// similarity, and broken-edge flags derived from diff state.
package graph

import (
	"fmt"
	"sort"
	"time"

	"driftmap/internal/git"
)

// DiffStatus is a node's state relative to the comparison base.
type DiffStatus string

const (
	StatusUnchanged DiffStatus = "unchanged"
	StatusAdded     DiffStatus = "added"
	StatusModified  DiffStatus = "modified"
	StatusDeleted   DiffStatus = "deleted"
)

// NodeKind classifies a file by its role in the tree.
type NodeKind string

const (
	KindFile      NodeKind = "file"
	KindComponent NodeKind = "component"
	KindUtility   NodeKind = "utility"
)

// LinkType distinguishes resolved-import edges from similarity edges.
type LinkType string

const (
	LinkDependency LinkType = "dependency"
	LinkSemantic   LinkType = "semantic"
)

// Node is one file in the analyzed tree. ID is the path relative to the
// analysis root with forward slashes.
type Node struct {
	ID              string     `json:"id" yaml:"id"`
	Label           string     `json:"label" yaml:"label"`
	Kind            NodeKind   `json:"kind" yaml:"kind"`
	Status          DiffStatus `json:"status" yaml:"status"`
	ExportSignature string     `json:"exportSignature,omitempty" yaml:"exportSignature,omitempty"`
	Language        string     `json:"language,omitempty" yaml:"language,omitempty"`
}

// Edge links two nodes. Similarity is set on semantic edges only.
type Edge struct {
	ID         string   `json:"id" yaml:"id"`
	Source     string   `json:"source" yaml:"source"`
	Target     string   `json:"target" yaml:"target"`
	Broken     bool     `json:"broken" yaml:"broken"`
	Type       LinkType `json:"type" yaml:"type"`
	Similarity *float64 `json:"similarity,omitempty" yaml:"similarity,omitempty"`
}

// Graph is one analysis result. Both endpoints of every edge exist in Nodes.
type Graph struct {
	Nodes     map[string]*Node `json:"nodes" yaml:"nodes"`
	Edges     []*Edge          `json:"edges" yaml:"edges"`
	Timestamp time.Time        `json:"timestamp" yaml:"timestamp"`

	nextEdgeID int
}

// NewGraph returns an empty graph stamped with the current time.
func NewGraph() *Graph {
	return &Graph{
		Nodes:     make(map[string]*Node),
		Edges:     make([]*Edge, 0),
		Timestamp: time.Now().UTC(),
	}
}

// AppendEdge adds an edge with the next sequential ID and returns it for the
// caller to flag. IDs are monotonic within one graph instance.
func (g *Graph) AppendEdge(source, target string, linkType LinkType) *Edge {
	e := &Edge{
		ID:     fmt.Sprintf("e%d", g.nextEdgeID),
		Source: source,
		Target: target,
		Type:   linkType,
	}
	g.nextEdgeID++
	g.Edges = append(g.Edges, e)
	return e
}

// PairKey builds an order-independent key for a node pair, used to index
// edges regardless of direction.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// EdgeIndex returns the set of node pairs connected by edges of the given
// type, keyed by PairKey.
func (g *Graph) EdgeIndex(linkType LinkType) map[string]*Edge {
	index := make(map[string]*Edge)
	for _, e := range g.Edges {
		if e.Type != linkType {
			continue
		}
		key := PairKey(e.Source, e.Target)
		if _, ok := index[key]; !ok {
			index[key] = e
		}
	}
	return index
}

// Dependents returns reverse dependency adjacency: for each node, the sorted
// list of nodes that import it.
func (g *Graph) Dependents() map[string][]string {
	rev := make(map[string][]string)
	for _, e := range g.Edges {
		if e.Type != LinkDependency {
			continue
		}
		rev[e.Target] = append(rev[e.Target], e.Source)
	}
	for target := range rev {
		sort.Strings(rev[target])
	}
	return rev
}

// SortedNodeIDs returns node IDs in lexical order.
func (g *Graph) SortedNodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// statusFromGit maps a git diff status onto a node status.
func statusFromGit(s git.Status) DiffStatus {
	switch s {
	case git.StatusAdded:
		return StatusAdded
	case git.StatusModified:
		return StatusModified
	case git.StatusDeleted:
		return StatusDeleted
	default:
		return StatusUnchanged
	}
}
