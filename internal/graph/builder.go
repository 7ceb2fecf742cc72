package graph

import (
	"context"
	"log/slog"
	"path"
	"sort"

	"driftmap/internal/adapters"
	"driftmap/internal/git"
)

// Builder assembles graphs from parse results and diff state.
type Builder struct {
	registry *adapters.Registry
	vcs      *git.Client
	rules    *RuleSet
	logger   *slog.Logger
}

// NewBuilder creates a builder. vcs may be nil when the analyzed tree is not
// a repository; nil rules fall back to the built-in heuristics.
func NewBuilder(registry *adapters.Registry, vcs *git.Client, rules *RuleSet, logger *slog.Logger) *Builder {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Builder{registry: registry, vcs: vcs, rules: rules, logger: logger}
}

// Build turns parse results into a graph. diff may be nil, in which case all
// nodes are unchanged. baseRef names the ref used for export signature
// comparison; empty skips the comparison. Build never fails: degraded inputs
// shrink the graph instead of aborting it.
func (b *Builder) Build(ctx context.Context, files []*adapters.ParsedFile, diff *git.DiffResult, baseRef string) *Graph {
	g := NewGraph()

	sorted := make([]*adapters.ParsedFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	for _, pf := range sorted {
		status := StatusUnchanged
		if diff != nil {
			if s, ok := diff.Statuses[pf.Path]; ok {
				status = statusFromGit(s)
			}
		}
		g.Nodes[pf.Path] = &Node{
			ID:              pf.Path,
			Label:           path.Base(pf.Path),
			Kind:            b.rules.Classify(pf.Path),
			Status:          status,
			ExportSignature: pf.ExportSignature,
			Language:        pf.Language,
		}
	}

	b.addDeletedNodes(g, diff)
	changed := b.changedSignatures(ctx, g, baseRef)

	nodeSet := make(map[string]bool, len(g.Nodes))
	for id := range g.Nodes {
		nodeSet[id] = true
	}
	res := newResolver(nodeSet, b.registry.Extensions())

	seen := make(map[string]bool)
	for _, pf := range sorted {
		importer := g.Nodes[pf.Path]
		for _, imp := range pf.Imports {
			if !imp.IsRelative {
				continue
			}
			target, ok := res.resolve(pf.Path, imp.Source, pf.Language)
			if !ok || target == pf.Path {
				continue
			}
			if seen[pf.Path+"\x00"+target] {
				continue
			}
			seen[pf.Path+"\x00"+target] = true

			e := g.AppendEdge(pf.Path, target, LinkDependency)
			e.Broken = (changed[target] && importer.Status == StatusUnchanged) ||
				g.Nodes[target].Status == StatusDeleted
		}
	}

	b.logger.Debug("graph built",
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"changedSignatures", len(changed))
	return g
}

// addDeletedNodes creates nodes for paths the diff marks deleted. They have
// no parse result, but edges pointing at them need an endpoint to carry the
// broken flag.
func (b *Builder) addDeletedNodes(g *Graph, diff *git.DiffResult) {
	if diff == nil {
		return
	}

	paths := make([]string, 0, len(diff.Statuses))
	for p, s := range diff.Statuses {
		if s == git.StatusDeleted {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	for _, p := range paths {
		if _, exists := g.Nodes[p]; exists {
			continue
		}
		adapter, ok := b.registry.ResolvePath(p)
		if !ok {
			continue
		}
		g.Nodes[p] = &Node{
			ID:       p,
			Label:    path.Base(p),
			Kind:     b.rules.Classify(p),
			Status:   StatusDeleted,
			Language: adapter.Name,
		}
	}
}

// changedSignatures compares each modified node's export signature against
// the same file at baseRef. Files absent from the base and unreadable refs
// count as unchanged.
func (b *Builder) changedSignatures(ctx context.Context, g *Graph, baseRef string) map[string]bool {
	changed := make(map[string]bool)
	if baseRef == "" || b.vcs == nil {
		return changed
	}

	for _, id := range g.SortedNodeIDs() {
		node := g.Nodes[id]
		if node.Status != StatusModified {
			continue
		}
		if ctx.Err() != nil {
			b.logger.Debug("signature comparison interrupted", "error", ctx.Err())
			break
		}

		adapter, ok := b.registry.ResolvePath(id)
		if !ok || adapter.ExtractExportSignature == nil {
			continue
		}
		content, err := b.vcs.ShowFileAtRef(baseRef, id)
		if err != nil {
			b.logger.Debug("base content unreadable, signature treated as unchanged", "path", id, "error", err)
			continue
		}
		if adapter.ExtractExportSignature(content, id) != node.ExportSignature {
			changed[id] = true
		}
	}
	return changed
}
