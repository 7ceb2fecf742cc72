package main

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"driftmap/internal/engine"
	"driftmap/internal/graph"
	"driftmap/internal/output"
)

// OutputFormat selects how a response is rendered.
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
	FormatHuman OutputFormat = "human"
)

// FormatResponse renders a response in the requested format. JSON goes
// through the deterministic encoder so identical results are
// byte-identical.
func FormatResponse(resp any, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatYAML:
		return formatYAML(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s (expected json, yaml, or human)", format)
	}
}

func formatJSON(resp any) (string, error) {
	data, err := output.MarshalIndent(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatYAML(resp any) (string, error) {
	data, err := yaml.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func formatHuman(resp any) (string, error) {
	switch v := resp.(type) {
	case *graph.Graph:
		return formatGraphHuman(v), nil
	case *impactResponse:
		return formatImpactHuman(v), nil
	case *similarResponse:
		return formatSimilarHuman(v), nil
	case *conflictsResponse:
		return formatConflictsHuman(v), nil
	case *engine.Status:
		return formatStatusHuman(v), nil
	case *historyResponse:
		return formatHistoryHuman(v), nil
	default:
		// Unknown response shapes fall back to JSON.
		return formatJSON(resp)
	}
}

func header(b *strings.Builder, title string) {
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
}

func formatGraphHuman(g *graph.Graph) string {
	var b strings.Builder
	header(&b, "Driftmap Analysis")

	s := output.Summarize(g)
	b.WriteString(fmt.Sprintf("%d files, %d dependency edges, %d semantic, %d broken\n",
		s.Files, s.DependencyEdges, s.SemanticEdges, s.BrokenEdges))

	statusMark := map[graph.DiffStatus]string{
		graph.StatusModified: "~",
		graph.StatusAdded:    "+",
		graph.StatusDeleted:  "-",
	}
	if s.Changed > 0 {
		b.WriteString("\nChanged files:\n")
		for _, id := range g.SortedNodeIDs() {
			n := g.Nodes[id]
			if n.Status == graph.StatusUnchanged {
				continue
			}
			b.WriteString(fmt.Sprintf("  %s %s (%s)\n", statusMark[n.Status], n.ID, n.Status))
		}
	}

	if s.BrokenEdges > 0 {
		b.WriteString("\nBroken edges:\n")
		for _, e := range g.Edges {
			if e.Broken {
				b.WriteString(fmt.Sprintf("  ! %s -> %s\n", e.Source, e.Target))
			}
		}
	}

	if s.SemanticEdges > 0 {
		b.WriteString("\nSemantic links:\n")
		for _, e := range g.Edges {
			if e.Type != graph.LinkSemantic {
				continue
			}
			sim := ""
			if e.Similarity != nil {
				sim = " (similarity " + output.FormatFloat(*e.Similarity) + ")"
			}
			b.WriteString(fmt.Sprintf("  %s ~ %s%s\n", e.Source, e.Target, sim))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatImpactHuman(resp *impactResponse) string {
	var b strings.Builder

	if resp.Impact != nil {
		r := resp.Impact
		header(&b, fmt.Sprintf("Impact Radius: %s", r.Origin))
		b.WriteString(fmt.Sprintf("Direction: %s, depth %d, %d files reached\n", r.Direction, r.Depth, r.Total))
		for _, level := range r.Levels {
			b.WriteString(fmt.Sprintf("\nDistance %d (%d files):\n", level.Depth, len(level.Paths)))
			for _, p := range level.Paths {
				b.WriteString("  " + p + "\n")
			}
		}
	} else {
		header(&b, "Risk Ranking")
	}

	if resp.Rank != nil {
		if resp.Impact != nil {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("Risk ranking (%d seeds", len(resp.Rank.Seeds)))
		if !resp.Rank.Converged {
			b.WriteString(fmt.Sprintf(", not converged after %d iterations", resp.Rank.Iterations))
		}
		b.WriteString("):\n")
		for i, r := range resp.Rank.Results {
			b.WriteString(fmt.Sprintf("  %d. %s (score %s)\n", i+1, r.ID, output.FormatFloat(r.Score)))
			if len(r.Path) > 1 {
				b.WriteString("     via " + strings.Join(r.Path, " -> ") + "\n")
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatSimilarHuman(resp *similarResponse) string {
	var b strings.Builder
	header(&b, fmt.Sprintf("Files Similar To: %s", resp.Path))

	if len(resp.Results) == 0 {
		b.WriteString("No similar files found.\n")
	}
	for i, s := range resp.Results {
		b.WriteString(fmt.Sprintf("  %d. %s (similarity %s)\n", i+1, s.Path, output.FormatFloat(s.Similarity)))
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatConflictsHuman(resp *conflictsResponse) string {
	var b strings.Builder
	header(&b, "Cross-Branch Conflicts")

	if len(resp.Warnings) == 0 {
		b.WriteString("No conflicts detected.\n")
		return strings.TrimRight(b.String(), "\n")
	}

	b.WriteString(fmt.Sprintf("%d warning(s)\n\n", len(resp.Warnings)))
	for _, w := range resp.Warnings {
		b.WriteString(fmt.Sprintf("  [%s] %s\n", w.Severity, w.Description))
		if w.Similarity != nil {
			b.WriteString("        similarity " + output.FormatFloat(*w.Similarity) + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatStatusHuman(st *engine.Status) string {
	var b strings.Builder
	header(&b, "Driftmap Status")

	b.WriteString("Repository:\n")
	b.WriteString(fmt.Sprintf("  Root: %s\n", st.Root))
	if st.CurrentBranch != "" {
		b.WriteString(fmt.Sprintf("  Branch: %s\n", st.CurrentBranch))
	}
	if st.BaseBranch != "" {
		b.WriteString(fmt.Sprintf("  Base: %s\n", st.BaseBranch))
	}
	b.WriteString("\n")

	b.WriteString("Cache:\n")
	if st.Cache != nil {
		b.WriteString(fmt.Sprintf("  Schema: v%d\n", st.Cache.SchemaVersion))
		b.WriteString(fmt.Sprintf("  Parse entries: %d\n", st.Cache.ParseEntries))
		b.WriteString(fmt.Sprintf("  Embedding entries: %d\n", st.Cache.EmbeddingEntries))
		b.WriteString(fmt.Sprintf("  Size: %s\n", formatBytes(st.Cache.SizeBytes)))
	} else if st.CacheEnabled {
		b.WriteString("  Enabled, no statistics available\n")
	} else {
		b.WriteString("  Disabled\n")
	}
	b.WriteString("\n")

	b.WriteString("Embeddings:\n")
	b.WriteString(fmt.Sprintf("  Model: %s\n", st.ModelID))
	b.WriteString(fmt.Sprintf("  %s Model artifact\n", presentMark(st.ModelPresent)))
	b.WriteString(fmt.Sprintf("  %s Vocabulary\n", presentMark(st.VocabPresent)))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Vector provider: %s\n", st.Provider))
	b.WriteString(fmt.Sprintf("History snapshots: %d\n", st.Snapshots))

	return strings.TrimRight(b.String(), "\n")
}

func presentMark(present bool) string {
	if present {
		return "✓"
	}
	return "✗"
}

func formatHistoryHuman(resp *historyResponse) string {
	var b strings.Builder
	header(&b, "Analysis History")

	if len(resp.Snapshots) == 0 {
		b.WriteString("No snapshots recorded.\n")
		return strings.TrimRight(b.String(), "\n")
	}

	for _, s := range resp.Snapshots {
		commit := s.Commit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		line := s.Timestamp.UTC().Format("2006-01-02 15:04:05")
		if s.Branch != "" {
			line += " " + s.Branch
		}
		if commit != "" {
			line += " @" + commit
		}
		line += fmt.Sprintf(": %d files, %d edges, %d broken", s.Nodes, s.Edges, s.Broken)
		if s.Label != "" {
			line += fmt.Sprintf(" [%s]", s.Label)
		}
		b.WriteString("  " + line + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// formatBytes renders a byte count with a binary-unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
