package graph

import (
	"context"
	"fmt"
	"path"
	"testing"
)

// rankGraph builds a graph of unchanged file nodes with dependency edges
// source -> target, where source imports target.
func rankGraph(edges [][2]string) *Graph {
	g := NewGraph()
	for _, e := range edges {
		for _, id := range []string{e[0], e[1]} {
			if g.Nodes[id] == nil {
				g.Nodes[id] = &Node{ID: id, Label: path.Base(id), Kind: KindFile, Status: StatusUnchanged}
			}
		}
		g.AppendEdge(e[0], e[1], LinkDependency)
	}
	return g
}

func TestRiskRankSeedScoresHighest(t *testing.T) {
	// a and b import util; c imports a. Risk seeded at util should reach
	// all three importers but never exceed the seed itself.
	g := rankGraph([][2]string{
		{"src/a.ts", "src/util.ts"},
		{"src/b.ts", "src/util.ts"},
		{"src/c.ts", "src/a.ts"},
	})

	out, err := g.RiskRank(context.Background(), []string{"src/util.ts"}, DefaultRankOptions())
	if err != nil {
		t.Fatalf("RiskRank failed: %v", err)
	}

	if len(out.Results) != 4 {
		t.Fatalf("expected all 4 nodes ranked, got %d: %+v", len(out.Results), out.Results)
	}
	if out.Results[0].ID != "src/util.ts" {
		t.Errorf("expected seed ranked first, got %s", out.Results[0].ID)
	}

	scores := make(map[string]float64)
	for _, r := range out.Results {
		scores[r.ID] = r.Score
	}
	if scores["src/a.ts"] <= scores["src/c.ts"] {
		t.Errorf("direct importer should outrank transitive one: a=%f c=%f",
			scores["src/a.ts"], scores["src/c.ts"])
	}
}

func TestRiskRankDeterministicTieBreak(t *testing.T) {
	g := rankGraph([][2]string{
		{"b.ts", "util.ts"},
		{"a.ts", "util.ts"},
	})

	out, err := g.RiskRank(context.Background(), []string{"util.ts"}, DefaultRankOptions())
	if err != nil {
		t.Fatalf("RiskRank failed: %v", err)
	}

	// a and b receive identical mass; the tie must break lexically.
	if len(out.Results) != 3 {
		t.Fatalf("expected 3 results, got %+v", out.Results)
	}
	if out.Results[1].ID != "a.ts" || out.Results[2].ID != "b.ts" {
		t.Errorf("expected lexical tiebreak a.ts before b.ts, got %s then %s",
			out.Results[1].ID, out.Results[2].ID)
	}
}

func TestRiskRankMultipleSeeds(t *testing.T) {
	g := rankGraph([][2]string{
		{"shared.ts", "a.ts"},
		{"shared.ts", "b.ts"},
		{"lone.ts", "c.ts"},
	})

	out, err := g.RiskRank(context.Background(), []string{"a.ts", "b.ts"}, DefaultRankOptions())
	if err != nil {
		t.Fatalf("RiskRank failed: %v", err)
	}
	if len(out.Seeds) != 2 {
		t.Errorf("expected both seeds valid, got %v", out.Seeds)
	}

	found := false
	for _, r := range out.Results {
		if r.ID == "shared.ts" {
			found = true
		}
		if r.ID == "c.ts" {
			t.Error("c.ts is unreachable from the seeds and must not be ranked")
		}
	}
	if !found {
		t.Error("expected shared.ts to receive risk from both seeds")
	}
}

func TestRiskRankEmptySeeds(t *testing.T) {
	g := rankGraph([][2]string{{"a.ts", "b.ts"}})
	if _, err := g.RiskRank(context.Background(), nil, DefaultRankOptions()); err == nil {
		t.Error("expected error for empty seed list")
	}
}

func TestRiskRankUnknownSeeds(t *testing.T) {
	g := rankGraph([][2]string{{"a.ts", "b.ts"}})

	out, err := g.RiskRank(context.Background(), []string{"missing.ts"}, DefaultRankOptions())
	if err != nil {
		t.Fatalf("RiskRank failed: %v", err)
	}
	if len(out.Results) != 0 {
		t.Errorf("expected no results for unknown seeds, got %+v", out.Results)
	}
}

func TestRiskRankPathBacktracking(t *testing.T) {
	g := rankGraph([][2]string{
		{"c.ts", "a.ts"},
		{"a.ts", "util.ts"},
	})

	opts := DefaultRankOptions()
	opts.IncludePaths = true
	out, err := g.RiskRank(context.Background(), []string{"util.ts"}, opts)
	if err != nil {
		t.Fatalf("RiskRank failed: %v", err)
	}

	for _, r := range out.Results {
		if r.ID != "c.ts" {
			continue
		}
		if len(r.Path) == 0 || r.Path[0] != "util.ts" {
			t.Errorf("expected path from seed to c.ts, got %v", r.Path)
		}
		return
	}
	t.Error("expected c.ts in results")
}

func TestRiskRankSemanticEdgesPropagate(t *testing.T) {
	g := NewGraph()
	g.Nodes["a.ts"] = &Node{ID: "a.ts", Status: StatusUnchanged}
	g.Nodes["twin.ts"] = &Node{ID: "twin.ts", Status: StatusUnchanged}
	sim := 0.9
	e := g.AppendEdge("a.ts", "twin.ts", LinkSemantic)
	e.Similarity = &sim

	out, err := g.RiskRank(context.Background(), []string{"a.ts"}, DefaultRankOptions())
	if err != nil {
		t.Fatalf("RiskRank failed: %v", err)
	}

	found := false
	for _, r := range out.Results {
		if r.ID == "twin.ts" && r.Score > 0 {
			found = true
		}
	}
	if !found {
		t.Error("expected risk to propagate across the semantic edge")
	}
}

func TestRiskRankTopK(t *testing.T) {
	edges := make([][2]string, 0, 30)
	for i := 0; i < 30; i++ {
		edges = append(edges, [2]string{fmt.Sprintf("imp%02d.ts", i), "core.ts"})
	}
	g := rankGraph(edges)

	opts := DefaultRankOptions()
	opts.TopK = 5
	out, err := g.RiskRank(context.Background(), []string{"core.ts"}, opts)
	if err != nil {
		t.Fatalf("RiskRank failed: %v", err)
	}
	if len(out.Results) != 5 {
		t.Errorf("expected results capped at 5, got %d", len(out.Results))
	}
}

func TestFilterRanked(t *testing.T) {
	results := []RankedNode{
		{ID: "src/api/foo.ts", Score: 0.5},
		{ID: "src/api/bar.ts", Score: 0.3},
		{ID: "lib/baz.ts", Score: 0.2},
	}

	if got := FilterRankedByPrefix(results, "src/api/"); len(got) != 2 {
		t.Errorf("expected 2 results under src/api/, got %d", len(got))
	}
	if got := FilterRankedByMinScore(results, 0.3); len(got) != 2 {
		t.Errorf("expected 2 results with score >= 0.3, got %d", len(got))
	}
}
