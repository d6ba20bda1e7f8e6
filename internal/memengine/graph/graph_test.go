package graph

import (
	"math"
	"testing"

	"memengine/internal/memengine/model"
)

func conns() []*model.Connection {
	return []*model.Connection{
		{SourceID: "A", TargetID: "B", Type: "related", Strength: 0.9},
		{SourceID: "B", TargetID: "C", Type: "related", Strength: 0.5},
		{SourceID: "D", TargetID: "E", Type: "related", Strength: 0.7},
	}
}

func TestFindConnectedMemoriesBFS(t *testing.T) {
	g := Build(conns())
	got := g.FindConnectedMemories("A", 2, TraversalFilter{})

	want := map[string]bool{"A": true, "B": true, "C": true}
	if len(got) != len(want) {
		t.Fatalf("FindConnectedMemories = %v, want members %v", got, want)
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("unexpected member %q in connected set", id)
		}
	}
}

func TestFindPathDirectAndUnreachable(t *testing.T) {
	g := Build(conns())

	path := g.FindPath("A", "C", 5)
	if len(path) != 3 || path[0] != "A" || path[2] != "C" {
		t.Errorf("FindPath(A,C) = %v, want [A B C]", path)
	}

	if p := g.FindPath("A", "A", 5); len(p) != 1 || p[0] != "A" {
		t.Errorf("FindPath(A,A) = %v, want [A]", p)
	}

	if p := g.FindPath("A", "D", 5); p != nil {
		t.Errorf("FindPath(A,D) = %v, want nil (disconnected components)", p)
	}
}

func TestFindClustersMatchesWorkedExample(t *testing.T) {
	g := Build(conns())
	clusters := g.FindClusters()

	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d: %+v", len(clusters), clusters)
	}

	byID := func(id string, c Cluster) bool {
		for _, m := range c.Members {
			if m == id {
				return true
			}
		}
		return false
	}

	var abc, de *Cluster
	for i := range clusters {
		if byID("A", clusters[i]) {
			abc = &clusters[i]
		}
		if byID("D", clusters[i]) {
			de = &clusters[i]
		}
	}
	if abc == nil || de == nil {
		t.Fatalf("expected clusters containing A and D, got %+v", clusters)
	}

	if abc.Size != 3 {
		t.Errorf("ABC cluster size = %d, want 3", abc.Size)
	}
	if math.Abs(abc.AvgStrength-0.7) > 1e-9 {
		t.Errorf("ABC cluster avgStrength = %v, want 0.7", abc.AvgStrength)
	}
	if de.Size != 2 {
		t.Errorf("DE cluster size = %d, want 2", de.Size)
	}
	if math.Abs(de.AvgStrength-0.7) > 1e-9 {
		t.Errorf("DE cluster avgStrength = %v, want 0.7", de.AvgStrength)
	}
}

func TestFindClustersExcludesSingletons(t *testing.T) {
	g := Build([]*model.Connection{{SourceID: "A", TargetID: "B", Type: "x", Strength: 1.0}})
	g.adj["lonely"] = nil

	clusters := g.FindClusters()
	for _, c := range clusters {
		for _, m := range c.Members {
			if m == "lonely" {
				t.Error("singleton node should not appear in any cluster")
			}
		}
	}
}

func TestGetGraphInsights(t *testing.T) {
	g := Build(conns())
	insights := g.GetGraphInsights()

	if insights.EdgeCount != 3 {
		t.Errorf("EdgeCount = %d, want 3", insights.EdgeCount)
	}
	if insights.Degree["B"] != 2 {
		t.Errorf("Degree[B] = %d, want 2", insights.Degree["B"])
	}
	if insights.StrongestEdge != 0.9 {
		t.Errorf("StrongestEdge = %v, want 0.9", insights.StrongestEdge)
	}
}

func TestTraversalFilterByStrength(t *testing.T) {
	g := Build(conns())
	filter := TraversalFilter{MinStrength: 0.6}

	got := g.FindConnectedMemories("A", 3, filter)
	for _, id := range got {
		if id == "C" {
			t.Error("expected C unreachable once the B->C (0.5) edge is filtered by MinStrength=0.6")
		}
	}
}
