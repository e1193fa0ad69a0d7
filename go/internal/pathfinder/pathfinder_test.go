package pathfinder

import (
	"sort"
	"testing"

	"github.com/fourthdown/gridlink/go/internal/models"
)

// fakeGraph is a small hand-crafted adjacency map used to cross-check
// the BFS implementation against hand-computed expectations.
type fakeGraph map[string][]models.Neighbor

func (g fakeGraph) GetNeighbors(id string, allowed models.ConnectionTypeSet) []models.Neighbor {
	var out []models.Neighbor
	for _, n := range g[id] {
		if allowed == nil || allowed.Contains(n.Type) {
			out = append(out, n)
		}
	}
	return out
}

func undirected(g fakeGraph, a, b string, t models.ConnectionType) {
	g[a] = append(g[a], models.Neighbor{PlayerID: b, Type: t})
	g[b] = append(g[b], models.Neighbor{PlayerID: a, Type: t})
}

// A - B - C - D
// |           |
// E --------- F
// A-E-F-D is a 3-hop alternative to A-B-C-D.
func diamondGraph() fakeGraph {
	g := fakeGraph{}
	undirected(g, "A", "B", models.ConnectionTeammate)
	undirected(g, "B", "C", models.ConnectionTeammate)
	undirected(g, "C", "D", models.ConnectionTeammate)
	undirected(g, "A", "E", models.ConnectionTeammate)
	undirected(g, "E", "F", models.ConnectionTeammate)
	undirected(g, "F", "D", models.ConnectionTeammate)
	return g
}

func TestShortestPathSameNode(t *testing.T) {
	pf := New(diamondGraph(), 5)
	got := pf.ShortestPath("A", "A", nil)
	if len(got) != 1 || got[0] != "A" {
		t.Fatalf("expected [A], got %v", got)
	}
}

func TestShortestPathBasic(t *testing.T) {
	pf := New(diamondGraph(), 5)
	got := pf.ShortestPath("A", "D", models.NewConnectionTypeSet(models.ConnectionTeammate))
	if len(got) != 4 {
		t.Fatalf("expected a 3-hop path (4 nodes), got %v", got)
	}
	if got[0] != "A" || got[len(got)-1] != "D" {
		t.Fatalf("path must start at A and end at D, got %v", got)
	}
}

func TestShortestPathsFindsBothMinimalRoutes(t *testing.T) {
	pf := New(diamondGraph(), 5)
	paths := pf.ShortestPaths("A", "D", models.NewConnectionTypeSet(models.ConnectionTeammate), 3)
	if len(paths) != 2 {
		t.Fatalf("expected 2 distinct shortest paths, got %d: %v", len(paths), paths)
	}
	for _, p := range paths {
		if len(p) != 4 {
			t.Fatalf("all returned paths must share the minimum length, got %v", p)
		}
	}

	var seqs []string
	for _, p := range paths {
		seqs = append(seqs, p[1]) // the second hop distinguishes the two routes
	}
	sort.Strings(seqs)
	if seqs[0] != "B" || seqs[1] != "E" {
		t.Fatalf("expected routes via B and via E, got %v", seqs)
	}
}

func TestShortestPathUnreachableUnderFilter(t *testing.T) {
	g := fakeGraph{}
	undirected(g, "A", "B", models.ConnectionDraftClass)
	pf := New(g, 5)
	got := pf.ShortestPath("A", "B", models.NewConnectionTypeSet(models.ConnectionTeammate))
	if got != nil {
		t.Fatalf("expected unreachable under a filter excluding the only edge type, got %v", got)
	}
}

func TestShortestPathRespectsDepthBound(t *testing.T) {
	g := fakeGraph{}
	undirected(g, "A", "B", models.ConnectionTeammate)
	undirected(g, "B", "C", models.ConnectionTeammate)
	undirected(g, "C", "D", models.ConnectionTeammate)
	pf := New(g, 2) // only 2 hops allowed, A->D needs 3
	got := pf.ShortestPath("A", "D", models.NewConnectionTypeSet(models.ConnectionTeammate))
	if got != nil {
		t.Fatalf("expected nil beyond depth bound, got %v", got)
	}
}

func TestShortestPathUnknownEndpoint(t *testing.T) {
	pf := New(diamondGraph(), 5)
	got := pf.ShortestPath("A", "nonexistent-player", models.NewConnectionTypeSet(models.ConnectionTeammate))
	if got != nil {
		t.Fatalf("expected nil for an endpoint absent from the graph, got %v", got)
	}
}

func TestShortestPathsNoRepeatedNodes(t *testing.T) {
	pf := New(diamondGraph(), 5)
	paths := pf.ShortestPaths("A", "D", models.NewConnectionTypeSet(models.ConnectionTeammate), 3)
	for _, p := range paths {
		seen := make(map[string]bool)
		for _, node := range p {
			if seen[node] {
				t.Fatalf("path contains a repeated node: %v", p)
			}
			seen[node] = true
		}
	}
}
