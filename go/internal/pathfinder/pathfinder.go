// Package pathfinder implements the bounded-depth, type-filtered
// shortest-path search (C2) that the Endpoint Picker and the Session
// Engine depend on.
package pathfinder

import (
	"strings"

	"github.com/fourthdown/gridlink/go/internal/models"
)

// NeighborLookup is the subset of the Graph Store's contract the
// Pathfinder depends on; satisfied by *graph.Store.
type NeighborLookup interface {
	GetNeighbors(id string, allowed models.ConnectionTypeSet) []models.Neighbor
}

// Pathfinder performs breadth-first search over a NeighborLookup,
// expanding only edges whose type is in the caller's filter, with no
// cycles and a fixed maximum hop count.
type Pathfinder struct {
	store    NeighborLookup
	maxDepth int
}

// New returns a Pathfinder bounded to maxDepth hops (D=5 by default,
// see spec.md §6.3).
func New(store NeighborLookup, maxDepth int) *Pathfinder {
	return &Pathfinder{store: store, maxDepth: maxDepth}
}

// ShortestPath returns one shortest node-sequence from startID to endID,
// or nil if none exists within the depth bound.
func (pf *Pathfinder) ShortestPath(startID, endID string, allowed models.ConnectionTypeSet) []string {
	paths := pf.ShortestPaths(startID, endID, allowed, 1)
	if len(paths) == 0 {
		return nil
	}
	return paths[0]
}

// ShortestPaths returns up to k distinct node-sequences, each of the
// minimum length connecting startID to endID under allowed, or nil if
// unreachable within the depth bound. startID == endID always yields
// the single-node sequence [startID].
func (pf *Pathfinder) ShortestPaths(startID, endID string, allowed models.ConnectionTypeSet, k int) [][]string {
	if startID == endID {
		return [][]string{{startID}}
	}
	if k <= 0 {
		return nil
	}

	dist := map[string]int{startID: 0}
	preds := map[string][]string{}
	level := []string{startID}

	for depth := 0; depth < pf.maxDepth && len(level) > 0; depth++ {
		var next []string
		nextSeen := make(map[string]bool)

		for _, node := range level {
			seenNeighbor := make(map[string]bool)
			for _, nb := range pf.store.GetNeighbors(node, allowed) {
				if seenNeighbor[nb.PlayerID] {
					continue
				}
				seenNeighbor[nb.PlayerID] = true

				if d, visited := dist[nb.PlayerID]; visited {
					if d == depth+1 {
						preds[nb.PlayerID] = append(preds[nb.PlayerID], node)
					}
					continue
				}

				dist[nb.PlayerID] = depth + 1
				preds[nb.PlayerID] = append(preds[nb.PlayerID], node)
				if !nextSeen[nb.PlayerID] {
					nextSeen[nb.PlayerID] = true
					next = append(next, nb.PlayerID)
				}
			}
		}

		if _, ok := dist[endID]; ok {
			break
		}
		level = next
	}

	if _, ok := dist[endID]; !ok {
		return nil
	}

	var results [][]string
	seen := make(map[string]bool)

	var backtrack func(node string, tail []string)
	backtrack = func(node string, tail []string) {
		if len(results) >= k {
			return
		}
		if node == startID {
			full := make([]string, 0, len(tail)+1)
			full = append(full, startID)
			full = append(full, tail...)
			key := strings.Join(full, ">")
			if !seen[key] {
				seen[key] = true
				results = append(results, full)
			}
			return
		}
		for _, p := range preds[node] {
			if len(results) >= k {
				return
			}
			backtrack(p, append([]string{node}, tail...))
		}
	}
	backtrack(endID, nil)

	return results
}
