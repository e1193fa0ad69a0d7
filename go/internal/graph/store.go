// Package graph is the read-only accessor for players and their labeled
// connections (C1). Reads are served from an in-memory adjacency cache
// populated once at startup from a snapshot of the players and
// player_connections tables; the server does not accept matchmaking or
// game traffic until that load completes.
package graph

import (
	"sync"

	"github.com/fourthdown/gridlink/go/internal/models"
)

// Store is the in-memory adjacency cache. Zero value is not usable;
// construct with NewStore and populate via LoadSnapshot before serving
// traffic.
type Store struct {
	mu        sync.RWMutex
	players   map[string]models.Player
	adjacency map[string][]models.Neighbor
	tiers     map[string][]string // pool tier -> player ids in that tier
	ready     bool

	fallback TransactionalReader
}

// TransactionalReader is the rare-path, single-row lookup used when a
// player isn't present in the snapshot cache (e.g. added after the last
// reload). It is optional; a Store with no fallback simply reports
// NotFound for cache misses.
type TransactionalReader interface {
	GetPlayer(id string) (models.Player, bool, error)
}

// NewStore returns an empty, not-yet-ready Store.
func NewStore(fallback TransactionalReader) *Store {
	return &Store{
		players:   make(map[string]models.Player),
		adjacency: make(map[string][]models.Neighbor),
		tiers:     make(map[string][]string),
		fallback:  fallback,
	}
}

// Ready reports whether the snapshot load has completed.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// GetPlayer returns the player for id, consulting the transactional
// fallback on a cache miss.
func (s *Store) GetPlayer(id string) (models.Player, bool, error) {
	s.mu.RLock()
	p, ok := s.players[id]
	s.mu.RUnlock()
	if ok {
		return p, true, nil
	}
	if s.fallback == nil {
		return models.Player{}, false, nil
	}
	return s.fallback.GetPlayer(id)
}

// GetNeighbors returns every neighbor of id whose edge type is in
// allowed, each (neighbor, type) pair exactly once. Order is the
// adjacency list's build order — unspecified by contract but stable
// within a process run.
func (s *Store) GetNeighbors(id string, allowed models.ConnectionTypeSet) []models.Neighbor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.adjacency[id]
	if allowed == nil {
		out := make([]models.Neighbor, len(all))
		copy(out, all)
		return out
	}

	out := make([]models.Neighbor, 0, len(all))
	for _, n := range all {
		if allowed.Contains(n.Type) {
			out = append(out, n)
		}
	}
	return out
}

// RandomPlayerIdsByTier returns the full id set for a pool tier, for the
// Endpoint Picker to sample from.
func (s *Store) RandomPlayerIdsByTier(tier string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.tiers[tier]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// AllPlayerIds returns every known player id, used as the Endpoint
// Picker's widest fallback tier.
func (s *Store) AllPlayerIds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.players))
	for id := range s.players {
		out = append(out, id)
	}
	return out
}
