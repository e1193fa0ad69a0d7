// Package endpoint implements the Endpoint Picker (C3): given a
// difficulty, it selects a start/end player pair from a tiered pool
// that is reachable under the difficulty's connection-type filter and
// satisfies its minimum-hop floor.
package endpoint

import (
	"math/rand"
	"sync"

	"github.com/fourthdown/gridlink/go/internal/models"
)

// minPoolSize is the floor below which a tier is considered too thin
// and the picker widens to the next tier (spec.md §4.3 step 1).
const minPoolSize = 10

// widerTiers gives, for each named tier, the fallback chain to try
// when the pool is too small — ending at the full player set.
var widerTiers = map[string][]string{
	"stars":    {"starters", "recorded"},
	"starters": {"recorded"},
	"recorded": {},
}

// Pool is the subset of the Graph Store's contract the picker needs.
type Pool interface {
	RandomPlayerIdsByTier(tier string) []string
	AllPlayerIds() []string
}

// PathSearcher is the subset of the Pathfinder's contract the picker
// needs to validate reachability and hop count.
type PathSearcher interface {
	ShortestPath(startID, endID string, allowed models.ConnectionTypeSet) []string
}

// Picker draws endpoint pairs. Its randomness is seedable so tests can
// reproduce a pick deterministically; production seeds from an
// unbiased source (crypto/rand-derived or time-derived) at construction.
type Picker struct {
	store      Pool
	pathfinder PathSearcher
	attempts   int

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Picker that retries up to attempts times per call
// before reporting NoneAvailable (N=50 by default, see spec.md §6.3).
func New(store Pool, pathfinder PathSearcher, attempts int, seed int64) *Picker {
	return &Picker{
		store:      store,
		pathfinder: pathfinder,
		attempts:   attempts,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// PickEndpoints selects a (start, end) pair satisfying params, or
// reports ok=false (NoneAvailable) if no pair was found within the
// attempt budget.
func (p *Picker) PickEndpoints(params models.DifficultyParams) (startID, endID string, ok bool) {
	pool := p.materializePool(params.PoolTier)
	if len(pool) < 2 {
		return "", "", false
	}

	for attempt := 0; attempt < p.attempts; attempt++ {
		a, b := p.sampleTwo(pool)

		path := p.pathfinder.ShortestPath(a, b, params.AllowedTypes)
		if path == nil {
			continue
		}
		edges := len(path) - 1
		if edges >= params.MinEdges {
			return a, b, true
		}
	}

	return "", "", false
}

// materializePool builds the candidate pool for tier, widening through
// widerTiers and finally to the full player set if too small.
func (p *Picker) materializePool(tier string) []string {
	pool := p.store.RandomPlayerIdsByTier(tier)
	if len(pool) >= minPoolSize {
		return pool
	}

	for _, wider := range widerTiers[tier] {
		candidate := p.store.RandomPlayerIdsByTier(wider)
		if len(candidate) >= minPoolSize {
			return candidate
		}
		if len(candidate) > len(pool) {
			pool = candidate
		}
	}

	full := p.store.AllPlayerIds()
	if len(full) > len(pool) {
		return full
	}
	return pool
}

// sampleTwo draws two distinct uniformly random ids from pool.
func (p *Picker) sampleTwo(pool []string) (string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.rng.Intn(len(pool))
	j := p.rng.Intn(len(pool))
	for j == i && len(pool) > 1 {
		j = p.rng.Intn(len(pool))
	}
	return pool[i], pool[j]
}
