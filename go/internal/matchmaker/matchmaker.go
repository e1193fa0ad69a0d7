// Package matchmaker implements the wait queue (C4): pairs the two
// oldest clients, playing at the first entry's difficulty whatever the
// second declared, and hands them off to the Session Engine.
package matchmaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fourthdown/gridlink/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Entry is one waiting client, ordered by EnqueueTime.
type Entry struct {
	ChannelID   string
	UserID      string
	Difficulty  models.Difficulty
	EnqueueTime time.Time
}

// EndpointPicker is the subset of the Endpoint Picker's contract the
// Matchmaker needs to validate a pairing before committing to it.
type EndpointPicker interface {
	PickEndpoints(params models.DifficultyParams) (startID, endID string, ok bool)
}

// DifficultyLookup resolves a difficulty to its tuning parameters.
type DifficultyLookup interface {
	Get(d models.Difficulty) (models.DifficultyParams, bool)
}

// SessionFactory is what the Matchmaker hands a successful pairing to.
type SessionFactory interface {
	CreateMultiplayer(ctx context.Context, a, b Entry, difficulty models.Difficulty, startID, endID string) error
}

// Matchmaker is the single shared queue; Enqueue, Dequeue and TryMatch
// are serialized with respect to each other via mu, following the
// single-logical-writer discipline used throughout this server.
type Matchmaker struct {
	mu    sync.Mutex
	queue []Entry

	picker     EndpointPicker
	difficulty DifficultyLookup
	sessions   SessionFactory

	now func() time.Time
}

// New constructs an empty Matchmaker.
func New(picker EndpointPicker, difficulty DifficultyLookup, sessions SessionFactory) *Matchmaker {
	return &Matchmaker{
		picker:     picker,
		difficulty: difficulty,
		sessions:   sessions,
		now:        time.Now,
	}
}

// Enqueue appends a queue entry for channel. Rejects a channel that
// already has an entry (at most one entry per channel, spec.md §3).
func (m *Matchmaker) Enqueue(ctx context.Context, channelID, userID string, difficulty models.Difficulty) error {
	m.mu.Lock()
	for _, e := range m.queue {
		if e.ChannelID == channelID {
			m.mu.Unlock()
			return fmt.Errorf("channel %s already has a queue entry", channelID)
		}
	}
	m.queue = append(m.queue, Entry{
		ChannelID:   channelID,
		UserID:      userID,
		Difficulty:  difficulty,
		EnqueueTime: m.now(),
	})
	m.mu.Unlock()

	log.Debug().Str("channel_id", channelID).Str("difficulty", string(difficulty)).Msg("enqueued")

	m.tryMatch(ctx)
	return nil
}

// Dequeue removes channel's entry if present. Enqueue then immediate
// Dequeue on the same channel is a no-op (spec.md §8).
func (m *Matchmaker) Dequeue(channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.queue {
		if e.ChannelID == channelID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return true
		}
	}
	return false
}

// tryMatch drains the queue two entries at a time while a match is
// achievable. Endpoint exhaustion on the head pair aborts the whole
// pass — re-prepending both entries — rather than skipping ahead,
// since the next pair would only repeat the same failure.
func (m *Matchmaker) tryMatch(ctx context.Context) {
	for {
		m.mu.Lock()
		if len(m.queue) < 2 {
			m.mu.Unlock()
			return
		}
		a := m.queue[0]
		b := m.queue[1]
		m.queue = m.queue[2:]
		m.mu.Unlock()

		params, ok := m.difficulty.Get(a.Difficulty)
		if !ok {
			log.Warn().Str("difficulty", string(a.Difficulty)).Msg("unknown difficulty in queue entry")
			m.requeueFront(a, b)
			return
		}

		startID, endID, ok := m.picker.PickEndpoints(params)
		if !ok {
			log.Warn().Str("difficulty", string(a.Difficulty)).Msg("endpoint picker exhausted; aborting match pass")
			m.requeueFront(a, b)
			return
		}

		if err := m.sessions.CreateMultiplayer(ctx, a, b, a.Difficulty, startID, endID); err != nil {
			log.Error().Err(err).Str("channel_a", a.ChannelID).Str("channel_b", b.ChannelID).Msg("failed to create multiplayer session")
			return
		}
	}
}

// requeueFront puts a, b back at the head of the queue, preserving
// their original relative order and the rest of the queue's order.
func (m *Matchmaker) requeueFront(a, b Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append([]Entry{a, b}, m.queue...)
}

// Len returns the current queue length, for the admin/health surface.
func (m *Matchmaker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
