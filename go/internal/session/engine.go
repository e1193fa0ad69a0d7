package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/fourthdown/gridlink/go/internal/config"
	"github.com/fourthdown/gridlink/go/internal/matchmaker"
	"github.com/fourthdown/gridlink/go/internal/models"
)

// Engine is the session registry: the process-global map from
// SessionId to its actor, and from channel to the session it
// participates in. Both maps are guarded by mu, the only
// serialization around session lookup — mutation of an individual
// session's state happens only inside that session's own actor
// goroutine.
type Engine struct {
	mu        sync.Mutex
	sessions  map[string]*sessionActor
	channelTo map[string]string // channelID -> sessionID

	graph   GraphReader
	paths   PathSearcher
	outbox  OutboxWriter
	emitter Emitter
	clock   clockwork.Clock
	cfg     *config.Config
}

func NewEngine(graph GraphReader, paths PathSearcher, outboxWriter OutboxWriter, emitter Emitter, clock clockwork.Clock, cfg *config.Config) *Engine {
	return &Engine{
		sessions:  make(map[string]*sessionActor),
		channelTo: make(map[string]string),
		graph:     graph,
		paths:     paths,
		outbox:    outboxWriter,
		emitter:   emitter,
		clock:     clock,
		cfg:       cfg,
	}
}

// CreateMultiplayer implements matchmaker.SessionFactory: it is the
// Matchmaker's hand-off into the Session Engine once a pair has been
// drawn and validated against the Endpoint Picker.
func (e *Engine) CreateMultiplayer(ctx context.Context, a, b matchmaker.Entry, difficulty models.Difficulty, startID, endID string) error {
	params, ok := e.cfg.Difficulties[difficulty]
	if !ok {
		return fmt.Errorf("unknown difficulty %q", difficulty)
	}

	sess := &Session{
		ID:         uuid.NewString(),
		Mode:       ModeMultiplayer,
		Difficulty: difficulty,

		AllowedTypes: params.AllowedTypes,
		MinEdges:     params.MinEdges,

		Participants: map[string]*Participant{
			a.ChannelID: {ChannelID: a.ChannelID, UserID: a.UserID},
			b.ChannelID: {ChannelID: b.ChannelID, UserID: b.UserID},
		},
		order: []string{a.ChannelID, b.ChannelID},

		StartPlayerID: startID,
		EndPlayerID:   endID,

		Status:     StatusWaiting,
		StartEpoch: e.clock.Now(),

		StrikesRemaining: map[string]int{
			a.ChannelID: params.Strikes,
			b.ChannelID: params.Strikes,
		},
	}

	actor := newSessionActor(sess, e.graph, e.paths, e.outbox, e.emitter, e.clock, e.cfg.Timing, e.remove)
	e.register(actor)
	actor.start()

	startPlayer, endPlayer := e.displayNames(startID, endID)
	startOpp := b.UserID
	endOpp := a.UserID
	actor.post(cmdEmitGameStart{channelID: a.ChannelID, startName: startPlayer, endName: endPlayer, opponentUserID: &startOpp})
	actor.post(cmdEmitGameStart{channelID: b.ChannelID, startName: startPlayer, endName: endPlayer, opponentUserID: &endOpp})

	return nil
}

// CreateSingle creates a single-player session directly in the active
// state; there is no ready phase and no timeout.
func (e *Engine) CreateSingle(ctx context.Context, channelID, userID string, difficulty models.Difficulty, startID, endID string) error {
	params, ok := e.cfg.Difficulties[difficulty]
	if !ok {
		return fmt.Errorf("unknown difficulty %q", difficulty)
	}

	sess := &Session{
		ID:         uuid.NewString(),
		Mode:       ModeSingle,
		Difficulty: difficulty,

		AllowedTypes: params.AllowedTypes,
		MinEdges:     params.MinEdges,

		Participants: map[string]*Participant{
			channelID: {ChannelID: channelID, UserID: userID},
		},
		order: []string{channelID},

		StartPlayerID: startID,
		EndPlayerID:   endID,

		Status:     StatusActive,
		StartEpoch: e.clock.Now(),

		StrikesRemaining: map[string]int{
			channelID: params.Strikes,
		},
	}

	actor := newSessionActor(sess, e.graph, e.paths, e.outbox, e.emitter, e.clock, e.cfg.Timing, e.remove)
	e.register(actor)
	actor.start()

	startPlayer, endPlayer := e.displayNames(startID, endID)
	actor.post(cmdEmitGameStart{channelID: channelID, startName: startPlayer, endName: endPlayer})

	return nil
}

func (e *Engine) displayNames(startID, endID string) (string, string) {
	startName := startID
	if p, ok, err := e.graph.GetPlayer(startID); err == nil && ok {
		startName = p.Name
	}
	endName := endID
	if p, ok, err := e.graph.GetPlayer(endID); err == nil && ok {
		endName = p.Name
	}
	return startName, endName
}

func (e *Engine) register(actor *sessionActor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[actor.session.ID] = actor
	for ch := range actor.session.Participants {
		e.channelTo[ch] = actor.session.ID
	}
}

// remove drops a finished session from both maps; called by the actor
// itself once it has emitted its terminal frames.
func (e *Engine) remove(sess *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, sess.ID)
	for ch := range sess.Participants {
		if e.channelTo[ch] == sess.ID {
			delete(e.channelTo, ch)
		}
	}
}

func (e *Engine) lookup(channelID string) (*sessionActor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sessionID, ok := e.channelTo[channelID]
	if !ok {
		return nil, false
	}
	actor, ok := e.sessions[sessionID]
	return actor, ok
}

// Ready implements playerReady for channelID's session. A channel not
// bound to any session is silently ignored (ClientProtocol failure
// class, spec.md §7).
func (e *Engine) Ready(channelID string) {
	actor, ok := e.lookup(channelID)
	if !ok {
		log.Debug().Str("channel_id", channelID).Msg("ready on unknown channel, ignoring")
		return
	}
	actor.post(cmdReady{channelID: channelID})
}

// SubmitPath implements submitPath for channelID's session.
func (e *Engine) SubmitPath(ctx context.Context, channelID string, path []string) {
	actor, ok := e.lookup(channelID)
	if !ok {
		log.Debug().Str("channel_id", channelID).Msg("submitPath on unknown channel, ignoring")
		return
	}
	actor.post(cmdSubmitPath{channelID: channelID, path: path})
}

// GiveUp implements giveUp for channelID's session.
func (e *Engine) GiveUp(channelID string) {
	actor, ok := e.lookup(channelID)
	if !ok {
		return
	}
	actor.post(cmdGiveUp{channelID: channelID})
}

// Disconnect implements the channel-close path: end the session (if
// any) the channel belonged to.
func (e *Engine) Disconnect(channelID string) {
	actor, ok := e.lookup(channelID)
	if !ok {
		return
	}
	actor.post(cmdDisconnect{channelID: channelID})
}

// Shutdown terminates every active session with reason
// internal_error, draining each actor's mailbox first.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	actors := make([]*sessionActor, 0, len(e.sessions))
	for _, a := range e.sessions {
		actors = append(actors, a)
	}
	e.mu.Unlock()

	for _, a := range actors {
		a.post(cmdShutdown{})
	}
}
