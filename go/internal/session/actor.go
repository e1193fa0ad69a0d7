package session

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/fourthdown/gridlink/go/internal/config"
	"github.com/fourthdown/gridlink/go/internal/outbox"
)

// sessionActor is the single logical writer for one Session: every
// mutation and every emission for that session happens on actor.run's
// goroutine, fed by mailbox. This generalizes the teacher's
// one-goroutine-per-socket discipline to one-goroutine-per-session.
type sessionActor struct {
	session *Session

	graph   GraphReader
	paths   PathSearcher
	outbox  OutboxWriter
	emitter Emitter
	clock   clockwork.Clock
	timing  config.Timing

	mailbox chan interface{}
	remove  func(*Session)

	timeoutTimer clockwork.Timer
	timeoutStop  chan struct{}
}

func newSessionActor(sess *Session, graph GraphReader, paths PathSearcher, outboxWriter OutboxWriter, emitter Emitter, clock clockwork.Clock, timing config.Timing, remove func(*Session)) *sessionActor {
	return &sessionActor{
		session: sess,
		graph:   graph,
		paths:   paths,
		outbox:  outboxWriter,
		emitter: emitter,
		clock:   clock,
		timing:  timing,
		mailbox: make(chan interface{}, 32),
		remove:  remove,
	}
}

func (a *sessionActor) start() {
	go a.run()
}

func (a *sessionActor) post(cmd interface{}) {
	select {
	case a.mailbox <- cmd:
	default:
		log.Warn().Str("session_id", a.session.ID).Msg("session mailbox full, dropping command")
	}
}

// Internal commands. cmdEmitGameStart is posted by the Engine right
// after actor creation so the gameStart frame is itself serialized
// through the mailbox like everything else.
type cmdEmitGameStart struct {
	channelID      string
	startName      string
	endName        string
	opponentUserID *string
}

type cmdReady struct{ channelID string }
type cmdSubmitPath struct {
	channelID string
	path      []string
}
type cmdGiveUp struct{ channelID string }
type cmdDisconnect struct{ channelID string }
type cmdTimeout struct{}
type cmdShutdown struct{}

func (a *sessionActor) run() {
	for cmd := range a.mailbox {
		switch c := cmd.(type) {
		case cmdEmitGameStart:
			a.handleEmitGameStart(c)
		case cmdReady:
			a.handleReady(c.channelID)
		case cmdSubmitPath:
			a.handleSubmitPath(c.channelID, c.path)
		case cmdGiveUp:
			a.handleGiveUp(c.channelID)
		case cmdDisconnect:
			a.handleDisconnect(c.channelID)
		case cmdTimeout:
			a.handleTimeout()
		case cmdShutdown:
			a.handleShutdown()
		}
		if a.session.Status == StatusFinished {
			a.drainAndStop()
			return
		}
	}
}

// drainAndStop cancels any pending timer and removes the session from
// the registry; run() returns right after it. Called exactly once, from
// the actor's own goroutine, right after a terminal transition.
func (a *sessionActor) drainAndStop() {
	a.cancelTimeout()
	a.remove(a.session)
}

func (a *sessionActor) handleEmitGameStart(c cmdEmitGameStart) {
	a.emitter.Emit(c.channelID, OutboundFrame{
		Type: FrameGameStart,
		Payload: GameStartPayload{
			SessionID:      a.session.ID,
			StartPlayer:    c.startName,
			EndPlayer:      c.endName,
			Mode:           string(a.session.Mode),
			Difficulty:     string(a.session.Difficulty),
			OpponentUserID: c.opponentUserID,
		},
	})
}

// handleReady marks channelID ready. Two consecutive ready events from
// the same channel are equivalent to one (spec.md §8). Once both
// participants are ready, the session transitions to active and the
// game deadline timer is scheduled.
func (a *sessionActor) handleReady(channelID string) {
	if a.session.Status != StatusWaiting {
		return
	}
	p, ok := a.session.participantByChannel(channelID)
	if !ok || p.Ready {
		return
	}
	p.Ready = true

	if other, ok := a.session.otherChannel(channelID); ok {
		a.emitter.Emit(other, OutboundFrame{Type: FrameOpponentReady, Payload: OpponentReadyPayload{}})
	}

	for _, participant := range a.session.Participants {
		if !participant.Ready {
			return
		}
	}

	a.session.Status = StatusActive
	for ch := range a.session.Participants {
		a.emitter.Emit(ch, OutboundFrame{Type: FrameAllPlayersReady, Payload: AllPlayersReadyPayload{}})
	}
	a.scheduleTimeout()
}

// scheduleTimeout arms the game-deadline one-shot timer, following the
// teacher's idempotent schedule/stop-and-drain discipline: any
// previously armed timer for this session is stopped first.
func (a *sessionActor) scheduleTimeout() {
	a.cancelTimeout()

	duration := a.timing.Deadline()
	timer := a.clock.NewTimer(duration)
	stop := make(chan struct{})
	a.timeoutTimer = timer
	a.timeoutStop = stop

	go func(t clockwork.Timer, stop chan struct{}, mailbox chan interface{}) {
		select {
		case <-t.Chan():
			select {
			case mailbox <- cmdTimeout{}:
			default:
			}
		case <-stop:
		}
	}(timer, stop, a.mailbox)
}

func (a *sessionActor) cancelTimeout() {
	if a.timeoutTimer == nil {
		return
	}
	if !a.timeoutTimer.Stop() {
		select {
		case <-a.timeoutTimer.Chan():
		default:
		}
	}
	close(a.timeoutStop)
	a.timeoutTimer = nil
	a.timeoutStop = nil
}

// handleSubmitPath validates path against the four ordered rules in
// spec.md §4.5.2 and applies the resulting transition.
func (a *sessionActor) handleSubmitPath(channelID string, path []string) {
	if a.session.Status != StatusActive {
		return
	}
	submitter, ok := a.session.participantByChannel(channelID)
	if !ok {
		return
	}

	if a.isValidPath(path) {
		a.handleValidSubmit(submitter, path)
		return
	}
	a.handleInvalidSubmit(submitter, len(path))
}

func (a *sessionActor) isValidPath(path []string) bool {
	if len(path) < 2 {
		return false
	}
	if path[0] != a.session.StartPlayerID {
		return false
	}
	if path[len(path)-1] != a.session.EndPlayerID {
		return false
	}
	for i := 0; i+1 < len(path); i++ {
		if !a.hasAllowedEdge(path[i], path[i+1]) {
			return false
		}
	}
	return true
}

func (a *sessionActor) hasAllowedEdge(from, to string) bool {
	for _, nb := range a.graph.GetNeighbors(from, a.session.AllowedTypes) {
		if nb.PlayerID == to {
			return true
		}
	}
	return false
}

func (a *sessionActor) handleValidSubmit(submitter *Participant, path []string) {
	winningNames := a.mapNames(path)

	if a.session.Mode == ModeSingle {
		elapsed := a.clock.Now().Sub(a.session.StartEpoch).Seconds()
		edges := len(path) - 1
		score := 10000 - int(math.Floor(elapsed*10)) - edges*100
		if score < 0 {
			score = 0
		}
		a.finish(ReasonPathFound, &submitter.UserID, map[string]GameEndPayload{
			submitter.ChannelID: {
				WinnerUserID: &submitter.UserID,
				Reason:       string(ReasonPathFound),
				WinningPath:  winningNames,
				Score:        &score,
				Time:         &elapsed,
			},
		})
		return
	}

	winnerID := submitter.UserID
	opponentChannel, hasOpponent := a.session.otherChannel(submitter.ChannelID)

	frames := map[string]GameEndPayload{
		submitter.ChannelID: {
			WinnerUserID: &winnerID,
			Reason:       string(ReasonPathFound),
			WinningPath:  winningNames,
		},
	}
	if hasOpponent {
		alternatives := a.alternativeSolutions(path)
		frames[opponentChannel] = GameEndPayload{
			WinnerUserID:  &winnerID,
			Reason:        string(ReasonPathFound),
			SolutionPaths: alternatives,
		}
	}

	a.finish(ReasonPathFound, &winnerID, frames)
}

// alternativeSolutions returns up to 3 distinct shortest solution
// paths, name-mapped and deduplicated, excluding the winner's own
// submitted path — the loser sees alternatives, not the winner's path.
func (a *sessionActor) alternativeSolutions(winningPath []string) [][]string {
	candidates := a.paths.ShortestPaths(a.session.StartPlayerID, a.session.EndPlayerID, a.session.AllowedTypes, a.timing.SolutionFanout+1)

	winningKey := strings.Join(winningPath, ">")
	seen := map[string]struct{}{}
	var out [][]string
	for _, c := range candidates {
		key := strings.Join(c, ">")
		if key == winningKey {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a.mapNames(c))
		if len(out) >= a.timing.SolutionFanout {
			break
		}
	}
	return out
}

func (a *sessionActor) handleInvalidSubmit(submitter *Participant, pathLength int) {
	a.session.StrikesRemaining[submitter.ChannelID]--
	remaining := a.session.StrikesRemaining[submitter.ChannelID]

	a.emitter.Emit(submitter.ChannelID, OutboundFrame{
		Type: FrameInvalidPath,
		Payload: InvalidPathPayload{
			PathLength:       pathLength,
			StrikesRemaining: &remaining,
		},
	})

	opponentChannel, hasOpponent := a.session.otherChannel(submitter.ChannelID)
	if hasOpponent {
		a.emitter.Emit(opponentChannel, OutboundFrame{
			Type: FrameOpponentAttemptedPath,
			Payload: OpponentAttemptedPathPayload{
				Success:    false,
				PathLength: pathLength,
			},
		})
	}

	if remaining > 0 {
		return
	}

	if a.session.Mode == ModeSingle {
		a.finish(ReasonOutOfStrikes, nil, map[string]GameEndPayload{
			submitter.ChannelID: {Reason: string(ReasonOutOfStrikes)},
		})
		return
	}

	if !hasOpponent {
		a.finish(ReasonOutOfStrikes, nil, map[string]GameEndPayload{
			submitter.ChannelID: {Reason: string(ReasonOutOfStrikes)},
		})
		return
	}

	winnerParticipant := a.session.Participants[opponentChannel]
	winnerID := winnerParticipant.UserID
	a.finish(ReasonOutOfStrikes, &winnerID, map[string]GameEndPayload{
		submitter.ChannelID: {WinnerUserID: &winnerID, Reason: string(ReasonOutOfStrikes)},
		opponentChannel:     {WinnerUserID: &winnerID, Reason: string(ReasonOutOfStrikes)},
	})
}

func (a *sessionActor) handleGiveUp(channelID string) {
	if a.session.Status != StatusActive {
		return
	}
	if _, ok := a.session.participantByChannel(channelID); !ok {
		return
	}

	if a.session.Mode == ModeSingle {
		a.finish(ReasonGaveUp, nil, map[string]GameEndPayload{
			channelID: {Reason: string(ReasonGaveUp)},
		})
		return
	}

	opponentChannel, hasOpponent := a.session.otherChannel(channelID)
	if !hasOpponent {
		a.finish(ReasonGaveUp, nil, map[string]GameEndPayload{
			channelID: {Reason: string(ReasonGaveUp)},
		})
		return
	}

	winner := a.session.Participants[opponentChannel]
	winnerID := winner.UserID
	a.finish(ReasonGaveUp, &winnerID, map[string]GameEndPayload{
		channelID:       {WinnerUserID: &winnerID, Reason: string(ReasonGaveUp)},
		opponentChannel: {WinnerUserID: &winnerID, Reason: string(ReasonOpponentGaveUp)},
	})
}

// handleDisconnect ends the session when any participant's channel
// closes. A lone participant (single-player, or a multiplayer session
// whose peer already left) simply destroys the session with no
// emission, since there is no one left to notify.
func (a *sessionActor) handleDisconnect(channelID string) {
	if a.session.Status == StatusFinished {
		return
	}
	_, ok := a.session.participantByChannel(channelID)
	if !ok {
		return
	}

	opponentChannel, hasOpponent := a.session.otherChannel(channelID)
	if !hasOpponent {
		a.session.Status = StatusFinished
		a.session.Reason = ReasonOpponentDisconnected
		return
	}

	winner := a.session.Participants[opponentChannel]
	winnerID := winner.UserID
	a.finish(ReasonOpponentDisconnected, &winnerID, map[string]GameEndPayload{
		opponentChannel: {WinnerUserID: &winnerID, Reason: string(ReasonOpponentDisconnected)},
	})
}

// handleTimeout fires once, at most, for a multiplayer session that
// reached its deadline with no valid submission. Per spec.md §9's
// resolved open question, solution paths are emitted to both
// participants.
func (a *sessionActor) handleTimeout() {
	if a.session.Status != StatusActive {
		return
	}

	alternatives := a.alternativeSolutions(nil)
	frames := map[string]GameEndPayload{}
	for ch := range a.session.Participants {
		frames[ch] = GameEndPayload{Reason: string(ReasonTimeout), SolutionPaths: alternatives}
	}
	a.finish(ReasonTimeout, nil, frames)
}

func (a *sessionActor) handleShutdown() {
	if a.session.Status == StatusFinished {
		return
	}
	frames := map[string]GameEndPayload{}
	for ch := range a.session.Participants {
		frames[ch] = GameEndPayload{Reason: string(ReasonInternalError)}
	}
	a.finish(ReasonInternalError, nil, frames)
}

// finish applies the terminal transition, emits one gameEnd frame per
// participant named in frames, records the outcome in the outbox, and
// lets run() drain the mailbox and stop the actor.
func (a *sessionActor) finish(reason Reason, winnerUserID *string, frames map[string]GameEndPayload) {
	a.session.Status = StatusFinished
	a.session.Reason = reason
	a.session.WinnerUserID = winnerUserID

	for ch, payload := range frames {
		a.emitter.Emit(ch, OutboundFrame{Type: FrameGameEnd, Payload: payload})
	}

	a.recordOutcome(winnerUserID, frames)
}

func (a *sessionActor) recordOutcome(winnerUserID *string, frames map[string]GameEndPayload) {
	var score *int
	for _, payload := range frames {
		if payload.Score != nil {
			score = payload.Score
		}
	}

	participants := make([]outbox.ParticipantOutcome, 0, len(a.session.Participants))
	for _, p := range a.session.Participants {
		won := winnerUserID != nil && *winnerUserID == p.UserID
		participants = append(participants, outbox.ParticipantOutcome{UserID: p.UserID, Won: won})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.outbox.InsertOutcome(ctx, outbox.SessionOutcome{
		SessionID:    a.session.ID,
		Mode:         string(a.session.Mode),
		Difficulty:   string(a.session.Difficulty),
		Participants: participants,
		Score:        score,
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", a.session.ID).Msg("failed to record session outcome in outbox")
	}
}

func (a *sessionActor) mapNames(path []string) []string {
	names := make([]string, len(path))
	for i, id := range path {
		name := id
		if p, ok, err := a.graph.GetPlayer(id); err == nil && ok {
			name = p.Name
		}
		names[i] = name
	}
	return names
}
