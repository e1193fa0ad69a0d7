// Package session implements the Session Engine (C5): the per-session
// state machine shared by one or two concurrent participants, their
// readiness/strike/timeout bookkeeping, and the emission of outbound
// transitions to the Transport Adapter.
package session

import (
	"context"
	"time"

	"github.com/fourthdown/gridlink/go/internal/models"
	"github.com/fourthdown/gridlink/go/internal/outbox"
)

type Mode string

const (
	ModeSingle      Mode = "single"
	ModeMultiplayer Mode = "multiplayer"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

type Reason string

const (
	ReasonPathFound            Reason = "path_found"
	ReasonOutOfStrikes         Reason = "out_of_strikes"
	ReasonTimeout              Reason = "timeout"
	ReasonGaveUp               Reason = "gave_up"
	ReasonOpponentGaveUp       Reason = "opponent_gave_up"
	ReasonOpponentDisconnected Reason = "opponent_disconnected"
	ReasonInternalError        Reason = "internal_error"
)

// Participant is one channel's seat in a session.
type Participant struct {
	ChannelID string
	UserID    string
	Ready     bool
}

// Session is the mutable per-session record. It is only ever mutated
// from inside its owning actor goroutine.
type Session struct {
	ID         string
	Mode       Mode
	Difficulty models.Difficulty

	AllowedTypes models.ConnectionTypeSet
	MinEdges     int

	Participants map[string]*Participant // channelID -> participant
	order        []string                // channel join order, for opponent lookup

	StartPlayerID string
	EndPlayerID   string

	Status Status

	StartEpoch time.Time

	StrikesRemaining map[string]int // channelID -> remaining strikes

	WinnerUserID *string
	Reason       Reason
}

func (s *Session) otherChannel(channelID string) (string, bool) {
	for _, c := range s.order {
		if c != channelID {
			return c, true
		}
	}
	return "", false
}

func (s *Session) participantByChannel(channelID string) (*Participant, bool) {
	p, ok := s.Participants[channelID]
	return p, ok
}

// GraphReader is the subset of the Graph Store the engine needs to
// validate submitted edges and map player ids to display names.
type GraphReader interface {
	GetNeighbors(id string, allowed models.ConnectionTypeSet) []models.Neighbor
	GetPlayer(id string) (models.Player, bool, error)
}

// PathSearcher is the subset of the Pathfinder the engine needs to
// produce alternative solution paths at finish.
type PathSearcher interface {
	ShortestPaths(startID, endID string, allowed models.ConnectionTypeSet, k int) [][]string
}

// OutboxWriter is where the engine hands off a terminal session's
// outcome for the Stats Writer relay (C7).
type OutboxWriter interface {
	InsertOutcome(ctx context.Context, outcome outbox.SessionOutcome) error
}

// Emitter delivers one outbound frame to one channel. Implemented by
// the Transport Adapter.
type Emitter interface {
	Emit(channelID string, frame OutboundFrame)
}

// OutboundFrame matches the wire envelope {"type":..., "payload":...}.
type OutboundFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type GameStartPayload struct {
	SessionID      string  `json:"sessionId"`
	StartPlayer    string  `json:"startPlayer"`
	EndPlayer      string  `json:"endPlayer"`
	Mode           string  `json:"mode"`
	Difficulty     string  `json:"difficulty"`
	OpponentUserID *string `json:"opponentUserId,omitempty"`
}

type OpponentReadyPayload struct{}

type AllPlayersReadyPayload struct{}

type InvalidPathPayload struct {
	PathLength       int  `json:"pathLength"`
	StrikesRemaining *int `json:"strikesRemaining,omitempty"`
}

type OpponentAttemptedPathPayload struct {
	Success    bool `json:"success"`
	PathLength int  `json:"pathLength"`
}

type GameEndPayload struct {
	WinnerUserID  *string    `json:"winnerUserId,omitempty"`
	Reason        string     `json:"reason"`
	WinningPath   []string   `json:"winningPath,omitempty"`
	SolutionPaths [][]string `json:"solutionPaths,omitempty"`
	Score         *int       `json:"score,omitempty"`
	Time          *float64   `json:"time,omitempty"`
}

const (
	FrameGameStart             = "gameStart"
	FrameOpponentReady         = "opponentReady"
	FrameAllPlayersReady       = "allPlayersReady"
	FrameInvalidPath           = "invalidPath"
	FrameOpponentAttemptedPath = "opponentAttemptedPath"
	FrameGameEnd               = "gameEnd"
)
