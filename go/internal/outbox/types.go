// Package outbox is the idempotent hand-off from the Session Engine to
// the Stats Writer (C7): a session's finish transitions insert exactly
// one row here, a polling worker relays unpublished rows to NATS
// JetStream, and a durable consumer performs the actual stats upsert —
// so a transient publish failure never loses a result and a redelivery
// never double-counts one.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ParticipantOutcome is one participant's result within a session.
type ParticipantOutcome struct {
	UserID string `json:"user_id"`
	Won    bool   `json:"won"`
}

// SessionOutcome is the payload the Session Engine hands to the outbox
// at a session's terminal transition.
type SessionOutcome struct {
	SessionID    string               `json:"session_id"`
	Mode         string               `json:"mode"`
	Difficulty   string               `json:"difficulty"`
	Participants []ParticipantOutcome `json:"participants"`
	Score        *int                 `json:"score,omitempty"`
}

// Event is one row of the session_outcome_outbox table.
type Event struct {
	ID          uuid.UUID
	SessionID   string
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
}
