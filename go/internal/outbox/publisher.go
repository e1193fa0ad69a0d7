package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// SubjectSessionOutcome is where relayed session outcomes land; the
// stats consumer subscribes here with a durable JetStream consumer.
const SubjectSessionOutcome = "stats.session.outcome"

// envelope is the wire shape a publish puts on the subject: stable
// metadata plus the raw outcome payload, so a consumer can dedupe on
// EventID without unmarshaling Payload first.
type envelope struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NATSPublisher relays outbox events onto a JetStream subject.
type NATSPublisher struct {
	js      jetstream.JetStream
	subject string
}

func NewNATSPublisher(js jetstream.JetStream, subject string) *NATSPublisher {
	if subject == "" {
		subject = SubjectSessionOutcome
	}
	return &NATSPublisher{js: js, subject: subject}
}

// EnsureStream creates the JetStream stream backing
// SubjectSessionOutcome if it does not already exist, so a fresh
// broker can be pointed at this server without manual setup.
func EnsureStream(ctx context.Context, js jetstream.JetStream, streamName, subject string) error {
	_, err := js.Stream(ctx, streamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        streamName,
		Description: "session outcome relay for the stats writer",
		Subjects:    []string{subject},
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  2 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", streamName, err)
	}
	return nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	env := envelope{
		EventID:   event.ID.String(),
		SessionID: event.SessionID,
		Timestamp: event.CreatedAt,
		Payload:   event.Payload,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal outbox envelope: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.ID.String())

	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	return nil
}
