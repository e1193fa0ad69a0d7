package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// envelope mirrors the shape outbox.NATSPublisher puts on the wire.
type envelope struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type participantOutcome struct {
	UserID string `json:"user_id"`
	Won    bool   `json:"won"`
}

type sessionOutcome struct {
	SessionID    string               `json:"session_id"`
	Mode         string               `json:"mode"`
	Difficulty   string               `json:"difficulty"`
	Participants []participantOutcome `json:"participants"`
	Score        *int                 `json:"score,omitempty"`
}

// ConsumerConfig tunes the durable JetStream consumer this server
// registers against the outbox relay's stream.
type ConsumerConfig struct {
	StreamName    string
	ConsumerName  string
	SubjectFilter string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		StreamName:    "GRIDLINK_STATS",
		ConsumerName:  "gridlink-stats-writer",
		SubjectFilter: "stats.session.outcome",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	}
}

// Consumer relays durable JetStream deliveries into Repository.RecordResult.
type Consumer struct {
	repo     *Repository
	js       jetstream.JetStream
	config   ConsumerConfig
	consumer jetstream.Consumer
}

func NewConsumer(repo *Repository, js jetstream.JetStream, cfg ConsumerConfig) *Consumer {
	return &Consumer{repo: repo, js: js, config: cfg}
}

// Ensure creates or attaches to the durable consumer. Call once before Start.
func (c *Consumer) Ensure(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", c.config.StreamName, err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          c.config.ConsumerName,
		Durable:       c.config.ConsumerName,
		Description:   "gridlink stats writer",
		FilterSubject: c.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.config.MaxDeliver,
		AckWait:       c.config.AckWait,
		MaxAckPending: c.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, c.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().Str("consumer", c.config.ConsumerName).Msg("created stats JetStream consumer")
	}

	c.consumer = consumer
	return nil
}

// Start pulls deliveries until ctx is cancelled. Each message is
// processed and acked individually; a processing failure NAKs so
// JetStream redelivers, which is safe because RecordResult is
// idempotent per (session_id, user_id).
func (c *Consumer) Start(ctx context.Context) error {
	msgCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case msgCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgCh:
			if err := c.processMessage(ctx, msg); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process stats message")
				_ = msg.Nak()
				continue
			}
			_ = msg.Ack()
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg jetstream.Msg) error {
	var env envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	var outcome sessionOutcome
	if err := json.Unmarshal(env.Payload, &outcome); err != nil {
		return fmt.Errorf("unmarshal session outcome: %w", err)
	}

	highScore := 0
	if outcome.Score != nil {
		highScore = *outcome.Score
	}

	for _, p := range outcome.Participants {
		if err := c.repo.RecordResult(ctx, outcome.SessionID, p.UserID, outcome.Mode, p.Won, highScore); err != nil {
			return fmt.Errorf("record result for user %s: %w", p.UserID, err)
		}
	}

	log.Debug().
		Str("session_id", outcome.SessionID).
		Int("participants", len(outcome.Participants)).
		Msg("recorded session stats")

	return nil
}
