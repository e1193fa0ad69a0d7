package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Publisher is the relay target for a claimed batch of events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Config tunes the polling Worker.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	RetryDelay   time.Duration
}

// DefaultConfig matches this server's outbox latency budget: a result
// should reach the stats store within a few seconds of a session's
// terminal transition, not on every request.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// Worker polls the outbox table and relays unpublished rows to a
// Publisher, claiming each batch with FOR UPDATE SKIP LOCKED so more
// than one worker instance can run against the same table safely.
type Worker struct {
	repo      *Repository
	publisher Publisher
	config    Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(repo *Repository, publisher Publisher, cfg Config) *Worker {
	return &Worker{
		repo:      repo,
		publisher: publisher,
		config:    cfg,
		stopChan:  make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int("batch_size", w.config.BatchSize).
		Msg("outbox worker started")

	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("outbox worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.processBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	events, tx, err := w.repo.ClaimBatch(ctx, w.config.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to claim outbox batch")
		return
	}

	if len(events) == 0 {
		_ = tx.Rollback()
		return
	}

	log.Debug().Int("count", len(events)).Msg("processing outbox batch")

	var successfulIDs []uuid.UUID
	for _, event := range events {
		if err := w.publishWithRetry(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to publish outbox event")
			continue
		}
		successfulIDs = append(successfulIDs, event.ID)
	}

	if err := w.repo.MarkPublished(ctx, tx, successfulIDs); err != nil {
		log.Error().Err(err).Msg("failed to mark outbox events published")
		_ = tx.Rollback()
		return
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Msg("failed to commit outbox batch")
		return
	}

	log.Info().Int("total", len(events)).Int("successful", len(successfulIDs)).Msg("processed outbox batch")
}

func (w *Worker) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := w.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().Err(err).Str("event_id", event.ID.String()).Int("attempt", attempt+1).Msg("publish failed, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
