package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fourthdown/gridlink/go/internal/sqlutil"
)

// Repository is the outbox table's data access, backed by
// database/sql + lib/pq like the rest of this module's transactional
// reads and writes.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an already-opened *sql.DB.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const insertOutcomeQuery = `
INSERT INTO session_outcome_outbox (id, session_id, payload)
VALUES ($1, $2, $3)
ON CONFLICT (session_id) DO NOTHING
`

// InsertOutcome writes outcome into the outbox, in the same call the
// Session Engine makes at its terminal transition. Idempotent per
// SessionID: a re-invocation for a session already recorded is a no-op,
// so a session that (incorrectly) reached finish twice never produces
// two outbox rows.
func (r *Repository) InsertOutcome(ctx context.Context, outcome SessionOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal session outcome: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertOutcomeQuery, uuid.New(), outcome.SessionID, payload)
	if err != nil {
		return fmt.Errorf("insert session outcome outbox row: %w", err)
	}
	return nil
}

const claimBatchQuery = `
SELECT id, session_id, payload, created_at, published_at
FROM session_outcome_outbox
WHERE published_at IS NULL
ORDER BY created_at
LIMIT $1
FOR UPDATE SKIP LOCKED
`

const markPublishedQuery = `
UPDATE session_outcome_outbox SET published_at = now() WHERE id = ANY($1::uuid[])
`

// ClaimBatch begins a transaction, locks up to limit unpublished rows
// with FOR UPDATE SKIP LOCKED (so concurrent worker instances never
// double-claim the same row), and returns both the events and the open
// transaction. The caller MUST call Commit or Rollback on tx.
func (r *Repository) ClaimBatch(ctx context.Context, limit int) ([]Event, *sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin claim transaction: %w", err)
	}

	rows, err := tx.QueryContext(ctx, claimBatchQuery, limit)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var payload []byte
		var publishedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.SessionID, &payload, &e.CreatedAt, &publishedAt); err != nil {
			_ = tx.Rollback()
			return nil, nil, fmt.Errorf("scan outbox row: %w", err)
		}
		e.Payload = payload
		e.PublishedAt = sqlutil.FromSqlTime(publishedAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		_ = tx.Rollback()
		return nil, nil, fmt.Errorf("iterate outbox rows: %w", err)
	}

	return events, tx, nil
}

// MarkPublished marks ids as published within tx, the same transaction
// ClaimBatch opened. The caller commits tx afterward.
func (r *Repository) MarkPublished(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	if _, err := tx.ExecContext(ctx, markPublishedQuery, pq.Array(strs)); err != nil {
		return fmt.Errorf("mark outbox rows published: %w", err)
	}
	return nil
}
