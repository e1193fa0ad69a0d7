// Package stats is the idempotent write path at the end of the outbox
// relay (C7): given a session outcome, it updates each participant's
// multiplayer win/loss record, or single-player high score, exactly
// once per session, no matter how many times
// JetStream redelivers the message.
package stats

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fourthdown/gridlink/go/internal/sqlutil"
)

// Repository is the user_stats / stats_write_log data access.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const insertWriteLogQuery = `
INSERT INTO stats_write_log (session_id, user_id)
VALUES ($1, $2)
ON CONFLICT (session_id, user_id) DO NOTHING
`

const upsertSinglePlayerQuery = `
INSERT INTO user_stats (user_id, single_player_high_score, multiplayer_wins, multiplayer_losses)
VALUES ($1, $2, 0, 0)
ON CONFLICT (user_id) DO UPDATE SET
	single_player_high_score = GREATEST(user_stats.single_player_high_score, EXCLUDED.single_player_high_score)
`

const upsertMultiplayerQuery = `
INSERT INTO user_stats (user_id, single_player_high_score, multiplayer_wins, multiplayer_losses)
VALUES ($1, 0, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET
	multiplayer_wins   = user_stats.multiplayer_wins + EXCLUDED.multiplayer_wins,
	multiplayer_losses = user_stats.multiplayer_losses + EXCLUDED.multiplayer_losses
`

// RecordResult applies one participant's outcome for sessionID. The
// stats_write_log insert and the user_stats upsert run in the same
// transaction, and the write log's (session_id, user_id) uniqueness is
// what makes a redelivered message a no-op: the second attempt's log
// insert is discarded, so it never reaches the upsert.
//
// Single-player and multiplayer outcomes update disjoint columns:
// single-player only ever moves single_player_high_score, multiplayer
// only ever moves multiplayer_wins/multiplayer_losses.
func (r *Repository) RecordResult(ctx context.Context, sessionID, userID, mode string, won bool, highScore int) error {
	return sqlutil.RunTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, insertWriteLogQuery, sessionID, userID)
		if err != nil {
			return fmt.Errorf("insert stats write log: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check stats write log insert: %w", err)
		}
		if rows == 0 {
			// Already recorded for this session+user; nothing further to do.
			return nil
		}

		if mode == "single" {
			if _, err := tx.ExecContext(ctx, upsertSinglePlayerQuery, userID, highScore); err != nil {
				return fmt.Errorf("upsert single-player high score: %w", err)
			}
			return nil
		}

		wins, losses := 0, 0
		if won {
			wins = 1
		} else {
			losses = 1
		}
		if _, err := tx.ExecContext(ctx, upsertMultiplayerQuery, userID, wins, losses); err != nil {
			return fmt.Errorf("upsert multiplayer record: %w", err)
		}
		return nil
	})
}
