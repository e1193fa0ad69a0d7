package sqlutil

import (
	"context"
	"database/sql"
)

// RunTx runs fn inside a *sql.Tx: if fn returns an error the tx rolls
// back, else it commits. Callers issue hand-written SQL directly
// against tx rather than through a generated Queries type.
func RunTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil) // BEGIN
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback() // ROLLBACK
		return err
	}
	return tx.Commit() // COMMIT
}
