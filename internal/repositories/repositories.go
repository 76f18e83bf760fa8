package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoRows is returned by single-row lookups that find nothing.
var ErrNoRows = errors.New("no rows")

// inTx runs fn inside a transaction, committing on success.
func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// utc normalizes timestamps so stored values compare lexically.
func utc(t time.Time) time.Time { return t.UTC() }
