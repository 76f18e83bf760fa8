package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/shared"
)

// SyncRunRepository keeps the history of sync executions.
type SyncRunRepository struct {
	db *sql.DB
}

// NewSyncRunRepository creates a new SyncRunRepository with the given database connection
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Create inserts a sync run with a generated ID
func (r *SyncRunRepository) Create(run *models.SyncRun) error {
	if run.RunID == "" {
		run.RunID = shared.GenerateID()
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO sync_runs (
			id, input_path, output_path, fetched, kept, added, removed, total, started_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		run.RunID,
		run.InputPath,
		run.OutputPath,
		run.Fetched,
		run.Kept,
		run.Added,
		run.Removed,
		run.Total,
		utc(run.StartedAt),
		utc(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

// List returns the most recent runs first, at most limit rows (all when limit <= 0).
func (r *SyncRunRepository) List(limit int) ([]*models.SyncRun, error) {
	query := `
		SELECT id, input_path, output_path, fetched, kept, added, removed, total, started_at, finished_at
		FROM sync_runs
		ORDER BY started_at DESC, id
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run := &models.SyncRun{}
		if err := rows.Scan(
			&run.RunID,
			&run.InputPath,
			&run.OutputPath,
			&run.Fetched,
			&run.Kept,
			&run.Added,
			&run.Removed,
			&run.Total,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync runs: %w", err)
	}
	return runs, nil
}
