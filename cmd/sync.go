package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/desertthunder/bcx/internal/formatter"
	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/repositories"
	"github.com/desertthunder/bcx/internal/shared"
	"github.com/desertthunder/bcx/internal/store"
	"github.com/desertthunder/bcx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sync removes releases marked listened in the snapshot and merges fresh releases into the
// collection. Fetched messages are marked read or deleted only after the synced document is
// written, never on a dry run.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	started := time.Now()
	cfg := r.config.Collection

	input := cmd.String("input")
	if input == "" {
		input = cfg.Path
	}
	snapshotPath := cmd.String("listened")
	if snapshotPath == "" {
		snapshotPath = cfg.SnapshotPath
	}
	output := cmd.String("output")
	if output == "" {
		output = cfg.SyncedPath
	}
	dryRun := cmd.Bool("dry-run")

	current, err := store.LoadCollection(input)
	if err != nil {
		return err
	}
	listened, err := store.LoadSnapshot(snapshotPath, cfg.ListenedPrefix)
	if err != nil {
		return err
	}
	r.logger.Info("loaded inputs", "collection", input, "albums", current.Total(), "snapshot", snapshotPath, "keys", len(listened))

	var (
		fresh []models.Album
		run   *mailRun
	)
	if cmd.Bool("fetch") {
		fetched, err := r.collect(ctx, cmd)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			r.logger.Warn("fetch failed, continuing with removal only", "error", err)
		} else {
			defer fetched.Close()
			run = fetched
			fresh = fetched.Albums
			if fresh == nil {
				fresh = []models.Album{}
			}
		}
	}

	db, err := r.openDatabase()
	if err != nil {
		r.logger.Warn("sync history unavailable", "error", err)
		db = nil
	} else {
		defer db.Close()
	}

	var opts []tasks.ReconcilerOpt
	if db != nil && !cmd.Bool("no-history") {
		removed, err := repositories.NewTrackerRepository(db).RemovedIDs()
		if err != nil {
			return err
		}
		opts = append(opts, tasks.WithHistory(tasks.ListenedSetFrom(removed)))
	}

	res, err := tasks.NewReconciler(cfg.ListenedPrefix, opts...).Reconcile(current, listened, fresh)
	if err != nil {
		return err
	}

	if !dryRun {
		if err := store.SaveCollection(output, res.Collection); err != nil {
			return err
		}
		r.logger.Info("synced collection written", "path", output, "albums", res.Totals.Total)

		if db != nil {
			if err := r.recordSync(db, res, input, output, started); err != nil {
				r.logger.Warn("failed to record sync history", "error", err)
			}
		}

		if run != nil {
			if err := run.Settle(ctx); err != nil {
				return err
			}
		}
	}

	if err := r.writeSyncReport(cmd, res); err != nil {
		return err
	}
	if run != nil {
		r.reportCollectErrors(run.CollectResult)
	}
	if dryRun {
		r.writePlain("\nDry run: nothing written\n")
	}
	return nil
}

func (r *Runner) writeSyncReport(cmd *cli.Command, res *tasks.SyncResult) error {
	switch {
	case cmd.Bool("json"):
		data, err := formatter.SyncReportJSON(res)
		if err != nil {
			return err
		}
		return r.writePlain("%s\n", data)
	case cmd.Bool("markdown"):
		return r.writePlain("%s", formatter.SyncReportMarkdown(res))
	default:
		return r.writePlain("%s", formatter.SyncReportText(res))
	}
}

// recordSync stores tracker state and the run summary.
func (r *Runner) recordSync(db *sql.DB, res *tasks.SyncResult, input, output string, started time.Time) error {
	urls := map[string]string{}
	for genre, ids := range res.AddedIDs {
		wanted := map[string]bool{}
		for _, id := range ids {
			wanted[id] = true
		}
		for _, a := range res.Collection[genre] {
			if id, ok := a.Identifier(); ok && wanted[id] {
				urls[id] = a.URL
			}
		}
	}
	if err := repositories.NewTrackerRepository(db).Apply(res.AddedIDs, res.RemovedIDs, urls); err != nil {
		return err
	}

	run := &models.SyncRun{
		RunID:      shared.GenerateID(),
		InputPath:  input,
		OutputPath: output,
		Fetched:    res.FreshProvided,
		Kept:       res.Totals.Kept,
		Added:      res.Totals.Added,
		Removed:    res.Totals.Removed,
		Total:      res.Totals.Total,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	return repositories.NewSyncRunRepository(db).Create(run)
}

// SyncHistory lists recorded sync runs, newest first.
func (r *Runner) SyncHistory(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repositories.NewSyncRunRepository(db).List(cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}
	if len(runs) == 0 {
		return r.writePlain("No sync runs recorded\n")
	}

	r.writePlainHeader("Sync History")
	for _, run := range runs {
		fetched := ""
		if run.Fetched {
			fetched = " (fetched)"
		}
		r.writePlain("%s  -%d +%d = %d  %s -> %s%s\n",
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Removed, run.Added, run.Total, run.InputPath, run.OutputPath, fetched)
	}
	return nil
}
