package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/shared"
	"github.com/desertthunder/bcx/internal/store"
	"github.com/desertthunder/bcx/internal/ui"
	"github.com/urfave/cli/v3"
)

type program interface {
	Run() (tea.Model, error)
}

// newProgram is replaced in tests.
var newProgram = func(m tea.Model) program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

// Browse launches the terminal browser over the collection.
func (r *Runner) Browse(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Collection
	input := r.collectionInput(cmd)
	snapshotPath := cmd.String("snapshot")
	if snapshotPath == "" {
		snapshotPath = cfg.SnapshotPath
	}

	c, err := store.LoadCollection(input)
	if err != nil {
		return err
	}

	var snapshot models.ListenedSnapshot
	if _, err := os.Stat(snapshotPath); err == nil {
		if snapshot, err = store.LoadSnapshot(snapshotPath, cfg.ListenedPrefix); err != nil {
			return err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	if logPath := cmd.String("log"); logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		fileLogger, closer, err := shared.NewFileLogger(logPath)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		defer closer.Close()
		r.SetLogger(fileLogger)
	}
	r.logger.Info("browsing collection", "path", input, "snapshot", snapshotPath, "albums", c.Total())

	model := ui.NewModel(ui.Options{
		Collection:   c,
		Snapshot:     snapshot,
		Prefix:       cfg.ListenedPrefix,
		SnapshotPath: snapshotPath,
		Open:         r.browser,
		Save:         store.SaveSnapshot,
	})

	final, err := newProgram(model).Run()
	if err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	if m, ok := final.(*ui.Model); ok && m.Dirty() {
		r.logger.Warn("browser closed with unsaved marks")
	}
	return nil
}
