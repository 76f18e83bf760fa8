package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/repositories"
	"github.com/desertthunder/bcx/internal/services"
	"github.com/desertthunder/bcx/internal/shared"
	"github.com/desertthunder/bcx/internal/store"
	"github.com/desertthunder/bcx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// MailFolders lists the selectable folders of the configured account.
func (r *Runner) MailFolders(ctx context.Context, cmd *cli.Command) error {
	mailbox, err := r.mailbox(ctx)
	if err != nil {
		return err
	}
	defer mailbox.Close()

	folders, err := mailbox.ListFolders(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(folders, true)
	}

	_, username := mailbox.Account()
	r.writePlainHeader(fmt.Sprintf("Folders for %s", username))
	for _, f := range folders {
		r.writePlain("  %s\n", f)
	}
	return r.writePlain("\n%d folders\n", len(folders))
}

// MailExport collects album records from the mailbox into the collection document. Messages
// are marked read or deleted only after the document is written.
func (r *Runner) MailExport(ctx context.Context, cmd *cli.Command) error {
	output := cmd.String("output")
	if output == "" {
		output = r.config.Collection.Path
	}

	run, err := r.collect(ctx, cmd)
	if err != nil {
		return err
	}
	defer run.Close()

	result := run.CollectResult
	c := result.Collection()
	if err := store.SaveCollection(output, c); err != nil {
		return err
	}
	r.logger.Info("collection written", "path", output, "albums", c.Total(), "genres", len(c))

	if err := run.Settle(ctx); err != nil {
		return err
	}

	r.writePlainHeader("Mail Export")
	r.writePlain("Messages:   %d\n", result.Messages)
	r.writePlain("Resolved:   %d\n", result.Resolved)
	r.writePlain("From cache: %d\n", result.Cached)
	r.writePlain("No link:    %d\n", result.NoLink)
	if run.settle.MarkSeen {
		r.writePlain("Marked:     %d\n", result.Marked)
	}
	if run.settle.Delete {
		r.writePlain("Deleted:    %d\n", result.Deleted)
	}
	for _, genre := range c.Genres() {
		r.writePlain("  %s: %d\n", genre, len(c[genre]))
	}
	r.reportCollectErrors(result)
	return r.writePlain("\n✓ %d releases written to %s\n", c.Total(), output)
}

// mailRun is a finished collection whose mailbox stays open until Close, so processed messages
// can be settled once the albums are stored.
type mailRun struct {
	*tasks.CollectResult

	collector *tasks.Collector
	settle    tasks.SettleOpts
	logger    *log.Logger
	closers   []func() error
}

// Settle marks or deletes the processed messages, as configured.
func (m *mailRun) Settle(ctx context.Context) error {
	progress, wait := drainProgress(m.logger)
	err := m.collector.Settle(ctx, progress, m.CollectResult, m.settle)
	close(progress)
	wait()
	return err
}

// Close releases the mailbox and the message cache in reverse order of opening.
func (m *mailRun) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

// drainProgress logs every update sent on the returned channel until it is closed. wait blocks
// until the last update is logged.
func drainProgress(logger *log.Logger) (chan tasks.ProgressUpdate, func()) {
	progress := make(chan tasks.ProgressUpdate, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			switch update.Phase {
			case tasks.FolderFailed:
				logger.Warn(update.Message)
			case tasks.ResolveEmbeds:
				logger.Debug(update.Message, "step", update.Step, "total", update.Total)
			default:
				logger.Info(update.Message)
			}
		}
	}()
	return progress, wg.Wait
}

// collect runs the collector over the folders named by --folder, or mail.folders when none are
// given. The caller closes the returned run.
func (r *Runner) collect(ctx context.Context, cmd *cli.Command) (*mailRun, error) {
	specs := cmd.StringSlice("folder")
	if len(specs) == 0 {
		specs = r.config.Mail.Folders
	}
	folders, err := models.ParseFolderSpecs(specs)
	if err != nil {
		return nil, err
	}
	if len(folders) == 0 {
		return nil, fmt.Errorf("%w: no folders given (use --folder or set mail.folders)", shared.ErrMissingArgument)
	}

	filter := services.Filter{
		Senders:     r.config.Mail.Senders,
		Subjects:    r.config.Mail.Subjects,
		IncludeRead: r.config.Mail.IncludeRead || cmd.Bool("include-read"),
		Limit:       cmd.Int("limit"),
	}
	if days := cmd.Int("since"); days > 0 {
		filter.Since = time.Now().AddDate(0, 0, -days)
	}
	if err := filter.Compile(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	opts := tasks.CollectOpts{
		Filter:  filter,
		NoCache: cmd.Bool("no-cache"),
		Workers: r.config.Bandcamp.Workers,
	}
	run := &mailRun{settle: tasks.SettleOpts{
		MarkSeen: r.config.Mail.MarkAsRead && !cmd.Bool("no-mark"),
		Delete:   r.config.Mail.DeleteProcessed || cmd.Bool("delete"),
	}}

	var cache tasks.MessageCache
	if !opts.NoCache {
		db, err := r.openDatabase()
		if err != nil {
			r.logger.Warn("message cache unavailable", "error", err)
		} else {
			run.closers = append(run.closers, db.Close)
			cache = repositories.NewMessageCacheRepository(db)
		}
	}

	mailbox, err := r.mailbox(ctx)
	if err != nil {
		run.Close()
		return nil, err
	}
	run.closers = append(run.closers, mailbox.Close)

	server, username := mailbox.Account()
	run.logger = shared.WithLogger(r.logger, "server", server, "account", username)
	run.collector = tasks.NewCollector(mailbox, r.embedResolver(), cache)

	progress, wait := drainProgress(run.logger)
	result, err := run.collector.Collect(ctx, progress, folders, opts)
	close(progress)
	wait()
	if err != nil {
		run.Close()
		return nil, err
	}
	run.CollectResult = result
	return run, nil
}

func (r *Runner) reportCollectErrors(result *tasks.CollectResult) {
	if len(result.FolderErrors) > 0 {
		r.writePlainln("⚠ %d folders could not be read:", len(result.FolderErrors))
		for _, fe := range result.FolderErrors {
			r.writePlain("  %s\n", fe.Error())
		}
	}
	if len(result.Failures) > 0 {
		r.writePlainln("⚠ %d messages failed:", len(result.Failures))
		for _, f := range result.Failures {
			r.writePlain("  %s\n", f.Error())
		}
	}
	for _, err := range result.MarkErrors {
		r.logger.Warn("failed to mark messages read", "error", err)
	}
	for _, err := range result.DeleteErrors {
		r.logger.Warn("failed to delete messages", "error", err)
	}
}
