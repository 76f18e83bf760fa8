package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/bcx/internal/repositories"
	"github.com/desertthunder/bcx/internal/shared"
	"github.com/urfave/cli/v3"
)

func (r *Runner) messageCache() (*repositories.MessageCacheRepository, func() error, error) {
	db, err := r.openDatabase()
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewMessageCacheRepository(db), db.Close, nil
}

// CacheStats reports how many processed messages are cached and their age range.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	cache, closeDB, err := r.messageCache()
	if err != nil {
		return err
	}
	defer closeDB()

	stats, err := cache.Stats()
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}

	r.writePlainHeader("Message Cache")
	r.writePlain("Messages: %d\n", stats.Total)
	r.writePlain("Servers:  %d\n", stats.Servers)
	r.writePlain("Accounts: %d\n", stats.Accounts)
	r.writePlain("Folders:  %d\n", stats.Folders)
	if stats.Oldest != nil && stats.Newest != nil {
		r.writePlain("Oldest:   %s\n", stats.Oldest.Local().Format("2006-01-02 15:04"))
		r.writePlain("Newest:   %s\n", stats.Newest.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// CacheClear deletes every cached message, so the next export resolves all embeds again.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	cache, closeDB, err := r.messageCache()
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := cache.Clear()
	if err != nil {
		return err
	}
	r.logger.Info("message cache cleared", "deleted", n)
	return r.writePlain("✓ Deleted %d cached messages\n", n)
}

// CachePrune deletes cached messages older than --days.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	days := cmd.Int("days")
	if days == 0 {
		days = r.config.Database.CacheMaxAgeDays
	}
	if days <= 0 {
		return fmt.Errorf("%w: --days must be positive", shared.ErrInvalidArgument)
	}

	cache, closeDB, err := r.messageCache()
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := cache.Prune(days)
	if err != nil {
		return err
	}
	r.logger.Info("message cache pruned", "days", days, "deleted", n)
	return r.writePlain("✓ Deleted %d cached messages older than %d days\n", n, days)
}
