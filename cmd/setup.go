package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/bcx/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the default configuration to --config.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Configuration written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set mail.username and mail.folders in %s\n", path)
	r.writePlain("2. Run 'bcx setup password' or 'bcx auth oauth' to store credentials\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if cmd.Bool("rollback") {
		if err := shared.RollbackMigration(db); err != nil {
			return err
		}
		r.logger.Info("rolled back latest migration", "path", r.config.Database.Path)
		return r.writePlain("✓ Rolled back the latest migration\n")
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
}

// SetupPassword stores the IMAP password in the secret store, read from --password or one line of input.
func (r *Runner) SetupPassword(ctx context.Context, cmd *cli.Command) error {
	mail := r.config.Mail
	if mail.Username == "" {
		return fmt.Errorf("%w: mail.username is not set", shared.ErrMissingArgument)
	}

	store, err := r.secretStore()
	if err != nil {
		return err
	}
	key := shared.PasswordKey(mail.Server, mail.Username)

	if cmd.Bool("remove") {
		if err := store.Remove(key); err != nil {
			return err
		}
		r.logger.Info("password removed", "account", mail.Username)
		return r.writePlain("✓ Password removed for %s\n", mail.Username)
	}

	password := cmd.String("password")
	if password == "" {
		r.writePlain("IMAP password for %s: ", mail.Username)
		line, err := bufio.NewReader(r.input).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("%w: no password entered", shared.ErrMissingArgument)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return fmt.Errorf("%w: empty password", shared.ErrInvalidArgument)
	}

	if err := store.Set(key, password); err != nil {
		return err
	}
	r.logger.Info("password stored", "account", mail.Username, "server", mail.Server)
	return r.writePlain("✓ Password stored for %s on %s\n", mail.Username, mail.Server)
}
