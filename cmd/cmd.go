// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// app builds the root command. --config and --debug are read by every subcommand.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "bcx",
		Usage:   "Turn Bandcamp release emails into a listening queue",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.loadConfig,
		Commands: r.register(),
	}
}

// setupCommand handles setup operations for configuration, database and credentials.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml populated with defaults",
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Revert the most recent migration",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "password",
				Usage: "Store the IMAP password in the OS keyring",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "password",
						Usage: "Password to store (read from stdin when omitted)",
					},
					&cli.BoolFlag{
						Name:  "remove",
						Usage: "Remove the stored password instead",
					},
				},
				Action: r.SetupPassword,
			},
		},
	}
}

// authCommand handles mail provider authorization
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage mail authentication",
		Commands: []*cli.Command{
			{
				Name:   "oauth",
				Usage:  "Authorize IMAP access with OAuth2 and store the refresh token",
				Action: r.AuthOAuth,
			},
		},
	}
}

// mailCommand handles mailbox operations
func mailCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "mail",
		Usage: "Read Bandcamp notifications from the mailbox",
		Commands: []*cli.Command{
			{
				Name:  "folders",
				Usage: "List selectable mailbox folders",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.MailFolders,
			},
			{
				Name:  "export",
				Usage: "Build the collection document from notification emails",
				Flags: append(collectFlags(),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Collection file to write (default collection.path)",
					},
				),
				Action: r.MailExport,
			},
		},
	}
}

// collectFlags are shared by mail export and sync --fetch.
func collectFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "folder",
			Aliases: []string{"f"},
			Usage:   `Folder spec "path:genre" (repeatable, default mail.folders)`,
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Most recent messages per folder (0 for all)",
		},
		&cli.IntFlag{
			Name:  "since",
			Usage: "Only messages from the last N days (0 for all)",
		},
		&cli.BoolFlag{
			Name:  "include-read",
			Usage: "Include messages already marked read",
		},
		&cli.BoolFlag{
			Name:  "no-mark",
			Usage: "Do not mark processed messages as read",
		},
		&cli.BoolFlag{
			Name:  "no-cache",
			Usage: "Ignore the processed message cache",
		},
		&cli.BoolFlag{
			Name:  "delete",
			Usage: "Delete processed messages from the server once the collection is saved",
		},
	}
}

// siteCommand handles static site operations
func siteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "site",
		Usage: "Generate and preview the static listening site",
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Render genre pages, index and sync tools",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "Collection file (default collection.path)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default site.output_dir)",
					},
					&cli.BoolFlag{
						Name:  "clean",
						Usage: "Remove pages of genres no longer in the collection",
					},
					&cli.BoolFlag{
						Name:  "open",
						Usage: "Open the index in the browser",
					},
				},
				Action: r.SiteGenerate,
			},
			{
				Name:  "serve",
				Usage: "Serve the generated site locally",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Site directory (default site.output_dir)",
					},
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (default server.host:server.port)",
					},
				},
				Action: r.SiteServe,
			},
		},
	}
}

// syncCommand handles reconciliation of listened marks
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Remove listened releases and merge new ones into the collection",
		Flags: append(collectFlags(),
			&cli.StringFlag{
				Name:    "listened",
				Aliases: []string{"l"},
				Usage:   "Listened snapshot exported from the site (default collection.snapshot_path)",
			},
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Current collection file (default collection.path)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Synced collection file (default collection.synced_path)",
			},
			&cli.BoolFlag{
				Name:  "fetch",
				Usage: "Fetch new releases from the mailbox before reconciling",
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Allow albums removed in earlier runs to be added again",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Report without writing files or history",
			},
			&cli.BoolFlag{
				Name:  "markdown",
				Usage: "Print the report as Markdown",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the report as JSON",
			},
		),
		Action: r.Sync,
		Commands: []*cli.Command{
			{
				Name:  "history",
				Usage: "List previous sync runs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Number of runs to show", Value: 10},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.SyncHistory,
			},
		},
	}
}

// cacheCommand handles the processed message cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the processed message cache",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show cache statistics",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.CacheStats,
			},
			{
				Name:   "clear",
				Usage:  "Delete every cached message",
				Action: r.CacheClear,
			},
			{
				Name:  "prune",
				Usage: "Delete cached messages older than N days",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Usage: "Maximum age in days (default database.cache_max_age_days)"},
				},
				Action: r.CachePrune,
			},
		},
	}
}

// collectionCommand handles collection documents
func collectionCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "collection",
		Usage: "Inspect and export the collection document",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show per-genre counts",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Collection file (default collection.path)"},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.CollectionStats,
			},
			{
				Name:  "export",
				Usage: "Export the collection as CSV, Markdown, text or JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Collection file (default collection.path)"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file", Required: true},
					&cli.StringFlag{Name: "format", Usage: "csv, md, txt or json (default from the output extension)"},
				},
				Action: r.CollectionExport,
			},
		},
	}
}

// browseCommand launches the terminal browser
func browseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "browse",
		Usage: "Browse the collection in the terminal and mark releases listened",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Collection file (default collection.path)"},
			&cli.StringFlag{Name: "snapshot", Usage: "Snapshot file to load and save marks (default collection.snapshot_path)"},
			&cli.StringFlag{Name: "log", Usage: "Log file while the browser runs", Value: "./tmp/bcx-browse.log"},
		},
		Action: r.Browse,
	}
}
