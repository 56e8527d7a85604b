// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "Local username whose servers are used",
		Sources: cli.EnvVars("AMALGAM_USER"),
	}
}

// serveCommand runs the web application.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web application",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port from config)",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration",
				Action: r.SetupConfig,
			},
		},
	}
}

// usersCommand manages local accounts.
func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage local users",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a user",
				ArgsUsage: "<username>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "password",
						Usage: "Password (read from stdin when omitted)",
					},
				},
				Action: r.UsersAdd,
			},
			{
				Name:  "list",
				Usage: "List users",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.UsersList,
			},
		},
	}
}

// serversCommand manages a user's linked Mastodon servers.
func serversCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "servers",
		Aliases: []string{"srv"},
		Usage:   "Manage linked Mastodon servers",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List linked servers",
				Flags:  []cli.Flag{userFlag(), &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
				Action: r.ServersList,
			},
			{
				Name:      "add",
				Usage:     "Link a server through its authorization page",
				ArgsUsage: "<domain>",
				Flags: []cli.Flag{
					userFlag(),
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
				},
				Action: r.ServersAdd,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Unlink one or more servers",
				ArgsUsage: "<domain> [domain...]",
				Flags:     []cli.Flag{userFlag()},
				Action:    r.ServersRemove,
			},
		},
	}
}

// feedCommand prints or exports the merged feed.
func feedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Print the merged feed of all linked servers",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, csv or markdown",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file (csv: base name, markdown: directory)",
			},
			&cli.BoolFlag{
				Name:  "media",
				Usage: "Download image previews with a markdown export",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of posts (0 for all)",
			},
		},
		Action: r.Feed,
	}
}

// tuiCommand returns the top-level TUI command for browsing the feed.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse the merged feed in the terminal",
		Flags:   []cli.Flag{userFlag()},
		Action:  r.TUI,
	}
}
