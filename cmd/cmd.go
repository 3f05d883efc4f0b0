// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand initializes the local cache database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize configuration and the local cache database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// authCommand handles identity provider operations.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the signed-in account",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with email and password",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email"},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Account password (prompted when omitted)"},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "signup",
				Usage: "Create a new account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email"},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Account password (prompted when omitted)"},
				},
				Action: r.AuthSignup,
			},
			{
				Name:   "logout",
				Usage:  "Sign out and clear local session state",
				Action: r.AuthLogout,
			},
			{
				Name:  "status",
				Usage: "Show the current session state",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.AuthStatus,
			},
		},
	}
}

// listCommand prints the entry collection.
func listCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List nasheeds",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sort", Usage: "Sort order: date_desc, date_asc, title_asc", Value: "date_desc"},
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Filter by title or lyrics substring"},
			&cli.BoolFlag{Name: "favorites", Aliases: []string{"f"}, Usage: "Only show favorites"},
			&cli.BoolFlag{Name: "cached", Usage: "Skip the remote fetch and list the local cache"},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output"},
		},
		Action: r.ListEntries,
	}
}

// showCommand prints a single entry.
func showCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a nasheed's lyrics",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Usage: "Output format: text, markdown, json", Value: "text"},
		},
		Action: r.ShowEntry,
	}
}

// createCommand adds a new entry.
func createCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a nasheed",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Entry title"},
			&cli.StringFlag{Name: "lyrics", Aliases: []string{"l"}, Usage: "Lyrics text"},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read lyrics from a file"},
		},
		Action: r.CreateEntry,
	}
}

// editCommand updates an existing entry.
func editCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Edit a nasheed",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
			&cli.StringFlag{Name: "lyrics", Aliases: []string{"l"}, Usage: "New lyrics text"},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read new lyrics from a file"},
		},
		Action: r.EditEntry,
	}
}

// favoriteCommand toggles the favorite flag.
func favoriteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "favorite",
		Aliases:   []string{"fav"},
		Usage:     "Toggle a nasheed's favorite flag",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Action:    r.FavoriteEntry,
	}
}

// deleteCommand removes an entry.
func deleteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a nasheed",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation prompt"},
		},
		Action: r.DeleteEntry,
	}
}

// syncCommand forces a refresh of the local cache from the remote store.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "sync",
		Usage:  "Fetch the latest entries from the server",
		Action: r.Sync,
	}
}

// exportCommand writes entries to disk in bulk.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export nasheeds to files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Usage: "Export format: json, markdown, txt", Value: "markdown"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory"},
			&cli.IntFlag{Name: "workers", Usage: "Concurrent workers", Value: 4},
			&cli.BoolFlag{Name: "favorites", Aliases: []string{"f"}, Usage: "Only export favorites"},
		},
		Action: r.Export,
	}
}

// tuiCommand launches the interactive terminal UI.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Launch the interactive terminal UI",
		Action: r.TUI,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, listCommand, showCommand, createCommand,
		editCommand, favoriteCommand, deleteCommand, syncCommand, exportCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}
