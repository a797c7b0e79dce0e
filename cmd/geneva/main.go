package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "geneva",
		Usage: "Solana Actions image generation service CLI",
		Description: `A command-line tool for driving and debugging the geneva action chain.

Use this CLI to walk a chain step by step, decode the transactions it returns,
check signature confirmation, and inspect the event stream and ledger.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// Prompts passed with --data routinely contain commas
		DisableSliceFlagSeparator: true,
		Commands: []*cli.Command{
			actionsCommands(),
			confirmCommand(),
			versionCommand(),
			{
				Name:  "events",
				Usage: "NATS action event commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			{
				Name:  "db",
				Usage: "Ledger inspection commands",
				Subcommands: []*cli.Command{
					listGenerationsCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Action server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Solana RPC URL used by confirm",
				EnvVars: []string{"SOLANA_RPC_URL"},
				Value:   "https://api.devnet.solana.com",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to the JSON output (implies --json)",
			},
		},
	}
}
