package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/brojonat/geneva/service/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func listGenerationsCommand() *cli.Command {
	return &cli.Command{
		Name:      "generations",
		Usage:     "List recorded steps of an account straight from the ledger",
		ArgsUsage: "ACCOUNT",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   50,
				Usage:   "Maximum number of rows",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Include steps that carried no image",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("account is required")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			events, err := store.ListActionEventsByAccount(c.Context, c.Args().First(), !c.Bool("all"), int32(c.Int("limit")))
			if err != nil {
				return fmt.Errorf("failed to list generations: %w", err)
			}

			return emit(c, events, func(w io.Writer) {
				if len(events) == 0 {
					fmt.Fprintln(w, "No generations found")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "OCCURRED\tSTEP\tTIER\tSIGNATURE\tIMAGE\tASSET")
				for _, e := range events {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						e.OccurredAt.Format(time.RFC3339),
						e.Step,
						formatOptional(e.Tier),
						formatOptional(e.Signature),
						formatOptional(e.ImageURL),
						formatOptional(e.AssetID),
					)
				}
				tw.Flush()
			})
		},
	}
}

func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db.NewStore(pool, nil), pool.Close, nil
}
