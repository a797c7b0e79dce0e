package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/geneva/client"
	"github.com/brojonat/geneva/service/actions"
	"github.com/brojonat/geneva/service/solana"
	"github.com/urfave/cli/v2"
)

func actionsCommands() *cli.Command {
	return &cli.Command{
		Name:  "actions",
		Usage: "Walk the action chain over HTTP",
		Subcommands: []*cli.Command{
			describeCommand(),
			postCommand(),
			inspectCommand(),
			historyCommand(),
		},
	}
}

func newActionClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

// target resolves a step name or href argument against the server.
func target(cl *client.Client, arg string) string {
	if arg == "" {
		return cl.StepURL(actions.StepGenerate)
	}
	if strings.HasPrefix(arg, "/") || strings.Contains(arg, "://") {
		return arg
	}
	return cl.StepURL(actions.StepName(arg))
}

func describeCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe",
		Usage:     "Fetch the descriptor of a step",
		ArgsUsage: "[STEP|HREF]",
		Description: `GET a step and print its descriptor. STEP defaults to generate.

Example:
  geneva actions describe
  geneva actions describe render --json`,
		Action: func(c *cli.Context) error {
			cl := newActionClient(c)

			d, err := cl.Describe(c.Context, target(cl, c.Args().First()))
			if err != nil {
				return fmt.Errorf("failed to describe step: %w", err)
			}

			return emit(c, d, func(w io.Writer) {
				fmt.Fprintf(w, "%s\n", d.Title)
				fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
				fmt.Fprintf(w, "Label:        %s\n", d.Label)
				fmt.Fprintf(w, "Description:  %s\n", d.Description)
				fmt.Fprintf(w, "Icon:         %s\n", d.Icon)
				if d.Disabled {
					fmt.Fprintf(w, "Disabled:     true\n")
				}
				if d.Links == nil {
					return
				}
				for _, link := range d.Links.Actions {
					fmt.Fprintf(w, "\nAction:       %s\n", link.Label)
					fmt.Fprintf(w, "  Href:       %s\n", link.Href)
					for _, p := range link.Parameters {
						required := ""
						if p.Required {
							required = " (required)"
						}
						fmt.Fprintf(w, "  Parameter:  %s [%s] %s%s\n", p.Name, p.Type, p.Label, required)
					}
				}
			})
		},
	}
}

func postCommand() *cli.Command {
	return &cli.Command{
		Name:      "post",
		Usage:     "Run a step and print the response",
		ArgsUsage: "[STEP|HREF]",
		Description: `POST to a step. Pass the next href of the previous response to
continue a chain, along with the signature of the transaction you signed.

Example:
  geneva actions post generate --account $WALLET --data prompt="a fox in the snow"
  geneva actions post "/api/actions/geneva/render?prompt=..." --account $WALLET --signature $SIG`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "account",
				Aliases:  []string{"a"},
				Usage:    "Wallet public key that will sign the transaction",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "signature",
				Aliases: []string{"s"},
				Usage:   "Signature of the previous step's transaction",
			},
			&cli.StringSliceFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Form value as key=value (can be specified multiple times)",
			},
			&cli.BoolFlag{
				Name:  "inspect",
				Usage: "Decode the returned transaction",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			data, err := parseData(c.StringSlice("data"))
			if err != nil {
				return err
			}

			cl := newActionClient(c)
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			resp, err := cl.Post(ctx, target(cl, c.Args().First()), actions.StepRequest{
				Account:   c.String("account"),
				Signature: c.String("signature"),
				Data:      data,
			})
			if err != nil {
				return fmt.Errorf("failed to post step: %w", err)
			}

			var summary *solana.TransactionSummary
			if c.Bool("inspect") && resp.Transaction != "" {
				if summary, err = summarize(resp.Transaction); err != nil {
					return err
				}
			}

			out := struct {
				*actions.StepResponse
				Summary *solana.TransactionSummary `json:"summary,omitempty"`
			}{resp, summary}

			return emit(c, out, func(w io.Writer) {
				fmt.Fprintf(w, "Type:         %s\n", resp.Type)
				if resp.Terminal() {
					fmt.Fprintf(w, "Title:        %s\n", resp.Title)
					fmt.Fprintf(w, "Description:  %s\n", resp.Description)
					fmt.Fprintf(w, "Icon:         %s\n", resp.Icon)
					return
				}
				fmt.Fprintf(w, "Message:      %s\n", resp.Message)
				if resp.Links != nil {
					fmt.Fprintf(w, "Next:         %s\n", resp.Links.Next.Href)
				}
				fmt.Fprintf(w, "Transaction:  %s\n", resp.Transaction)
				if summary != nil {
					fmt.Fprintln(w)
					printSummary(w, summary)
				}
			})
		},
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Decode a base64 transaction",
		ArgsUsage: "BASE64_TRANSACTION|-",
		Description: `Decode a transaction returned by a step and list its instructions.
Pass - to read the transaction from stdin.`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("transaction is required")
			}

			encoded := c.Args().First()
			if encoded == "-" {
				raw, err := io.ReadAll(c.App.Reader)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				encoded = string(raw)
			}

			summary, err := summarize(encoded)
			if err != nil {
				return err
			}

			return emit(c, summary, func(w io.Writer) {
				printSummary(w, summary)
			})
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List recorded steps of an account from the server",
		ArgsUsage: "ACCOUNT",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   20,
				Usage:   "Maximum number of rows",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("account is required")
			}

			gens, err := newActionClient(c).Generations(c.Context, c.Args().First(), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list generations: %w", err)
			}

			return emit(c, gens, func(w io.Writer) {
				if len(gens) == 0 {
					fmt.Fprintln(w, "No generations found")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "OCCURRED\tSTEP\tTIER\tIMAGE\tPROMPT")
				for _, g := range gens {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						g.OccurredAt.Format(time.RFC3339), g.Step, g.Tier, g.ImageURL, g.Prompt)
				}
				tw.Flush()
			})
		},
	}
}

// parseData turns key=value pairs into a POST data object.
func parseData(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	data := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --data %q: expected key=value", pair)
		}
		data[key] = value
	}
	return data, nil
}

func summarize(encoded string) (*solana.TransactionSummary, error) {
	tx, err := solana.DecodeTransaction(encoded)
	if err != nil {
		return nil, err
	}
	return solana.Summarize(tx)
}

func printSummary(w io.Writer, s *solana.TransactionSummary) {
	fmt.Fprintf(w, "Fee payer:    %s\n", s.FeePayer)
	fmt.Fprintf(w, "Blockhash:    %s\n", s.Blockhash)
	fmt.Fprintf(w, "Signers:      %d\n", s.Signatures)
	for i, ix := range s.Instructions {
		fmt.Fprintf(w, "#%d %-12s %s", i, ix.Program, ix.Kind)
		if ix.Amount != 0 {
			fmt.Fprintf(w, " amount=%d", ix.Amount)
		}
		if ix.Decimals != nil {
			fmt.Fprintf(w, " decimals=%d", *ix.Decimals)
		}
		if ix.Mint != "" {
			fmt.Fprintf(w, " mint=%s", ix.Mint)
		}
		if ix.Memo != "" {
			fmt.Fprintf(w, " memo=%q", ix.Memo)
		}
		fmt.Fprintln(w)
	}
}
