package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/geneva/service/solana"
	"github.com/urfave/cli/v2"
)

type confirmResult struct {
	Signature string                    `json:"signature"`
	Status    solana.ConfirmationStatus `json:"status"`
	Advances  bool                      `json:"advances"`
	Error     string                    `json:"error,omitempty"`
	Elapsed   string                    `json:"elapsed"`
}

func confirmCommand() *cli.Command {
	return &cli.Command{
		Name:      "confirm",
		Usage:     "Poll a signature until it confirms, fails or runs out of retries",
		ArgsUsage: "SIGNATURE",
		Description: `Run the same confirmation check a step runs on its prior signature.

Example:
  geneva confirm 5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW --retries 5`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "retries",
				Usage: "Maximum number of status polls",
				Value: 10,
			},
			&cli.DurationFlag{
				Name:  "delay",
				Usage: "Base delay between polls",
				Value: 2 * time.Second,
			},
			&cli.StringFlag{
				Name:  "backoff",
				Usage: "Polling policy (fixed, exponential, jittered)",
				Value: solana.PolicyFixed,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("signature is required")
			}
			signature := c.Args().First()

			factory, err := solana.NewBackOffFactory(c.String("backoff"), c.Duration("delay"))
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelError,
			}))
			rpcClient := solana.NewClient(solana.NewRPCClient(c.String("rpc-url")), nil, logger)
			confirmer := solana.NewConfirmer(rpcClient, c.Int("retries"), nil, logger, solana.WithBackOff(factory))

			start := time.Now()
			status, confirmErr := confirmer.Confirm(c.Context, signature)
			result := confirmResult{
				Signature: signature,
				Status:    status,
				Advances:  confirmErr == nil && status.Advances(),
				Elapsed:   time.Since(start).Round(time.Millisecond).String(),
			}
			if confirmErr != nil {
				result.Error = confirmErr.Error()
			}

			if err := emit(c, result, func(w io.Writer) {
				mark := "✓"
				if !result.Advances {
					mark = "✗"
				}
				fmt.Fprintf(w, "%s %s\n", mark, signature)
				fmt.Fprintf(w, "  Status:   %s\n", status)
				fmt.Fprintf(w, "  Elapsed:  %s\n", result.Elapsed)
				if result.Error != "" {
					fmt.Fprintf(w, "  Error:    %s\n", result.Error)
				}
			}); err != nil {
				return err
			}

			if confirmErr != nil {
				return fmt.Errorf("signature not confirmed: %w", confirmErr)
			}
			return nil
		},
	}
}
