package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/geneva/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams action events from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to action events",
		ArgsUsage: "[step]",
		Description: `Stream action events published to NATS JetStream.

Events are published to the subject: actions.{step}
Without a step every event is streamed.

Example:
  geneva events subscribe render --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "geneva-cli",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if c.NArg() > 0 {
				subject = natspkg.SubjectPrefix + c.Args().First()
			}

			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			consumerConfig := jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
				DeliverPolicy: jetstream.DeliverNewPolicy,
			}
			if c.Bool("durable") {
				consumerConfig.Durable = c.String("consumer-name")
				consumerConfig.Name = c.String("consumer-name")
			}

			cons, err := js.CreateOrUpdateConsumer(c.Context, natspkg.StreamName, consumerConfig)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			jsonOutput := c.Bool("json")
			w := c.App.Writer
			if !jsonOutput {
				fmt.Fprintf(w, "Subscribing to: %s\n", subject)
				fmt.Fprintf(w, "Waiting for events... (Ctrl-C to exit)\n\n")
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			msgChan := make(chan jetstream.Msg, 10)
			consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
				msgChan <- msg
			})
			if err != nil {
				return fmt.Errorf("failed to consume: %w", err)
			}
			defer consumeCtx.Stop()

			count := 0
			for {
				select {
				case msg := <-msgChan:
					var event natspkg.ActionEvent
					if err := json.Unmarshal(msg.Data(), &event); err != nil {
						fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
						msg.Ack()
						continue
					}
					count++

					if jsonOutput {
						data, _ := json.Marshal(event)
						fmt.Fprintln(w, string(data))
					} else {
						printEvent(w, count, &event)
					}
					msg.Ack()

				case <-sigChan:
					if !jsonOutput {
						fmt.Fprintf(w, "\nReceived %d events\n", count)
					}
					return nil
				}
			}
		},
	}
}

func printEvent(w io.Writer, n int, e *natspkg.ActionEvent) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Event #%d (%s)\n", n, e.Step)
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Account:      %s\n", e.Account)
	if e.Signature != "" {
		fmt.Fprintf(w, "Signature:    %s\n", e.Signature)
	}
	if e.Prompt != "" {
		fmt.Fprintf(w, "Prompt:       %s\n", e.Prompt)
	}
	if e.Tier != "" {
		fmt.Fprintf(w, "Tier:         %s\n", e.Tier)
	}
	if e.ImageURL != "" {
		fmt.Fprintf(w, "Image:        %s\n", e.ImageURL)
	}
	if e.AssetID != "" {
		fmt.Fprintf(w, "Asset:        %s\n", e.AssetID)
	}
	if e.Reference != "" {
		fmt.Fprintf(w, "Reference:    %s\n", e.Reference)
	}
	fmt.Fprintf(w, "Occurred:     %s\n", e.Timestamp.Format(time.RFC3339))
	fmt.Fprintln(w)
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the ACTIONS JetStream stream",
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
			defer cancel()

			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			return emit(c, info, func(w io.Writer) {
				fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
				fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
				fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
				fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
				fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
				fmt.Fprintf(w, "First Seq:    %d\n", info.State.FirstSeq)
				fmt.Fprintf(w, "Last Seq:     %d\n", info.State.LastSeq)
				fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
				fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
				fmt.Fprintf(w, "Storage:      %s\n", info.Config.Storage)
			})
		},
	}
}
