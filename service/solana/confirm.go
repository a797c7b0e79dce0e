package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/geneva/service/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Confirmer polls signature status until a transaction reaches confirmed
// commitment, fails on chain, or the retry budget is spent.
type Confirmer struct {
	client     *Client
	maxRetries int
	newBackOff BackOffFactory
	sleep      SleepFunc
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// ConfirmerOption customizes a Confirmer.
type ConfirmerOption func(*Confirmer)

// WithBackOff sets the polling policy. The default is a constant 2s delay.
func WithBackOff(f BackOffFactory) ConfirmerOption {
	return func(c *Confirmer) {
		c.newBackOff = f
	}
}

// WithSleep replaces the real timer, letting tests run without time passing.
func WithSleep(s SleepFunc) ConfirmerOption {
	return func(c *Confirmer) {
		c.sleep = s
	}
}

// NewConfirmer creates a Confirmer that polls at most maxRetries times.
func NewConfirmer(client *Client, maxRetries int, m *metrics.Metrics, logger *slog.Logger, opts ...ConfirmerOption) *Confirmer {
	if maxRetries < 1 {
		maxRetries = 1
	}
	c := &Confirmer{
		client:     client,
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewConstantBackOff(2 * time.Second) },
		sleep:      sleepContext,
		logger:     logger,
		metrics:    m,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Confirm waits for signature to reach confirmed or finalized commitment.
//
// It returns ErrInvalidSignature for malformed input, ErrUnknownStatus when the
// node has no record of the signature, *TransactionFailedError when the
// transaction landed with an error and *ConfirmationTimeoutError when
// maxRetries polls pass without a terminal status. RPC errors count as a
// pending poll. There is no sleep after the final poll.
func (c *Confirmer) Confirm(ctx context.Context, signature string) (ConfirmationStatus, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return StatusUnknown, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	start := time.Now()
	policy := c.newBackOff()
	policy.Reset()

	var (
		last    = StatusPending
		lastErr error
		polls   int
	)

	for polls < c.maxRetries {
		polls++
		result, err := c.client.SignatureStatus(ctx, sig)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				c.finish("canceled", start)
				return StatusUnknown, ctx.Err()
			}
			lastErr = err
			c.metrics.RecordConfirmationPoll("rpc_error")
			c.logger.WarnContext(ctx, "signature status poll failed",
				"signature", signature,
				"attempt", polls,
				"error", err,
			)

		case result == nil:
			c.metrics.RecordConfirmationPoll("absent")
			c.finish("unknown", start)
			return StatusUnknown, fmt.Errorf("%w: %s", ErrUnknownStatus, signature)

		case result.Err != nil:
			c.metrics.RecordConfirmationPoll("failed")
			c.finish("failed", start)
			return StatusFailed, &TransactionFailedError{Signature: signature, Err: result.Err}

		default:
			last = statusFromRPC(result.ConfirmationStatus)
			c.metrics.RecordConfirmationPoll(string(last))
			if last.Advances() {
				c.finish(string(last), start)
				c.logger.DebugContext(ctx, "signature confirmed",
					"signature", signature,
					"status", last,
					"attempts", polls,
					"slot", result.Slot,
				)
				return last, nil
			}
		}

		if polls == c.maxRetries {
			break
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			c.finish("canceled", start)
			return last, err
		}
	}

	c.finish("timeout", start)
	return last, &ConfirmationTimeoutError{
		Signature:  signature,
		Attempts:   polls,
		LastStatus: last,
		LastErr:    lastErr,
	}
}

func (c *Confirmer) finish(outcome string, start time.Time) {
	c.metrics.RecordConfirmation(outcome, time.Since(start).Seconds())
}

// statusFromRPC maps a node's commitment level onto our status enum.
// "processed" and an empty level are both still pending.
func statusFromRPC(s rpc.ConfirmationStatusType) ConfirmationStatus {
	switch s {
	case rpc.ConfirmationStatusConfirmed:
		return StatusConfirmed
	case rpc.ConfirmationStatusFinalized:
		return StatusFinalized
	default:
		return StatusPending
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
