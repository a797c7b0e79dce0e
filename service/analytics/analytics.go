// Package analytics attributes action transactions to this service and
// tracks chain progress.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/brojonat/geneva/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// Event describes one completed step of a chain.
type Event struct {
	ID         string
	Step       string
	Account    string
	Reference  string
	RequestURL string
	Signature  string
	Prompt     string
	Tier       string
	ImageURL   string
	AssetID    string
	Timestamp  time.Time
}

// Publisher delivers events to a sink such as NATS.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Tracker appends identity instructions and publishes events.
// A zero identity disables the instruction; a nil publisher disables tracking.
type Tracker struct {
	identity  solanago.PublicKey
	publisher Publisher
	logger    *slog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(identity solanago.PublicKey, publisher Publisher, logger *slog.Logger) *Tracker {
	return &Tracker{
		identity:  identity,
		publisher: publisher,
		logger:    logger,
	}
}

// Instruction returns the attribution memo for a request and the reference it
// carries. It returns a nil instruction when no identity is configured.
func (t *Tracker) Instruction(ctx context.Context, account solanago.PublicKey, requestURL string) (solanago.Instruction, string, error) {
	if t.identity.IsZero() {
		return nil, "", nil
	}
	if account.IsZero() {
		return nil, "", fmt.Errorf("attribution requires an account")
	}
	if _, err := url.ParseRequestURI(requestURL); err != nil {
		return nil, "", fmt.Errorf("invalid request url: %w", err)
	}

	reference := uuid.NewString()
	t.logger.DebugContext(ctx, "attributing transaction",
		"account", account.String(),
		"reference", reference,
		"request_url", requestURL,
	)
	return solana.Identity(account, t.identity, reference), reference, nil
}

// Track publishes event.
func (t *Tracker) Track(ctx context.Context, event Event) error {
	if t.publisher == nil {
		return nil
	}
	if err := t.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Step, err)
	}
	return nil
}
