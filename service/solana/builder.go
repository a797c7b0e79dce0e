package solana

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

// Builder assembles unsigned transactions for the client to sign.
// The server never signs; the fee payer is always the requesting account.
type Builder struct {
	client *Client
	logger *slog.Logger
}

// NewBuilder creates a Builder that fetches blockhashes through client.
func NewBuilder(client *Client, logger *slog.Logger) *Builder {
	return &Builder{client: client, logger: logger}
}

// Build validates the instruction list, then fetches a fresh blockhash and
// compiles the transaction. Instruction order is preserved exactly.
func (b *Builder) Build(ctx context.Context, feePayer solana.PublicKey, instructions ...solana.Instruction) (*solana.Transaction, error) {
	if feePayer.IsZero() {
		return nil, ErrInvalidFeePayer
	}
	if len(instructions) == 0 {
		return nil, ErrEmptyTransaction
	}

	memoOnly := true
	for i, ix := range instructions {
		if ix == nil {
			return nil, fmt.Errorf("instruction %d is nil", i)
		}
		if !isMemo(ix) {
			memoOnly = false
		}
	}
	if memoOnly {
		return nil, ErrMemoOnlyTransaction
	}

	blockhash, err := b.client.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("compile transaction: %w", err)
	}

	b.logger.DebugContext(ctx, "built unsigned transaction",
		"fee_payer", feePayer.String(),
		"instructions", len(instructions),
		"blockhash", blockhash.String(),
	)

	return tx, nil
}

// EncodeTransaction serializes tx to base64 with zero-filled signature slots.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	out, err := tx.ToBase64()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	return out, nil
}
