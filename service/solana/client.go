package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/geneva/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	GetAccountInfo(
		ctx context.Context,
		account solana.PublicKey,
	) (*rpc.GetAccountInfoResult, error)
}

// Client provides the read-only chain queries the action steps need.
// It wraps the RPC client with domain-specific operations and instrumentation.
type Client struct {
	rpc     RPCClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a new Solana client.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:     rpcClient,
		logger:  logger,
		metrics: m,
	}
}

// SignatureStatus returns the node's status record for a signature, or nil when
// the node has never seen it. Ledger history is searched so older signatures resolve.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	start := time.Now()
	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	c.metrics.RecordRPCCall("getSignatureStatuses", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("get signature status: %w", err)
	}

	if out == nil || len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

// LatestBlockhash fetches a fresh finalized blockhash. It is never cached.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	c.metrics.RecordRPCCall("getLatestBlockhash", err, time.Since(start).Seconds())
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: empty response")
	}

	c.logger.DebugContext(ctx, "fetched latest blockhash",
		"blockhash", out.Value.Blockhash.String(),
		"last_valid_block_height", out.Value.LastValidBlockHeight,
	)

	return out.Value.Blockhash, nil
}

// AccountExists reports whether an account has been created on chain.
func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	start := time.Now()
	out, err := c.rpc.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		c.metrics.RecordRPCCall("getAccountInfo", nil, time.Since(start).Seconds())
		return false, nil
	}
	c.metrics.RecordRPCCall("getAccountInfo", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("get account info for %s: %w", account, err)
	}
	return out != nil && out.Value != nil, nil
}
