package solana

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return and count calls.
type mockRPCClient struct {
	mu sync.Mutex

	// statuses are returned one per GetSignatureStatuses call; the last repeats.
	// A nil entry means the node has no record of the signature.
	statuses    []*rpc.SignatureStatusesResult
	statusErr   error
	statusCalls int

	// blockhashes are returned one per call; the last repeats.
	blockhashes    []solana.Hash
	blockhashErr   error
	blockhashCalls int

	existing     map[solana.PublicKey]bool
	accountCalls int

	// calls records every RPC method invoked, in order.
	calls []string
}

func (m *mockRPCClient) GetSignatureStatuses(
	ctx context.Context,
	searchTransactionHistory bool,
	signatures ...solana.Signature,
) (*rpc.GetSignatureStatusesResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statusCalls++
	m.calls = append(m.calls, "getSignatureStatuses")
	if m.statusErr != nil {
		return nil, m.statusErr
	}

	var status *rpc.SignatureStatusesResult
	if len(m.statuses) > 0 {
		status = m.statuses[min(m.statusCalls, len(m.statuses))-1]
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{status}}, nil
}

func (m *mockRPCClient) GetLatestBlockhash(
	ctx context.Context,
	commitment rpc.CommitmentType,
) (*rpc.GetLatestBlockhashResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blockhashCalls++
	m.calls = append(m.calls, "getLatestBlockhash")
	if m.blockhashErr != nil {
		return nil, m.blockhashErr
	}

	hash := solana.Hash{1}
	if len(m.blockhashes) > 0 {
		hash = m.blockhashes[min(m.blockhashCalls, len(m.blockhashes))-1]
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: hash, LastValidBlockHeight: 100},
	}, nil
}

func (m *mockRPCClient) GetAccountInfo(
	ctx context.Context,
	account solana.PublicKey,
) (*rpc.GetAccountInfoResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accountCalls++
	m.calls = append(m.calls, "getAccountInfo")
	if m.existing[account] {
		return &rpc.GetAccountInfoResult{Value: &rpc.Account{Lamports: 2039280}}, nil
	}
	return nil, rpc.ErrNotFound
}

func newTestClient(mock *mockRPCClient) *Client {
	return NewClient(mock, nil, testLogger())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func status(level rpc.ConfirmationStatusType) *rpc.SignatureStatusesResult {
	return &rpc.SignatureStatusesResult{Slot: 42, ConfirmationStatus: level}
}

// testSignature returns a well-formed base58 signature.
func testSignature(seed byte) string {
	var sig solana.Signature
	for i := range sig {
		sig[i] = seed + byte(i)
	}
	return sig.String()
}
