package actions

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/brojonat/geneva/service/analytics"
	"github.com/brojonat/geneva/service/nft"
	"github.com/brojonat/geneva/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

var (
	testAccount  = solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	testTreasury = solanago.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	testIdentity = solanago.MustPublicKeyFromBase58("SENDdRQtYMWaQrBroBrJ2Q53fgVuq95CV9UPGEvpCxa")

	testSignature = solanago.Signature{9, 9, 9}.String()
	testBlockhash = solanago.Hash{1, 2, 3, 4, 5, 6, 7, 8}
)

type mockConfirmer struct {
	mu     sync.Mutex
	status solana.ConfirmationStatus
	err    error
	calls  []string
}

func (m *mockConfirmer) Confirm(ctx context.Context, signature string) (solana.ConfirmationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, signature)
	if m.err != nil {
		return m.status, m.err
	}
	if m.status == "" {
		return solana.StatusConfirmed, nil
	}
	return m.status, nil
}

// mockBuilder compiles real transactions against a fixed blockhash.
type mockBuilder struct {
	mu       sync.Mutex
	err      error
	calls    int
	feePayer solanago.PublicKey
	ixs      []solanago.Instruction
}

func (m *mockBuilder) Build(ctx context.Context, feePayer solanago.PublicKey, instructions ...solanago.Instruction) (*solanago.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.feePayer = feePayer
	m.ixs = instructions
	if m.err != nil {
		return nil, m.err
	}
	return solanago.NewTransaction(instructions, testBlockhash, solanago.TransactionPayer(feePayer))
}

type mockPayments struct {
	mu       sync.Mutex
	err      error
	payments []solana.Payment
}

func (m *mockPayments) PaymentInstructions(ctx context.Context, p solana.Payment) ([]solanago.Instruction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, p)
	if m.err != nil {
		return nil, m.err
	}
	return []solanago.Instruction{solana.ComputeUnitLimit(200_000)}, nil
}

type generateCall struct {
	prompt string
	model  string
}

type mockGenerator struct {
	mu    sync.Mutex
	url   string
	err   error
	calls []generateCall
}

func (m *mockGenerator) Generate(ctx context.Context, prompt, model string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, generateCall{prompt: prompt, model: model})
	if m.err != nil {
		return "", m.err
	}
	return m.url, nil
}

type mockMinter struct {
	mu     sync.Mutex
	result *nft.MintResult
	err    error
	calls  []nft.MintRequest
}

func (m *mockMinter) Mint(ctx context.Context, req nft.MintRequest) (*nft.MintResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockAnalytics struct {
	mu               sync.Mutex
	instructionErr   error
	trackErr         error
	instructionCalls int
	events           []analytics.Event
}

func (m *mockAnalytics) Instruction(ctx context.Context, account solanago.PublicKey, requestURL string) (solanago.Instruction, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructionCalls++
	if m.instructionErr != nil {
		return nil, "", m.instructionErr
	}
	return solana.Identity(account, testIdentity, "ref-1"), "ref-1", nil
}

func (m *mockAnalytics) Track(ctx context.Context, event analytics.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trackErr != nil {
		return m.trackErr
	}
	m.events = append(m.events, event)
	return nil
}

type mockRecorder struct {
	mu     sync.Mutex
	err    error
	events []analytics.Event
}

func (m *mockRecorder) Record(ctx context.Context, event analytics.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture bundles an orchestrator with its mocks.
type fixture struct {
	orch      *Orchestrator
	confirmer *mockConfirmer
	builder   *mockBuilder
	payments  *mockPayments
	generator *mockGenerator
	minter    *mockMinter
	analytics *mockAnalytics
	recorder  *mockRecorder
}

func (f *fixture) sideEffects() int {
	return len(f.confirmer.calls) + f.builder.calls + len(f.payments.payments) +
		len(f.generator.calls) + len(f.minter.calls) + f.analytics.instructionCalls
}

func testConfig() Config {
	return Config{
		BaseURL:         "https://geneva.example",
		PaymentRequired: true,
		MintEnabled:     true,
		Treasury:        testTreasury,
		PaymentDecimals: 6,
		PaymentSymbol:   "SEND",
		PriorityFee:     1000,
		Tiers:           DefaultTiers(268970, 537940),
	}
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		confirmer: &mockConfirmer{},
		builder:   &mockBuilder{},
		payments:  &mockPayments{},
		generator: &mockGenerator{url: "https://fal.media/files/fox.png"},
		minter: &mockMinter{result: &nft.MintResult{
			AssetID:    "asset-1",
			Signature:  "mintsig",
			ContentURI: "ipfs://abc",
		}},
		analytics: &mockAnalytics{},
		recorder:  &mockRecorder{},
	}

	orch, err := NewOrchestrator(cfg, Dependencies{
		Confirmer: f.confirmer,
		Builder:   f.builder,
		Payments:  f.payments,
		Generator: f.generator,
		Minter:    f.minter,
		Analytics: f.analytics,
		Recorder:  f.recorder,
	}, nil, testLogger())
	if err != nil {
		panic(err)
	}
	f.orch = orch
	return f
}
