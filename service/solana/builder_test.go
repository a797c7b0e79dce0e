package solana

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPayer    = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	testTreasury = solana.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	testMint     = solana.MustPublicKeyFromBase58("SENDdRQtYMWaQrBroBrJ2Q53fgVuq95CV9UPGEvpCxa")
)

func TestBuild_FeePayerAndInstructionOrder(t *testing.T) {
	mock := &mockRPCClient{blockhashes: []solana.Hash{{7}}}
	builder := NewBuilder(newTestClient(mock), testLogger())

	tx, err := builder.Build(context.Background(), testPayer,
		ComputeUnitPrice(1000),
		Memo(testPayer, "a fox in the snow"),
		ComputeUnitLimit(200_000),
	)
	require.NoError(t, err)

	summary, err := Summarize(tx)
	require.NoError(t, err)

	assert.Equal(t, testPayer.String(), summary.FeePayer)
	assert.Equal(t, solana.Hash{7}.String(), summary.Blockhash)
	assert.Equal(t, 1, summary.Signatures)
	require.Len(t, summary.Instructions, 3)
	assert.Equal(t, KindComputeUnitPrice, summary.Instructions[0].Kind)
	assert.Equal(t, uint64(1000), summary.Instructions[0].Amount)
	assert.Equal(t, KindMemo, summary.Instructions[1].Kind)
	assert.Equal(t, "a fox in the snow", summary.Instructions[1].Memo)
	assert.Equal(t, KindComputeUnitLimit, summary.Instructions[2].Kind)
	assert.Equal(t, uint64(200_000), summary.Instructions[2].Amount)
}

func TestBuild_BlockhashFetchedFreshAfterValidation(t *testing.T) {
	mock := &mockRPCClient{blockhashes: []solana.Hash{{1}, {2}}}
	builder := NewBuilder(newTestClient(mock), testLogger())

	// Invalid input never reaches the RPC node.
	_, err := builder.Build(context.Background(), testPayer, Memo(testPayer, "only a memo"))
	require.ErrorIs(t, err, ErrMemoOnlyTransaction)
	assert.Equal(t, 0, mock.blockhashCalls)

	first, err := builder.Build(context.Background(), testPayer, ComputeUnitPrice(1))
	require.NoError(t, err)
	second, err := builder.Build(context.Background(), testPayer, ComputeUnitPrice(1))
	require.NoError(t, err)

	assert.Equal(t, 2, mock.blockhashCalls)
	assert.Equal(t, solana.Hash{1}, first.Message.RecentBlockhash)
	assert.Equal(t, solana.Hash{2}, second.Message.RecentBlockhash)
}

func TestBuild_RejectsInvalidInput(t *testing.T) {
	builder := NewBuilder(newTestClient(&mockRPCClient{}), testLogger())
	ctx := context.Background()

	_, err := builder.Build(ctx, testPayer)
	assert.ErrorIs(t, err, ErrEmptyTransaction)

	_, err = builder.Build(ctx, solana.PublicKey{}, ComputeUnitPrice(1))
	assert.ErrorIs(t, err, ErrInvalidFeePayer)

	_, err = builder.Build(ctx, testPayer, Memo(testPayer, "a"), Identity(testPayer, testTreasury, "ref"))
	assert.ErrorIs(t, err, ErrMemoOnlyTransaction)
}

func TestBuild_BlockhashError(t *testing.T) {
	rpcErr := errors.New("node unavailable")
	builder := NewBuilder(newTestClient(&mockRPCClient{blockhashErr: rpcErr}), testLogger())

	_, err := builder.Build(context.Background(), testPayer, ComputeUnitPrice(1))
	assert.ErrorIs(t, err, rpcErr)
}

func TestEncodeTransaction_RoundTrip(t *testing.T) {
	builder := NewBuilder(newTestClient(&mockRPCClient{}), testLogger())

	tx, err := builder.Build(context.Background(), testPayer, ComputeUnitPrice(1000), Memo(testPayer, "hello"))
	require.NoError(t, err)

	encoded, err := EncodeTransaction(tx)
	require.NoError(t, err)

	decoded, err := DecodeTransaction(encoded)
	require.NoError(t, err)

	// Unsigned: one zero-filled signature slot for the fee payer.
	require.Len(t, decoded.Signatures, 1)
	assert.True(t, decoded.Signatures[0].IsZero())
	assert.Equal(t, tx.Message.RecentBlockhash, decoded.Message.RecentBlockhash)
	assert.Equal(t, testPayer, decoded.Message.AccountKeys[0])
}

func TestPaymentInstructions(t *testing.T) {
	ctx := context.Background()

	t.Run("native SOL uses a system transfer", func(t *testing.T) {
		mock := &mockRPCClient{}
		ixs, err := newTestClient(mock).PaymentInstructions(ctx, Payment{
			Payer:    testPayer,
			Treasury: testTreasury,
			Amount:   5000,
		})
		require.NoError(t, err)
		require.Len(t, ixs, 1)
		assert.True(t, ixs[0].ProgramID().Equals(solana.SystemProgramID))
		assert.Equal(t, 0, mock.accountCalls)
	})

	t.Run("missing treasury token account is created first", func(t *testing.T) {
		mock := &mockRPCClient{}
		ixs, err := newTestClient(mock).PaymentInstructions(ctx, Payment{
			Payer:    testPayer,
			Treasury: testTreasury,
			Mint:     testMint,
			Decimals: 6,
			Amount:   268970,
		})
		require.NoError(t, err)
		require.Len(t, ixs, 2)
		assert.True(t, ixs[0].ProgramID().Equals(solana.SPLAssociatedTokenAccountProgramID))
		assert.True(t, ixs[1].ProgramID().Equals(solana.TokenProgramID))

		tx, err := NewBuilder(newTestClient(mock), testLogger()).Build(ctx, testPayer, ixs...)
		require.NoError(t, err)
		summary, err := Summarize(tx)
		require.NoError(t, err)

		require.Len(t, summary.Instructions, 2)
		assert.Equal(t, KindCreateATA, summary.Instructions[0].Kind)
		assert.Equal(t, testMint.String(), summary.Instructions[0].Mint)
		transfer := summary.Instructions[1]
		assert.Equal(t, KindTransferChecked, transfer.Kind)
		assert.Equal(t, uint64(268970), transfer.Amount)
		require.NotNil(t, transfer.Decimals)
		assert.Equal(t, uint8(6), *transfer.Decimals)
		assert.Equal(t, testMint.String(), transfer.Mint)
	})

	t.Run("existing treasury token account is reused", func(t *testing.T) {
		treasuryATA, _, err := solana.FindAssociatedTokenAddress(testTreasury, testMint)
		require.NoError(t, err)

		mock := &mockRPCClient{existing: map[solana.PublicKey]bool{treasuryATA: true}}
		ixs, err := newTestClient(mock).PaymentInstructions(ctx, Payment{
			Payer:    testPayer,
			Treasury: testTreasury,
			Mint:     testMint,
			Decimals: 6,
			Amount:   1,
		})
		require.NoError(t, err)
		require.Len(t, ixs, 1)
		assert.True(t, ixs[0].ProgramID().Equals(solana.TokenProgramID))
		assert.Equal(t, 1, mock.accountCalls)
	})

	t.Run("zero amount is rejected", func(t *testing.T) {
		_, err := newTestClient(&mockRPCClient{}).PaymentInstructions(ctx, Payment{Payer: testPayer, Treasury: testTreasury})
		assert.Error(t, err)
	})
}
