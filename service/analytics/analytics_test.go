package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/brojonat/geneva/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAccount  = solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	testIdentity = solanago.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInstruction(t *testing.T) {
	tracker := NewTracker(testIdentity, nil, testLogger())

	ix, reference, err := tracker.Instruction(context.Background(), testAccount, "https://geneva.example/api/actions/geneva/generate")
	require.NoError(t, err)
	require.NotNil(t, ix)
	assert.NotEmpty(t, reference)

	assert.True(t, ix.ProgramID().Equals(solana.MemoProgramIDSPL))
	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, solana.IdentityText(testIdentity, reference), string(data))

	accounts := ix.Accounts()
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].PublicKey.Equals(testAccount))
	assert.True(t, accounts[0].IsSigner)
}

func TestInstruction_UniqueReferences(t *testing.T) {
	tracker := NewTracker(testIdentity, nil, testLogger())

	_, first, err := tracker.Instruction(context.Background(), testAccount, "https://geneva.example/a")
	require.NoError(t, err)
	_, second, err := tracker.Instruction(context.Background(), testAccount, "https://geneva.example/a")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestInstruction_NoIdentity(t *testing.T) {
	tracker := NewTracker(solanago.PublicKey{}, nil, testLogger())

	ix, reference, err := tracker.Instruction(context.Background(), testAccount, "https://geneva.example/a")
	require.NoError(t, err)
	assert.Nil(t, ix)
	assert.Empty(t, reference)
}

func TestInstruction_Errors(t *testing.T) {
	tracker := NewTracker(testIdentity, nil, testLogger())

	_, _, err := tracker.Instruction(context.Background(), solanago.PublicKey{}, "https://geneva.example/a")
	assert.Error(t, err)

	_, _, err = tracker.Instruction(context.Background(), testAccount, "not a url")
	assert.Error(t, err)
}

func TestTrack(t *testing.T) {
	pub := &recordingPublisher{}
	tracker := NewTracker(testIdentity, pub, testLogger())

	require.NoError(t, tracker.Track(context.Background(), Event{ID: "1", Step: "generate"}))
	require.Len(t, pub.events, 1)
	assert.Equal(t, "generate", pub.events[0].Step)

	pub.err = errors.New("nats unavailable")
	err := tracker.Track(context.Background(), Event{ID: "2", Step: "render"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render")
	assert.ErrorIs(t, err, pub.err)
}

func TestTrack_NoPublisher(t *testing.T) {
	tracker := NewTracker(testIdentity, nil, testLogger())
	assert.NoError(t, tracker.Track(context.Background(), Event{ID: "1", Step: "generate"}))
}
