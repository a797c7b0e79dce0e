package solana

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// Well-known Solana program IDs
var (
	// MemoProgramIDSPL is the SPL Memo program (most common)
	MemoProgramIDSPL = solana.MemoProgramID

	// MemoProgramIDLegacy is the legacy memo program (v1)
	MemoProgramIDLegacy = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")
)

// IdentityPrefix starts every attribution memo.
const IdentityPrefix = "geneva"

// Payment describes a tier price charged to the request account.
type Payment struct {
	Payer    solana.PublicKey
	Treasury solana.PublicKey
	Mint     solana.PublicKey // zero for native SOL
	Decimals uint8
	Amount   uint64 // smallest unit of Mint, or lamports
}

// ComputeUnitPrice sets the priority fee in micro-lamports per compute unit.
func ComputeUnitPrice(microLamports uint64) solana.Instruction {
	return computebudget.NewSetComputeUnitPriceInstruction(microLamports).Build()
}

// ComputeUnitLimit caps the compute units the transaction may consume.
func ComputeUnitLimit(units uint32) solana.Instruction {
	return computebudget.NewSetComputeUnitLimitInstruction(units).Build()
}

// Memo records text on chain, signed by signer.
//
// The programs/memo builder length-prefixes the message, so the instruction is
// assembled by hand to keep the on-chain text byte-exact.
func Memo(signer solana.PublicKey, text string) solana.Instruction {
	return solana.NewInstruction(
		solana.MemoProgramID,
		solana.AccountMetaSlice{solana.Meta(signer).SIGNER()},
		[]byte(text),
	)
}

// Identity is the attribution memo "geneva:<identity>:<reference>". The memo
// program rejects non-signer accounts, so both keys travel in the text.
func Identity(signer, identity solana.PublicKey, reference string) solana.Instruction {
	return Memo(signer, IdentityText(identity, reference))
}

// IdentityText formats the attribution memo body.
func IdentityText(identity solana.PublicKey, reference string) string {
	return fmt.Sprintf("%s:%s:%s", IdentityPrefix, identity, reference)
}

// PaymentInstructions returns the instructions that move p.Amount from the payer
// to the treasury. For an SPL mint the treasury's associated token account is
// created first when it does not exist yet.
func (c *Client) PaymentInstructions(ctx context.Context, p Payment) ([]solana.Instruction, error) {
	if p.Amount == 0 {
		return nil, fmt.Errorf("payment amount must be positive")
	}
	if p.Payer.IsZero() || p.Treasury.IsZero() {
		return nil, fmt.Errorf("payment requires payer and treasury")
	}

	if p.Mint.IsZero() {
		return []solana.Instruction{
			system.NewTransferInstruction(p.Amount, p.Payer, p.Treasury).Build(),
		}, nil
	}

	source, _, err := solana.FindAssociatedTokenAddress(p.Payer, p.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive payer token account: %w", err)
	}
	destination, _, err := solana.FindAssociatedTokenAddress(p.Treasury, p.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive treasury token account: %w", err)
	}

	exists, err := c.AccountExists(ctx, destination)
	if err != nil {
		return nil, err
	}

	var out []solana.Instruction
	if !exists {
		c.logger.DebugContext(ctx, "treasury token account missing, adding create instruction",
			"treasury", p.Treasury.String(),
			"mint", p.Mint.String(),
			"token_account", destination.String(),
		)
		out = append(out, associatedtokenaccount.NewCreateInstruction(p.Payer, p.Treasury, p.Mint).Build())
	}

	out = append(out, token.NewTransferCheckedInstruction(
		p.Amount,
		p.Decimals,
		source,
		p.Mint,
		destination,
		p.Payer,
		nil,
	).Build())

	return out, nil
}

// isMemo reports whether an instruction targets either memo program.
func isMemo(ix solana.Instruction) bool {
	pid := ix.ProgramID()
	return pid.Equals(MemoProgramIDSPL) || pid.Equals(MemoProgramIDLegacy)
}
