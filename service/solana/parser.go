package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// Token Program instruction types
const (
	TokenProgramTransferInstruction        = uint8(3)
	TokenProgramTransferCheckedInstruction = uint8(12)
)

// Compute Budget instruction types
const (
	ComputeBudgetSetLimitInstruction = uint8(2)
	ComputeBudgetSetPriceInstruction = uint8(3)
)

// Instruction kinds reported in an InstructionSummary.
const (
	KindTransfer         = "transfer"
	KindTransferChecked  = "transfer_checked"
	KindCreateATA        = "create_associated_token_account"
	KindComputeUnitPrice = "set_compute_unit_price"
	KindComputeUnitLimit = "set_compute_unit_limit"
	KindMemo             = "memo"
	KindIdentity         = "identity"
	KindUnknown          = "unknown"
)

// DecodeTransaction parses a base64 wire transaction, signed or not.
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// Summarize describes every instruction of tx in order.
func Summarize(tx *solana.Transaction) (*TransactionSummary, error) {
	keys := tx.Message.AccountKeys
	if len(keys) == 0 {
		return nil, fmt.Errorf("transaction has no account keys")
	}

	summary := &TransactionSummary{
		FeePayer:     keys[0].String(),
		Blockhash:    tx.Message.RecentBlockhash.String(),
		Signatures:   int(tx.Message.Header.NumRequiredSignatures),
		Instructions: make([]InstructionSummary, 0, len(tx.Message.Instructions)),
	}

	for i, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(keys) {
			return nil, fmt.Errorf("instruction %d: program index out of bounds", i)
		}
		accounts := make([]solana.PublicKey, 0, len(ix.Accounts))
		for _, idx := range ix.Accounts {
			if int(idx) >= len(keys) {
				return nil, fmt.Errorf("instruction %d: account index out of bounds", i)
			}
			accounts = append(accounts, keys[idx])
		}
		summary.Instructions = append(summary.Instructions, summarizeInstruction(keys[ix.ProgramIDIndex], accounts, ix.Data))
	}

	return summary, nil
}

func summarizeInstruction(programID solana.PublicKey, accounts []solana.PublicKey, data []byte) InstructionSummary {
	out := InstructionSummary{
		Program:  programName(programID),
		Kind:     KindUnknown,
		Accounts: make([]string, 0, len(accounts)),
	}
	for _, a := range accounts {
		out.Accounts = append(out.Accounts, a.String())
	}

	switch {
	case programID.Equals(solana.ComputeBudget):
		parseComputeBudget(&out, data)

	case programID.Equals(solana.SystemProgramID):
		if amount, err := parseSystemTransfer(data); err == nil {
			out.Kind = KindTransfer
			out.Amount = amount
		}

	case programID.Equals(solana.TokenProgramID):
		parseTokenTransfer(&out, accounts, data)

	case programID.Equals(solana.SPLAssociatedTokenAccountProgramID):
		out.Kind = KindCreateATA
		if len(accounts) >= 4 {
			out.Mint = accounts[3].String()
		}

	case programID.Equals(MemoProgramIDSPL) || programID.Equals(MemoProgramIDLegacy):
		out.Kind = KindMemo
		out.Memo = string(data)
		if strings.HasPrefix(out.Memo, IdentityPrefix+":") {
			out.Kind = KindIdentity
		}
	}

	return out
}

func programName(programID solana.PublicKey) string {
	switch {
	case programID.Equals(solana.ComputeBudget):
		return "compute_budget"
	case programID.Equals(solana.SystemProgramID):
		return "system"
	case programID.Equals(solana.TokenProgramID):
		return "token"
	case programID.Equals(solana.SPLAssociatedTokenAccountProgramID):
		return "associated_token_account"
	case programID.Equals(MemoProgramIDSPL), programID.Equals(MemoProgramIDLegacy):
		return "memo"
	default:
		return programID.String()
	}
}

func parseComputeBudget(out *InstructionSummary, data []byte) {
	if len(data) == 0 {
		return
	}
	switch data[0] {
	case ComputeBudgetSetPriceInstruction:
		if len(data) >= 9 {
			out.Kind = KindComputeUnitPrice
			out.Amount = binary.LittleEndian.Uint64(data[1:9])
		}
	case ComputeBudgetSetLimitInstruction:
		if len(data) >= 5 {
			out.Kind = KindComputeUnitLimit
			out.Amount = uint64(binary.LittleEndian.Uint32(data[1:5]))
		}
	}
}

// parseSystemTransfer extracts the lamports from a System Program Transfer instruction.
func parseSystemTransfer(data []byte) (uint64, error) {
	// System Transfer instruction format:
	// [0..4]  = instruction type (u32, should be 2 for Transfer)
	// [4..12] = lamports (u64)

	if len(data) < 12 {
		return 0, fmt.Errorf("instruction data too short: %d bytes", len(data))
	}

	instructionType := binary.LittleEndian.Uint32(data[0:4])
	if instructionType != SystemProgramTransferInstruction {
		return 0, fmt.Errorf("not a transfer instruction: type %d", instructionType)
	}

	return binary.LittleEndian.Uint64(data[4:12]), nil
}

// parseTokenTransfer fills amount, decimals and mint from an SPL Token transfer instruction.
func parseTokenTransfer(out *InstructionSummary, accounts []solana.PublicKey, data []byte) {
	if len(data) == 0 {
		return
	}

	switch data[0] {
	case TokenProgramTransferInstruction:
		// [0] = type, [1..9] = amount
		if len(data) < 9 {
			return
		}
		out.Kind = KindTransfer
		out.Amount = binary.LittleEndian.Uint64(data[1:9])

	case TokenProgramTransferCheckedInstruction:
		// [0] = type, [1..9] = amount, [9] = decimals
		// accounts: [source, mint, destination, authority, ...]
		if len(data) < 10 {
			return
		}
		out.Kind = KindTransferChecked
		out.Amount = binary.LittleEndian.Uint64(data[1:9])
		decimals := data[9]
		out.Decimals = &decimals
		if len(accounts) >= 2 {
			out.Mint = accounts[1].String()
		}
	}
}
