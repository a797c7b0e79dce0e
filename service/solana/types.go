package solana

// ConfirmationStatus is the commitment level observed for a transaction signature.
// Only StatusConfirmed and StatusFinalized allow a chain to advance.
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "pending"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusFinalized ConfirmationStatus = "finalized"
	StatusFailed    ConfirmationStatus = "failed"
	StatusUnknown   ConfirmationStatus = "unknown"
)

// Advances reports whether the status is durable enough to move to the next step.
func (s ConfirmationStatus) Advances() bool {
	return s == StatusConfirmed || s == StatusFinalized
}

// TransactionSummary describes an unsigned transaction in human terms.
// This is our domain view of a built transaction, used by tests and the CLI.
type TransactionSummary struct {
	FeePayer     string               `json:"fee_payer"`
	Blockhash    string               `json:"blockhash"`
	Signatures   int                  `json:"required_signatures"`
	Instructions []InstructionSummary `json:"instructions"`
}

// InstructionSummary is one decoded instruction of a TransactionSummary.
type InstructionSummary struct {
	Program  string   `json:"program"`
	Kind     string   `json:"kind"`
	Amount   uint64   `json:"amount,omitempty"`
	Decimals *uint8   `json:"decimals,omitempty"`
	Mint     string   `json:"mint,omitempty"`
	Memo     string   `json:"memo,omitempty"`
	Accounts []string `json:"accounts,omitempty"`
}
