package solana

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature is returned when a signature string is not valid base58
	// or does not decode to 64 bytes.
	ErrInvalidSignature = errors.New("invalid transaction signature")

	// ErrUnknownStatus is returned when the RPC node has no record of a signature.
	ErrUnknownStatus = errors.New("transaction status unknown")

	// ErrEmptyTransaction is returned when a transaction is built without instructions.
	ErrEmptyTransaction = errors.New("transaction has no instructions")

	// ErrMemoOnlyTransaction is returned when every instruction targets the memo program.
	ErrMemoOnlyTransaction = errors.New("transaction must contain at least one non-memo instruction")

	// ErrInvalidFeePayer is returned when the fee payer is the zero key.
	ErrInvalidFeePayer = errors.New("invalid fee payer")
)

// TransactionFailedError reports a transaction that landed with an on-chain error.
type TransactionFailedError struct {
	Signature string
	Err       interface{} // on-chain error payload as returned by the RPC node
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

// ConfirmationTimeoutError reports a signature that never reached confirmed commitment.
type ConfirmationTimeoutError struct {
	Signature  string
	Attempts   int
	LastStatus ConfirmationStatus
	LastErr    error // last RPC transport error, if any
}

func (e *ConfirmationTimeoutError) Error() string {
	msg := fmt.Sprintf("transaction %s not confirmed after %d attempts (last status: %s)", e.Signature, e.Attempts, e.LastStatus)
	if e.LastErr != nil {
		msg += fmt.Sprintf(": %v", e.LastErr)
	}
	return msg
}

func (e *ConfirmationTimeoutError) Unwrap() error {
	return e.LastErr
}
