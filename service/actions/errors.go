package actions

import (
	"errors"
	"net/http"

	"github.com/brojonat/geneva/service/solana"
)

var (
	// ErrInvalidAccount is returned when the request account is not a public key.
	ErrInvalidAccount = errors.New(`invalid "account" provided`)

	// ErrInvalidSignature is returned when a required prior signature is missing or malformed.
	ErrInvalidSignature = solana.ErrInvalidSignature

	// ErrUnknownStatus is returned when the node has no record of the prior signature.
	ErrUnknownStatus = solana.ErrUnknownStatus

	// ErrTransactionNotConfirmed wraps every confirmation failure.
	ErrTransactionNotConfirmed = errors.New("previous transaction not confirmed")

	// ErrDomainActionFailed wraps image generation and mint failures.
	ErrDomainActionFailed = errors.New("action failed")

	// ErrMissingRequiredInput is returned when a step lacks an input it needs.
	ErrMissingRequiredInput = errors.New("missing required input")

	// ErrInvalidCarriedState is returned when carried query state fails validation.
	ErrInvalidCarriedState = errors.New("invalid carried state")

	// ErrUnknownStep is returned for a step name outside the chain.
	ErrUnknownStep = errors.New("unknown step")

	// ErrMemoOnlyTransaction is returned when a step would emit only memo instructions.
	ErrMemoOnlyTransaction = solana.ErrMemoOnlyTransaction

	// ErrAnalyticsFailed is returned when strict analytics is enabled and attribution fails.
	ErrAnalyticsFailed = errors.New("analytics failed")
)

// TransactionFailedError reports a prior transaction that landed with an error.
type TransactionFailedError = solana.TransactionFailedError

// ConfirmationTimeoutError reports a prior transaction that never confirmed.
type ConfirmationTimeoutError = solana.ConfirmationTimeoutError

// HTTPStatus maps a step error onto the status written at the HTTP boundary.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrUnknownStep) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}
