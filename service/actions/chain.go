package actions

import (
	"context"
	"fmt"

	"github.com/brojonat/geneva/service/solana"
)

// StepName addresses one step of the chain; it is the last path segment.
type StepName string

const (
	StepGenerate StepName = "generate"
	StepRender   StepName = "render"
	StepMint     StepName = "mint"
	StepComplete StepName = "complete"
)

// ChainState is the position of a step in the chain.
type ChainState string

const (
	StateEntry              ChainState = "entry"
	StateAwaitingPayment    ChainState = "awaiting_payment"
	StateAwaitingGeneration ChainState = "awaiting_generation"
	StateTerminal           ChainState = "terminal"
)

// Step is one row of the transition table.
type Step struct {
	Name  StepName
	State ChainState

	// RequiresSignature steps confirm the previous step's transaction first.
	RequiresSignature bool

	// Carried lists the state fields the step cannot run without.
	Carried []Field

	// Next is the successor of a continuation step, empty for terminal steps.
	Next StepName

	describe func(origin string) *Descriptor
	execute  func(ctx context.Context, in *stepInput) (*StepResponse, error)
}

// Describe returns the descriptor served by GET.
func (s Step) Describe(origin string) *Descriptor {
	return s.describe(origin)
}

// Execute runs the step's side effect and builds its response.
func (s Step) Execute(ctx context.Context, in *stepInput) (*StepResponse, error) {
	return s.execute(ctx, in)
}

// transitions builds the step table for the configured mode. Payment-gated
// chains insert render between generate and the final step; free chains
// generate on entry.
func (o *Orchestrator) transitions() map[StepName]Step {
	final := StepComplete
	if o.cfg.MintEnabled {
		final = StepMint
	}

	generate := Step{
		Name:     StepGenerate,
		State:    StateEntry,
		Carried:  []Field{FieldPrompt},
		describe: o.describeGenerate,
	}
	if o.cfg.PaymentRequired {
		generate.Next = StepRender
		generate.execute = o.executePayment
	} else {
		generate.Next = final
		generate.execute = o.executeGeneration(StepGenerate, final)
	}

	return map[StepName]Step{
		StepGenerate: generate,
		StepRender: {
			Name:              StepRender,
			State:             StateAwaitingPayment,
			RequiresSignature: true,
			Carried:           []Field{FieldPrompt},
			Next:              final,
			describe:          o.describeCallback(StepRender),
			execute:           o.executeGeneration(StepRender, final),
		},
		StepMint: {
			Name:              StepMint,
			State:             StateAwaitingGeneration,
			RequiresSignature: true,
			Carried:           []Field{FieldImageURL},
			describe:          o.describeCallback(StepMint),
			execute:           o.executeMint,
		},
		StepComplete: {
			Name:              StepComplete,
			State:             StateAwaitingGeneration,
			RequiresSignature: true,
			Carried:           []Field{FieldImageURL},
			describe:          o.describeCallback(StepComplete),
			execute:           o.executeComplete,
		},
	}
}

// executePayment charges the tier price and records the prompt on chain.
func (o *Orchestrator) executePayment(ctx context.Context, in *stepInput) (*StepResponse, error) {
	payment, err := o.payment(ctx, in)
	if err != nil {
		return nil, err
	}

	ixs := append(payment, solana.Memo(in.account, memoText(in.state.Prompt)))
	carried := State{Prompt: in.state.Prompt, Tier: in.state.Tier}
	message := fmt.Sprintf("Pay %s to generate your %s image", o.PriceLabel(in.state.Tier), in.state.Tier)

	return o.continuation(ctx, StepGenerate, in, StepRender, carried, message, ixs...)
}

// executeGeneration generates the image and hands the URL to next.
func (o *Orchestrator) executeGeneration(step, next StepName) func(context.Context, *stepInput) (*StepResponse, error) {
	return func(ctx context.Context, in *stepInput) (*StepResponse, error) {
		imageURL, err := o.generate(ctx, in)
		if err != nil {
			return nil, err
		}

		carried := State{Prompt: in.state.Prompt, Tier: in.state.Tier, ImageURL: imageURL}
		message := "Your image is ready. Sign to save it."
		if next == StepMint {
			message = "Your image is ready. Sign to mint it as a compressed NFT."
		}

		return o.continuation(ctx, step, in, next, carried, message,
			solana.Memo(in.account, memoText(in.state.Prompt)),
		)
	}
}

// executeMint mints the carried image to the account and ends the chain.
func (o *Orchestrator) executeMint(ctx context.Context, in *stepInput) (*StepResponse, error) {
	result, err := o.mint(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := o.track(ctx, StepMint, in, in.state, "", result.AssetID); err != nil {
		return nil, err
	}

	uri := result.ContentURI
	if uri == "" {
		uri = in.state.ImageURL
	}
	description := fmt.Sprintf("Minted %s to %s. Metadata: %s.", result.AssetID, in.account, uri)
	if result.Signature != "" {
		description += " Mint signature: " + result.Signature + "."
	}
	description += " Confirmed: " + in.signature + "."

	return &StepResponse{
		Type:        TypeCompleted,
		Title:       "Minted",
		Icon:        in.state.ImageURL,
		Label:       "Minted",
		Description: description,
		Signature:   in.signature,
	}, nil
}

// executeComplete ends a chain that does not mint.
func (o *Orchestrator) executeComplete(ctx context.Context, in *stepInput) (*StepResponse, error) {
	if err := o.track(ctx, StepComplete, in, in.state, "", ""); err != nil {
		return nil, err
	}

	return &StepResponse{
		Type:        TypeCompleted,
		Title:       "Your image is ready",
		Icon:        in.state.ImageURL,
		Label:       "Done",
		Description: fmt.Sprintf("Image: %s. Confirmed: %s.", in.state.ImageURL, in.signature),
		Signature:   in.signature,
	}, nil
}
