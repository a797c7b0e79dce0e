package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/geneva/service/imagegen"
	"go.temporal.io/sdk/temporal"
)

// GenerateImageInput contains the input parameters for generating an image.
type GenerateImageInput struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	Tier   string `json:"tier"`
}

// GenerateImageResult contains the result of a generation workflow.
type GenerateImageResult struct {
	ImageURL  string    `json:"image_url"`
	RequestID string    `json:"request_id"`
	Model     string    `json:"model"`
	Finished  time.Time `json:"finished"`
}

// SubmitGenerationResult identifies a request accepted by the fal queue.
type SubmitGenerationResult struct {
	Queue imagegen.QueueResponse `json:"queue"`
}

// FetchGenerationResult contains the output URL of a completed request.
type FetchGenerationResult struct {
	ImageURL string `json:"image_url"`
}

// FalClient defines the fal queue operations needed by activities.
// This allows for easy mocking in tests.
type FalClient interface {
	Submit(ctx context.Context, prompt, model string) (*imagegen.QueueResponse, error)
	Wait(ctx context.Context, queued *imagegen.QueueResponse) error
	Result(ctx context.Context, queued *imagegen.QueueResponse) (*imagegen.Result, error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	fal    FalClient
	logger *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
func NewActivities(fal FalClient, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		fal:    fal,
		logger: logger,
	}
}

// SubmitGeneration enqueues the prompt with fal.
func (a *Activities) SubmitGeneration(ctx context.Context, input GenerateImageInput) (*SubmitGenerationResult, error) {
	if input.Prompt == "" || input.Model == "" {
		return nil, temporal.NewNonRetryableApplicationError("prompt and model are required", "InvalidInput", nil)
	}

	a.logger.DebugContext(ctx, "submitting generation", "model", input.Model, "tier", input.Tier)

	queued, err := a.fal.Submit(ctx, input.Prompt, input.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to submit generation: %w", err)
	}
	return &SubmitGenerationResult{Queue: *queued}, nil
}

// AwaitGeneration blocks until the queued request completes.
func (a *Activities) AwaitGeneration(ctx context.Context, queued imagegen.QueueResponse) error {
	start := time.Now()
	if err := a.fal.Wait(ctx, &queued); err != nil {
		return fmt.Errorf("failed waiting for generation %s: %w", queued.RequestID, err)
	}

	a.logger.DebugContext(ctx, "generation completed",
		"request_id", queued.RequestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// FetchGeneration returns the first image of a completed request.
func (a *Activities) FetchGeneration(ctx context.Context, queued imagegen.QueueResponse) (*FetchGenerationResult, error) {
	result, err := a.fal.Result(ctx, &queued)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch generation %s: %w", queued.RequestID, err)
	}
	if len(result.Images) == 0 || result.Images[0].URL == "" {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("generation %s returned no images", queued.RequestID), "NoImages", nil)
	}
	return &FetchGenerationResult{ImageURL: result.Images[0].URL}, nil
}
