package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// GenerateImageWorkflow runs one image generation durably:
// 1. Submit the prompt to the fal queue (SubmitGeneration)
// 2. Wait for the queued request to finish (AwaitGeneration)
// 3. Fetch the image URL (FetchGeneration)
//
// Submission is not retried once it succeeds, so a worker restart resumes
// waiting on the same request instead of paying for a second generation.
func GenerateImageWorkflow(ctx workflow.Context, input GenerateImageInput) (*GenerateImageResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("GenerateImageWorkflow started", "model", input.Model, "tier", input.Tier)

	submitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var submitted *SubmitGenerationResult
	if err := workflow.ExecuteActivity(submitCtx, a.SubmitGeneration, input).Get(ctx, &submitted); err != nil {
		return nil, fmt.Errorf("failed to submit generation: %w", err)
	}

	waitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	if err := workflow.ExecuteActivity(waitCtx, a.AwaitGeneration, submitted.Queue).Get(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed waiting for generation: %w", err)
	}

	var fetched *FetchGenerationResult
	if err := workflow.ExecuteActivity(submitCtx, a.FetchGeneration, submitted.Queue).Get(ctx, &fetched); err != nil {
		return nil, fmt.Errorf("failed to fetch generation: %w", err)
	}

	logger.Info("GenerateImageWorkflow completed", "request_id", submitted.Queue.RequestID)

	return &GenerateImageResult{
		ImageURL:  fetched.ImageURL,
		RequestID: submitted.Queue.RequestID,
		Model:     input.Model,
		Finished:  workflow.Now(ctx),
	}, nil
}
