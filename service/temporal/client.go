package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/geneva/service/imagegen"
	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
)

// DefaultGenerationTimeout bounds a generation workflow end to end.
const DefaultGenerationTimeout = 5 * time.Minute

// Client starts generation workflows and waits for their result. It satisfies
// the image generator the action chain calls.
type Client struct {
	client    client.Client
	taskQueue string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return NewClientWithSDK(c, taskQueue, logger), nil
}

// NewClientWithSDK wraps an existing SDK client.
func NewClientWithSDK(c client.Client, taskQueue string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:    c,
		taskQueue: taskQueue,
		timeout:   DefaultGenerationTimeout,
		logger:    logger,
	}
}

// Generate runs GenerateImageWorkflow for prompt on model and blocks until the
// image URL is available.
func (c *Client) Generate(ctx context.Context, prompt, model string) (string, error) {
	id := "generate-image-" + uuid.NewString()

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       id,
		TaskQueue:                c.taskQueue,
		WorkflowExecutionTimeout: c.timeout,
		Memo: map[string]interface{}{
			"model":      model,
			"created_by": "geneva",
		},
	}, GenerateImageWorkflow, GenerateImageInput{
		Prompt: prompt,
		Model:  model,
		Tier:   tierOf(model),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start generation workflow: %w", err)
	}

	c.logger.DebugContext(ctx, "generation workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"model", model,
	)

	var result GenerateImageResult
	if err := run.Get(ctx, &result); err != nil {
		return "", fmt.Errorf("generation workflow %s failed: %w", id, err)
	}
	if result.ImageURL == "" {
		return "", fmt.Errorf("generation workflow %s returned no image", id)
	}
	return result.ImageURL, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

func tierOf(model string) string {
	if model == imagegen.ModelUltra {
		return "ultra"
	}
	return "standard"
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
