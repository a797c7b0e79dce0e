// Package imagegen generates images from prompts with the fal.ai queue API.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Models served by the fal queue.
const (
	ModelStandard = "fal-ai/flux/schnell"
	ModelUltra    = "fal-ai/flux-pro/v1.1-ultra"
)

// Queue statuses reported by fal.
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

var errPending = errors.New("generation still running")

// Client submits generation requests to the fal queue and polls until the
// image is ready.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPollBackOff sets the status polling policy.
func WithPollBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = f
	}
}

// NewClient creates a fal queue client.
func NewClient(baseURL, apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		newBackOff: defaultPollBackOff,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultPollBackOff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(500*time.Millisecond),
		backoff.WithMaxInterval(5*time.Second),
		backoff.WithMaxElapsedTime(3*time.Minute),
	)
}

type submitRequest struct {
	Prompt              string `json:"prompt"`
	NumImages           int    `json:"num_images"`
	EnableSafetyChecker bool   `json:"enable_safety_checker"`
}

// QueueResponse is returned when a request is accepted by the queue.
type QueueResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

// StatusResponse reports the progress of a queued request.
type StatusResponse struct {
	Status        string `json:"status"`
	QueuePosition *int   `json:"queue_position,omitempty"`
	Logs          []struct {
		Message string `json:"message"`
	} `json:"logs"`
}

// Image is one generated image.
type Image struct {
	URL         string `json:"url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ContentType string `json:"content_type"`
}

// Result is the output of a completed request.
type Result struct {
	Images []Image `json:"images"`
	Seed   int64   `json:"seed"`
}

// Generate submits prompt to model and returns the URL of the first image.
func (c *Client) Generate(ctx context.Context, prompt, model string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}

	queued, err := c.Submit(ctx, prompt, model)
	if err != nil {
		return "", err
	}

	c.logger.DebugContext(ctx, "generation queued",
		"model", model,
		"request_id", queued.RequestID,
	)

	if err := c.Wait(ctx, queued); err != nil {
		return "", err
	}

	result, err := c.Result(ctx, queued)
	if err != nil {
		return "", err
	}
	if len(result.Images) == 0 || result.Images[0].URL == "" {
		return "", fmt.Errorf("generation %s returned no images", queued.RequestID)
	}
	return result.Images[0].URL, nil
}

// Submit enqueues a generation request.
func (c *Client) Submit(ctx context.Context, prompt, model string) (*QueueResponse, error) {
	body, err := json.Marshal(submitRequest{
		Prompt:              prompt,
		NumImages:           1,
		EnableSafetyChecker: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var queued QueueResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/"+model, bytes.NewReader(body), &queued); err != nil {
		return nil, fmt.Errorf("submit to %s: %w", model, err)
	}
	if queued.RequestID == "" || queued.StatusURL == "" || queued.ResponseURL == "" {
		return nil, fmt.Errorf("submit to %s: incomplete queue response", model)
	}
	return &queued, nil
}

// Status fetches the current status of a queued request, including logs.
func (c *Client) Status(ctx context.Context, queued *QueueResponse) (*StatusResponse, error) {
	var status StatusResponse
	if err := c.do(ctx, http.MethodGet, queued.StatusURL+"?logs=1", nil, &status); err != nil {
		return nil, fmt.Errorf("status of %s: %w", queued.RequestID, err)
	}
	return &status, nil
}

// Result fetches the output of a completed request.
func (c *Client) Result(ctx context.Context, queued *QueueResponse) (*Result, error) {
	var result Result
	if err := c.do(ctx, http.MethodGet, queued.ResponseURL, nil, &result); err != nil {
		return nil, fmt.Errorf("result of %s: %w", queued.RequestID, err)
	}
	return &result, nil
}

// Wait polls the status URL until the request completes. Progress log lines
// are logged at debug level as they arrive.
func (c *Client) Wait(ctx context.Context, queued *QueueResponse) error {
	seen := 0
	operation := func() error {
		status, err := c.Status(ctx, queued)
		if err != nil {
			return err
		}
		for _, line := range status.Logs[min(seen, len(status.Logs)):] {
			c.logger.DebugContext(ctx, "generation progress",
				"request_id", queued.RequestID,
				"message", line.Message,
			)
		}
		seen = max(seen, len(status.Logs))

		switch status.Status {
		case StatusCompleted:
			return nil
		case StatusInQueue, StatusInProgress:
			return errPending
		default:
			return backoff.Permanent(fmt.Errorf("generation %s: unexpected status %q", queued.RequestID, status.Status))
		}
	}

	err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx))
	if errors.Is(err, errPending) {
		return fmt.Errorf("generation %s did not complete in time", queued.RequestID)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, u string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
