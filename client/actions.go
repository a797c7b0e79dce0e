package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/geneva/service/actions"
)

// Generation is one recorded step returned by the generations endpoint.
type Generation struct {
	ID         string    `json:"id"`
	Step       string    `json:"step"`
	Account    string    `json:"account"`
	Signature  string    `json:"signature,omitempty"`
	Prompt     string    `json:"prompt,omitempty"`
	Tier       string    `json:"tier,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	AssetID    string    `json:"asset_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ActionError is a non-2xx response from an action endpoint.
type ActionError struct {
	StatusCode int
	Message    string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for a geneva action server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new action client. Relative hrefs, as returned in next
// links, are resolved against baseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// StepURL returns the absolute URL of a step on the server.
func (c *Client) StepURL(step actions.StepName) string {
	return c.baseURL + actions.BasePath + "/" + string(step)
}

// Describe fetches the descriptor at href.
func (c *Client) Describe(ctx context.Context, href string) (*actions.Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.resolve(href), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var d actions.Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &d, nil
}

// Post submits a step request to href. Follow a chain by posting to the
// returned response's next link with the signature of its transaction.
func (c *Client) Post(ctx context.Context, href string, stepReq actions.StepRequest) (*actions.StepResponse, error) {
	body, err := json.Marshal(stepReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	target := c.resolve(href)
	req, err := http.NewRequestWithContext(ctx, "POST", target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var stepResp actions.StepResponse
	if err := json.NewDecoder(resp.Body).Decode(&stepResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("step posted", "href", target, "type", stepResp.Type)
	return &stepResp, nil
}

// Generations lists the recorded steps of account, newest first.
func (c *Client) Generations(ctx context.Context, account string, limit int) ([]Generation, error) {
	q := url.Values{}
	q.Set("account", account)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/generations?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Generations []Generation `json:"generations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Generations, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// resolve turns a relative href into an absolute URL on the server.
func (c *Client) resolve(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return c.baseURL + href
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp actions.ErrorResponse

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
		return &ActionError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	return &ActionError{StatusCode: resp.StatusCode, Message: errResp.Message}
}
