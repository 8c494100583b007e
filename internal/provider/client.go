package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Options configures the compute provider client.
type Options struct {
	BaseURL        string
	Token          string
	WebhookURL     string
	HTTPClient     *http.Client
	Logger         zerolog.Logger
	RequestTimeout time.Duration
	Retry          RetryPolicy
}

// Client submits work to the external compute provider. The provider only
// acknowledges synchronously with a correlation id; outcomes arrive later
// through signed webhook callbacks.
type Client struct {
	baseURL    string
	token      string
	webhookURL string
	httpClient *http.Client
	logger     zerolog.Logger
	retry      RetryPolicy
}

type createRequest struct {
	Input   map[string]any `json:"input"`
	Webhook string         `json:"webhook,omitempty"`
}

type createResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// NewClient constructs a provider client with bounded timeouts and retry.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("provider base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	retry := opts.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		webhookURL: opts.WebhookURL,
		httpClient: httpClient,
		logger:     opts.Logger,
		retry:      retry,
	}, nil
}

// CreateJob asks the provider to execute one unit of work and returns its
// correlation id. Transport failures and 5xx responses are retried under the
// client's bounded policy; the idempotency key keeps retries from creating
// duplicate work on the provider side. Any exhaustion maps to
// domain.ErrProviderUnavailable so callers can compensate the admission debit.
func (c *Client) CreateJob(ctx context.Context, kind domain.JobKind, params map[string]any, idempotencyKey string) (string, error) {
	body, err := json.Marshal(createRequest{Input: params, Webhook: c.webhookURL})
	if err != nil {
		return "", fmt.Errorf("encode provider request: %w", err)
	}

	endpoint := c.baseURL + "/v1/predictions"
	if kind == domain.JobKindTraining {
		endpoint = c.baseURL + "/v1/trainings"
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if delay := c.retry.Delay(attempt); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", fmt.Errorf("provider call canceled: %w", domain.ErrProviderUnavailable)
			}
		}

		externalID, retryable, err := c.createOnce(ctx, endpoint, body, idempotencyKey)
		if err == nil {
			return externalID, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
		c.logger.Warn().Err(err).Int("attempt", attempt).Str("endpoint", endpoint).Msg("provider call failed, retrying")
	}
	return "", fmt.Errorf("provider unreachable after %d attempts: %w: %w", c.retry.MaxAttempts, lastErr, domain.ErrProviderUnavailable)
}

func (c *Client) createOnce(ctx context.Context, endpoint string, body []byte, idempotencyKey string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("provider returned %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("provider rejected request (%d): %s: %w", resp.StatusCode, strings.TrimSpace(string(payload)), domain.ErrProviderUnavailable)
	}

	var decoded createResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", false, fmt.Errorf("decode provider response: %w", err)
	}
	if decoded.ID == "" {
		return "", false, fmt.Errorf("provider response carries no id: %w", domain.ErrProviderUnavailable)
	}
	return decoded.ID, false, nil
}
