// Package remote implements ecfp.Engine over the JSON API of a
// cheminformatics service.  Requests are sent once; a failed call is reported
// to the caller, which aborts the run.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ecfplookup/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ecfplookup/pkg/errors"
)

// Version is reported in the User-Agent header.
const Version = "0.1.0"

const (
	// DefaultTimeout bounds a single engine request.
	DefaultTimeout = 60 * time.Second

	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 4096
)

// Client is a thin JSON-over-HTTP client for the engine service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	userAgent  string
	timeout    time.Duration
	logger     logging.Logger
}

// APIError is a non-2xx response from the engine service.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, e.Message, e.RequestID)
}

// IsUnprocessable reports whether the engine rejected the molecule itself,
// as opposed to failing on its own.
func (e *APIError) IsUnprocessable() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.Configuration("engine URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "invalid engine URL").WithDetail(baseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.Configuration("engine URL scheme must be http or https").WithDetail(baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  fmt.Sprintf("ecfplookup/%s", Version),
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// The timeout goes on a copy so a client passed by WithHTTPClient is not
	// modified, whatever the option order.
	if c.timeout > 0 && c.httpClient.Timeout != c.timeout {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string { return c.baseURL }

// do performs one request.  Transport failures and undecodable responses are
// returned as ErrCodeExternalService errors; non-2xx statuses as *APIError
// wrapped the same way.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal request body")
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create request")
	}

	requestID := uuid.New().String()
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Error("engine request failed",
			logging.String("method", method),
			logging.String("path", path),
			logging.String("request_id", requestID),
			logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeExternalService, "engine request failed").
			WithDetail(fmt.Sprintf("%s %s", method, path))
	}
	defer resp.Body.Close()

	c.logger.Debug("engine request",
		logging.String("method", method),
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", elapsed),
		logging.String("request_id", requestID))

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID}
		if len(respBody) > 0 {
			var errResp struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			if json.Unmarshal(respBody, &errResp) == nil && (errResp.Code != "" || errResp.Message != "") {
				apiErr.Code = errResp.Code
				apiErr.Message = errResp.Message
			} else {
				apiErr.Message = strings.TrimSpace(string(respBody))
			}
		}
		return errors.Wrap(apiErr, errors.ErrCodeExternalService, "engine returned an error").
			WithDetail(fmt.Sprintf("%s %s", method, path))
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to decode engine response").
			WithDetail(fmt.Sprintf("%s %s", method, path))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}
