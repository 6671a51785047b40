// Package provider defines the external translation provider consumed by
// the reconciliation engine, and an HTTP client implementation.
//
// The provider is a black box: given source-language content and target
// languages it returns either a cost preview (dry run), committed
// per-language translations, or a typed error. Calls are stateless and
// idempotent; the engine never retries a failed file on its own.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TedyHub/langsync/kv"
)

// ---------------------------------------------------------------------------
// Contract
// ---------------------------------------------------------------------------

// Request is one sync call: the flattened content of a single source file
// and the languages that need it.
type Request struct {
	SourceLang  string        `json:"source_lang"`
	TargetLangs []string      `json:"target_langs"`
	Content     []kv.KeyValue `json:"content"`
	DryRun      bool          `json:"dry_run"`
}

// Preview carries the cost estimate for a dry run.
type Preview struct {
	Words   int `json:"words"`
	Credits int `json:"credits"`
}

// LanguageResult carries one language's committed translations.
type LanguageResult struct {
	Content []kv.KeyValue `json:"content"`
	Credits int           `json:"credits"`
}

// Result is either a preview or per-language translations, never both.
type Result struct {
	Preview   *Preview                  `json:"preview,omitempty"`
	Languages map[string]LanguageResult `json:"languages,omitempty"`
}

// Provider is the translation service consumed by the engine.
type Provider interface {
	Sync(ctx context.Context, req Request) (*Result, error)
}

// ---------------------------------------------------------------------------
// Typed errors
// ---------------------------------------------------------------------------

// Error codes surfaced by the provider.
const (
	CodeInsufficientCredits = "insufficient_credits"
	CodeUnauthorized        = "unauthorized"
	CodeUnavailable         = "service_unavailable"
	CodeRateLimited         = "rate_limited"
	CodeTimeout             = "timeout"
)

// Error is a structured provider failure. Billing errors carry the current
// balance and the credits the request would have needed.
type Error struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	CurrentBalance  *int   `json:"current_balance,omitempty"`
	RequiredCredits *int   `json:"required_credits,omitempty"`
}

func (e *Error) Error() string {
	if e.Code == CodeInsufficientCredits && e.CurrentBalance != nil && e.RequiredCredits != nil {
		return fmt.Sprintf("%s: %s (balance %d, required %d)", e.Code, e.Message, *e.CurrentBalance, *e.RequiredCredits)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsError unwraps err into a provider *Error, if it is one.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// HTTP client
// ---------------------------------------------------------------------------

// DefaultBaseURL is the hosted translation endpoint.
const DefaultBaseURL = "https://api.langsync.dev"

// Client talks to the provider over HTTP.
type Client struct {
	// BaseURL is the API base URL (no trailing slash required).
	BaseURL string
	// APIKey authenticates the project.
	APIKey string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// MaxRetries on transport errors, 5xx and 429. Default 3.
	MaxRetries int

	httpClient *http.Client
}

// NewClient builds a client. An empty API key is a configuration error —
// reported before any file is touched.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no provider credential configured (set LANGSYNC_API_KEY or use --api-key)")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 120 * time.Second,
	}, nil
}

func (c *Client) client() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if c.Proxy != "" {
		if parsed, err := url.Parse(c.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}
	c.httpClient = &http.Client{Transport: transport, Timeout: c.Timeout}
	return c.httpClient
}

func (c *Client) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 3
}

// Sync posts one request to the provider. Transport errors and 5xx
// responses are retried with exponential backoff; 429 waits for the
// server-advertised delay. A deadline expiry surfaces as a typed timeout
// error so the engine can take its partial-result path.
func (c *Client) Sync(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling sync request: %w", err)
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/v1/sync"
	maxRetries := c.maxRetries()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, timeoutError(ctx.Err())
		default:
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

		resp, err := c.client().Do(httpReq)
		if err != nil {
			if ctx.Err() != nil || isTimeout(err) {
				return nil, timeoutError(err)
			}
			if attempt < maxRetries {
				if err := backoff(ctx, attempt); err != nil {
					return nil, timeoutError(err)
				}
				continue
			}
			return nil, &Error{Code: CodeUnavailable, Message: err.Error()}
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			var result Result
			if err := json.Unmarshal(respBody, &result); err != nil {
				return nil, fmt.Errorf("parsing sync response: %w", err)
			}
			return &result, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt < maxRetries {
				delay := retryDelay(respBody)
				select {
				case <-ctx.Done():
					return nil, timeoutError(ctx.Err())
				case <-time.After(delay):
				}
				continue
			}
			return nil, decodeError(respBody, resp.StatusCode)

		case resp.StatusCode >= 500:
			if attempt < maxRetries {
				if err := backoff(ctx, attempt); err != nil {
					return nil, timeoutError(err)
				}
				continue
			}
			return nil, decodeError(respBody, resp.StatusCode)

		default:
			return nil, decodeError(respBody, resp.StatusCode)
		}
	}

	return nil, &Error{Code: CodeUnavailable, Message: fmt.Sprintf("exhausted all %d retries", maxRetries)}
}

func backoff(ctx context.Context, attempt int) error {
	wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout() || errors.Is(err, context.DeadlineExceeded)
}

func timeoutError(err error) *Error {
	return &Error{Code: CodeTimeout, Message: fmt.Sprintf("provider call timed out: %v", err)}
}

// decodeError maps a non-200 response body to a typed error. The provider
// responds with {"error": {"code", "message", "current_balance",
// "required_credits"}}; anything else falls back on the HTTP status.
func decodeError(body []byte, status int) error {
	var wrapper struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error != nil && wrapper.Error.Code != "" {
		return wrapper.Error
	}

	code := CodeUnavailable
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = CodeUnauthorized
	case http.StatusPaymentRequired:
		code = CodeInsufficientCredits
	case http.StatusTooManyRequests:
		code = CodeRateLimited
	}
	return &Error{Code: code, Message: fmt.Sprintf("provider returned status %d: %s", status, truncate(string(body), 300))}
}

// retryDelay extracts the advertised retry delay from a 429 body,
// defaulting to 30 seconds.
func retryDelay(body []byte) time.Duration {
	var resp struct {
		Error struct {
			RetryAfter float64 `json:"retry_after"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.RetryAfter > 0 {
		return time.Duration(resp.Error.RetryAfter*1000) * time.Millisecond
	}
	return 30 * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
