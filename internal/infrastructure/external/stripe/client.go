package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nivo-app/nivo-hub/internal/domain/billing"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
)

const (
	// DefaultBaseURL is the provider API endpoint.
	DefaultBaseURL = "https://api.stripe.com"

	// DefaultTimeout for a single HTTP request.
	DefaultTimeout = 20 * time.Second

	checkoutSessionsPath = "/v1/checkout/sessions"
)

// ClientConfig contains configuration for the billing provider client.
type ClientConfig struct {
	// BaseURL is the provider API base URL.
	BaseURL string

	// APIKey is the secret API key used for Bearer authentication.
	APIKey string

	// WebhookSecret signs incoming webhook payloads.
	WebhookSecret string

	// AllowedRedirectHosts is the allow-list for checkout redirect URLs.
	AllowedRedirectHosts []string

	// Timeout for HTTP requests.
	Timeout time.Duration

	// RateLimiterConfig configures client-side throttling.
	RateLimiterConfig RateLimiterConfig

	// CircuitBreakerConfig configures the circuit breaker.
	CircuitBreakerConfig CircuitBreakerConfig

	// RetryConfig configures retry behavior.
	RetryConfig RetryConfig

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables verbose request logging. Never log full payloads in
	// production, they carry customer identifiers.
	Debug bool
}

// DefaultClientConfig returns a config with sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:              DefaultBaseURL,
		Timeout:              DefaultTimeout,
		AllowedRedirectHosts: []string{"checkout.stripe.com"},
		RateLimiterConfig:    DefaultRateLimiterConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
		RetryConfig:          DefaultRetryConfig(),
		Logger:               slog.Default(),
	}
}

// Client talks to the billing provider's REST API. It implements
// billing.CheckoutService.
type Client struct {
	config         ClientConfig
	httpClient     *http.Client
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	logger         *slog.Logger
}

// NewClient creates a new billing provider client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("stripe: API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.RateLimiterConfig.RequestsPerSecond == 0 {
		config.RateLimiterConfig = DefaultRateLimiterConfig()
	}
	if config.CircuitBreakerConfig.FailureThreshold == 0 {
		config.CircuitBreakerConfig = DefaultCircuitBreakerConfig()
	}
	if config.RetryConfig.MaxRetries == 0 {
		config.RetryConfig = DefaultRetryConfig()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter:    NewRateLimiter(config.RateLimiterConfig),
		circuitBreaker: NewCircuitBreaker(config.CircuitBreakerConfig),
		logger:         config.Logger.With(slog.String("component", "stripe_client")),
	}, nil
}

// checkoutSessionDTO mirrors the provider's checkout session response.
type checkoutSessionDTO struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Customer  string `json:"customer"`
	ExpiresAt int64  `json:"expires_at"`
}

// apiErrorDTO mirrors the provider's error envelope.
type apiErrorDTO struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCheckoutSession creates a hosted checkout session for a subscription
// purchase and returns the redirect URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", req.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.UserID)
	form.Set("metadata[reference]", req.Reference)

	body, err := c.doRequest(ctx, http.MethodPost, checkoutSessionsPath, form)
	if err != nil {
		return nil, shared.WrapError("billing", "CreateCheckoutSession",
			shared.ErrExternalService, "checkout session request failed", err)
	}

	var dto checkoutSessionDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, shared.WrapError("billing", "CreateCheckoutSession",
			shared.ErrExternalService, "malformed checkout session response", err)
	}

	if err := billing.ValidateRedirect(dto.URL, c.config.AllowedRedirectHosts); err != nil {
		// The redirect URL is handed to the user's browser. Anything outside
		// the allow-list is treated as a compromised response.
		c.logger.Warn("checkout redirect rejected",
			slog.String("session_id", dto.ID),
			slog.String("error", err.Error()),
		)
		return nil, shared.WrapError("billing", "CreateCheckoutSession",
			shared.ErrExternalService, "untrusted checkout redirect", err)
	}

	session := &billing.CheckoutSession{
		SessionID:   dto.ID,
		RedirectURL: dto.URL,
		CustomerID:  dto.Customer,
	}
	if dto.ExpiresAt > 0 {
		session.ExpiresAt = time.Unix(dto.ExpiresAt, 0).UTC()
	}

	c.logger.Info("checkout session created",
		slog.String("session_id", dto.ID),
		slog.String("user_id", req.UserID),
	)

	return session, nil
}

// doRequest executes an HTTP request with circuit breaker, rate limiting
// and retries.
func (c *Client) doRequest(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	if err := c.circuitBreaker.Allow(); err != nil {
		c.logger.Warn("request blocked by circuit breaker",
			slog.String("path", path),
			slog.String("state", c.circuitBreaker.State().String()),
		)
		return nil, fmt.Errorf("stripe: %w", err)
	}

	var lastErr error

	for attempt := 0; attempt <= c.config.RetryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.RetryConfig.CalculateBackoff(attempt - 1)
			c.logger.Debug("retrying request",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.rateLimiter.Allow(ctx); err != nil {
			lastErr = err
			var rlErr *RateLimitError
			if errors.As(err, &rlErr) {
				continue
			}
			return nil, err
		}

		body, err := c.doSingleRequest(ctx, method, path, form)
		if err == nil {
			c.circuitBreaker.RecordSuccess()
			return body, nil
		}

		lastErr = err

		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			c.rateLimiter.RecordRateLimitHit(rlErr.RetryAfter)
			continue
		}

		if !isRetryable(err) {
			c.circuitBreaker.RecordFailure()
			return nil, err
		}

		c.circuitBreaker.RecordFailure()
	}

	return nil, fmt.Errorf("stripe: request failed after %d attempts: %w",
		c.config.RetryConfig.MaxRetries+1, lastErr)
}

// doSingleRequest executes a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if c.config.Debug {
		c.logger.Debug("sending request",
			slog.String("method", method),
			slog.String("path", path),
		)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &RateLimitError{
			RetryAfter: retryAfter,
			Message:    "stripe: rate limited by provider",
		}

	case resp.StatusCode >= 400:
		var apiErr apiErrorDTO
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("stripe: API error %d (%s): %s",
				resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("stripe: API error %d", resp.StatusCode)
	}

	return body, nil
}

// parseRetryAfter parses the Retry-After header value in seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 30 * time.Second
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// isRetryable determines if an error warrants a retry.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	retryableHints := []string{
		"API error 500",
		"API error 502",
		"API error 503",
		"API error 504",
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"EOF",
	}
	for _, hint := range retryableHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// Status reports the health of the client's protective machinery.
type Status struct {
	CircuitBreaker CircuitBreakerStatus
	RateLimiter    RateLimiterStatus
}

// Status returns the current client status.
func (c *Client) Status() Status {
	return Status{
		CircuitBreaker: c.circuitBreaker.Status(),
		RateLimiter:    c.rateLimiter.Status(),
	}
}
