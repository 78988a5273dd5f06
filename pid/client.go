// Package pid registers persistent identifiers with an external handle
// service and maintains the PID properties of resource graphs.
package pid

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

	"github.com/c360studio/semgate/rules"
	"github.com/c360studio/semstreams/pkg/retry"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// maxResponseSize bounds how much of a registry response is read.
const maxResponseSize = 1 << 20

// Service is the external identifier-registration service.
type Service interface {
	// Create registers a new PID pointing at targetID and returns it.
	Create(ctx context.Context, targetID string) (string, error)
	// Update repoints an existing PID and returns the HTTP status code.
	Update(ctx context.Context, pid, targetID string) (int, error)
}

// ClientConfig configures the handle registry client.
type ClientConfig struct {
	// BaseURL is the handles endpoint, e.g. https://pid.example.org/api/handles.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Prefix is the handle prefix PIDs are minted under.
	Prefix   string `yaml:"prefix" json:"prefix"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	// ResolverURL is prepended to prefix/suffix to form the PID literal.
	ResolverURL string `yaml:"resolver_url" json:"resolver_url"`
	Timeout     string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Validate checks the client configuration.
func (c ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("pid base_url is required")
	}
	if c.Prefix == "" {
		return fmt.Errorf("pid prefix is required")
	}
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return fmt.Errorf("invalid pid timeout: %w", err)
		}
	}
	return nil
}

type handleValue struct {
	Type       string `json:"type"`
	ParsedData string `json:"parsed_data"`
}

// HTTPClient talks to an EPIC-style handle API. Calls pass through a
// circuit breaker and are retried on transient failures.
type HTTPClient struct {
	cfg         ClientConfig
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	retryConfig retry.Config
	logger      *slog.Logger
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *HTTPClient) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg retry.Config) ClientOption {
	return func(client *HTTPClient) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *HTTPClient) {
		client.logger = logger
	}
}

// NewHTTPClient creates a registry client.
func NewHTTPClient(cfg ClientConfig, opts ...ClientOption) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		timeout, _ = time.ParseDuration(cfg.Timeout)
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	c := &HTTPClient{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: timeout},
		retryConfig: retry.DefaultConfig(),
		logger:      slog.Default(),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pid-registry",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("PID registry circuit breaker changed state",
				"name", name, "from", from.String(), "to", to.String())
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Create implements Service. The handle suffix is generated client-side.
func (c *HTTPClient) Create(ctx context.Context, targetID string) (string, error) {
	suffix := strings.ToUpper(uuid.New().String())
	handle := c.cfg.Prefix + "/" + suffix
	status, err := c.put(ctx, handle, targetID, false)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", rules.NewFatalError(fmt.Errorf("create PID %s: unexpected status %d", handle, status))
	}
	c.logger.Info("Registered PID", "pid", handle, "target", targetID)
	return c.cfg.ResolverURL + handle, nil
}

// Update implements Service.
func (c *HTTPClient) Update(ctx context.Context, pid, targetID string) (int, error) {
	handle, err := c.handle(pid)
	if err != nil {
		return 0, err
	}
	status, err := c.put(ctx, handle, targetID, true)
	if err != nil {
		return status, err
	}
	c.logger.Debug("Updated PID", "pid", handle, "target", targetID, "status", status)
	return status, nil
}

// handle strips the resolver URL from a PID literal.
func (c *HTTPClient) handle(pid string) (string, error) {
	h := strings.TrimPrefix(pid, c.cfg.ResolverURL)
	if idx := strings.Index(h, c.cfg.Prefix+"/"); idx >= 0 {
		h = h[idx:]
	}
	if !strings.HasPrefix(h, c.cfg.Prefix+"/") {
		return "", rules.NewFatalError(fmt.Errorf("PID %s is not under prefix %s", pid, c.cfg.Prefix))
	}
	return h, nil
}

func (c *HTTPClient) put(ctx context.Context, handle, targetID string, overwrite bool) (int, error) {
	body, err := json.Marshal([]handleValue{{Type: "URL", ParsedData: targetID}})
	if err != nil {
		return 0, rules.NewFatalError(fmt.Errorf("marshal handle record: %w", err))
	}

	var status int
	err = retry.Do(ctx, c.retryConfig, func() error {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.do(ctx, handle, body, overwrite)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return rules.NewTransientError(fmt.Errorf("PID registry unavailable: %w", err))
			}
			if !rules.IsTransient(err) {
				return retry.NonRetryable(err)
			}
			return err
		}
		status = result.(int)
		return nil
	})
	if err != nil {
		return status, err
	}
	return status, nil
}

func (c *HTTPClient) do(ctx context.Context, handle string, body []byte, overwrite bool) (int, error) {
	url := c.cfg.BaseURL + "/" + handle
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return 0, rules.NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if overwrite {
		req.Header.Set("If-Match", "*")
	} else {
		req.Header.Set("If-None-Match", "*")
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, rules.NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, rules.NewTransientError(fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, classifyHTTPError(resp.StatusCode, respBody)
}

// classifyHTTPError determines if a registry error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("PID registry error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return rules.NewTransientError(err)
	case statusCode >= 500:
		return rules.NewTransientError(err)
	default:
		return rules.NewFatalError(err)
	}
}

var _ Service = (*HTTPClient)(nil)
