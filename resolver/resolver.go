// Package resolver verifies external entity URIs and caches the outcome per
// range class.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360studio/semgate/identifier"
	"github.com/c360studio/semgate/rules"
)

// ErrUnresolvable marks a URI that does not identify an existing entity.
// It is a validation failure, not an operational fault.
var ErrUnresolvable = errors.New("unresolvable uri")

// Resolver verifies a URI and returns its canonical form.
type Resolver interface {
	Resolve(ctx context.Context, uri string) (string, error)
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context, uri string) (string, error)

// Resolve implements Resolver.
func (f Func) Resolve(ctx context.Context, uri string) (string, error) { return f(ctx, uri) }

// HTTPResolver normalizes a URI and dereferences it over HTTP.
type HTTPResolver struct {
	httpClient *http.Client
	normalizer identifier.Normalizer
	logger     *slog.Logger
	// canonicalRedirects rewrites to the final URL after redirects.
	canonicalRedirects bool
}

// Option configures an HTTPResolver.
type Option func(*HTTPResolver)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *HTTPResolver) {
		r.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *HTTPResolver) {
		r.logger = logger
	}
}

// WithCanonicalRedirects makes Resolve return the URL reached after
// following redirects.
func WithCanonicalRedirects(enabled bool) Option {
	return func(r *HTTPResolver) {
		r.canonicalRedirects = enabled
	}
}

// NewHTTPResolver creates a resolver using normalizer for canonicalization.
func NewHTTPResolver(normalizer identifier.Normalizer, opts ...Option) *HTTPResolver {
	r := &HTTPResolver{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		normalizer: normalizer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve implements Resolver. Network errors and 5xx/429 responses are
// transient; 404/410 and malformed URIs are ErrUnresolvable.
func (r *HTTPResolver) Resolve(ctx context.Context, uri string) (string, error) {
	canonical := uri
	if r.normalizer != nil {
		n, err := r.normalizer.Normalize(uri, true)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
		}
		canonical = n
	}

	final, status, err := r.fetch(ctx, http.MethodHead, canonical)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		final, status, err = r.fetch(ctx, http.MethodGet, canonical)
	}
	if err != nil {
		return "", err
	}

	switch {
	case status >= 200 && status < 400:
		if r.canonicalRedirects && final != "" {
			return final, nil
		}
		return canonical, nil
	case status == http.StatusTooManyRequests || status >= 500:
		return "", rules.NewTransientError(fmt.Errorf("resolve %s: status %d", canonical, status))
	default:
		r.logger.Debug("URI did not resolve", "uri", canonical, "status", status)
		return "", fmt.Errorf("%w: %s (status %d)", ErrUnresolvable, canonical, status)
	}
}

func (r *HTTPResolver) fetch(ctx context.Context, method, uri string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	req.Header.Set("Accept", "application/ld+json, text/turtle;q=0.9, */*;q=0.1")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", 0, rules.NewTransientError(fmt.Errorf("resolve %s: %w", uri, err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	final := ""
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return final, resp.StatusCode, nil
}

var _ Resolver = (*HTTPResolver)(nil)
