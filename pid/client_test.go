package pid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/semgate/rules"
	"github.com/c360studio/semstreams/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestHTTPClientCreate(t *testing.T) {
	var gotPath, gotIfNoneMatch, gotUser string
	var gotBody []handleValue
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotIfNoneMatch = r.Header.Get("If-None-Match")
		gotUser, _, _ = r.BasicAuth()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c, err := NewHTTPClient(ClientConfig{
		BaseURL:     server.URL + "/api/handles/",
		Prefix:      "21.11101",
		Username:    "svc",
		Password:    "secret",
		ResolverURL: "https://hdl.handle.net/",
	}, WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	pid, err := c.Create(context.Background(), "https://data.example.org/ds/1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(pid, "https://hdl.handle.net/21.11101/"))
	assert.True(t, strings.HasPrefix(gotPath, "/api/handles/21.11101/"))
	assert.Equal(t, "*", gotIfNoneMatch)
	assert.Equal(t, "svc", gotUser)
	require.Len(t, gotBody, 1)
	assert.Equal(t, "URL", gotBody[0].Type)
	assert.Equal(t, "https://data.example.org/ds/1", gotBody[0].ParsedData)
}

func TestHTTPClientUpdate(t *testing.T) {
	var gotPath, gotIfMatch string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotIfMatch = r.Header.Get("If-Match")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c, err := NewHTTPClient(ClientConfig{BaseURL: server.URL, Prefix: "21.11101", ResolverURL: "https://hdl.handle.net/"},
		WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	status, err := c.Update(context.Background(), "https://hdl.handle.net/21.11101/ABC", "https://data.example.org/ds/2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "/21.11101/ABC", gotPath)
	assert.Equal(t, "*", gotIfMatch)

	_, err = c.Update(context.Background(), "https://hdl.handle.net/99.999/ABC", "x")
	assert.True(t, rules.IsFatal(err))
}

func TestHTTPClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c, err := NewHTTPClient(ClientConfig{BaseURL: server.URL, Prefix: "21.11101"}, WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	_, err = c.Create(context.Background(), "https://data.example.org/ds/1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"denied"}`))
	}))
	defer server.Close()

	c, err := NewHTTPClient(ClientConfig{BaseURL: server.URL, Prefix: "21.11101"}, WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	_, err = c.Create(context.Background(), "https://data.example.org/ds/1")
	require.Error(t, err)
	assert.True(t, rules.IsFatal(err))
	assert.Contains(t, err.Error(), "status 403")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr bool
	}{
		{"valid", ClientConfig{BaseURL: "http://x", Prefix: "21.1"}, false},
		{"missing base", ClientConfig{Prefix: "21.1"}, true},
		{"missing prefix", ClientConfig{BaseURL: "http://x"}, true},
		{"bad timeout", ClientConfig{BaseURL: "http://x", Prefix: "21.1", Timeout: "soon"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
