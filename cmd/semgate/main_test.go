package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/c360studio/semstreams/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gateconfig "github.com/c360studio/semgate/config"
	"github.com/c360studio/semgate/processor/doorkeeper"
	"github.com/c360studio/semgate/resource"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	err := runValidate(context.Background(), "testdata/semgate.yaml",
		validateOptions{graphPath: "testdata/dataset.json", path: "/"}, &out, quietLogger())
	require.NoError(t, err)

	var resp doorkeeper.EditResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.True(t, resp.Valid)
	require.NotNil(t, resp.Graph)
	title, ok := resp.Graph.First("http://purl.org/dc/terms/title")
	require.True(t, ok)
	assert.Equal(t, "en", title.Lang, "language tag canonicalized")
}

func TestRunValidateRejected(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	err := runValidate(context.Background(), "testdata/semgate.yaml",
		validateOptions{graphPath: "testdata/untitled.json"}, &out, quietLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, errRejected)
	assert.Contains(t, err.Error(), "resource 2")

	var resp doorkeeper.EditResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Failures)
}

func TestRunValidateErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name string
		gate string
		file string
		want string
	}{
		{"missing gate config", "testdata/missing.yaml", "testdata/dataset.json", "load gate config"},
		{"missing graph", "testdata/semgate.yaml", "testdata/missing.json", "read graph"},
		{"graph is not json", "testdata/semgate.yaml", "testdata/ontology.yaml", "parse graph"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runValidate(context.Background(), tt.gate,
				validateOptions{graphPath: tt.file}, io.Discard, quietLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunCommitRequiresDatabase(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(gateconfig.EnvDSN, "")

	err := runCommit(context.Background(), "testdata/semgate.yaml",
		commitOptions{method: "commit", transactionID: 1}, io.Discard, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), gateconfig.EnvDSN)
}

func TestBuildDefaultConfig(t *testing.T) {
	gateCfg := gateconfig.DefaultConfig()
	gateCfg.NATS.URL = "nats://a:4222,nats://b:4222"

	cfg, err := buildDefaultConfig("testdata/semgate.yaml", gateCfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)

	comp, ok := cfg.Components["doorkeeper"]
	require.True(t, ok)
	assert.Equal(t, types.ComponentTypeProcessor, comp.Type)
	assert.True(t, comp.Enabled)

	var dk doorkeeper.Config
	require.NoError(t, json.Unmarshal(comp.Config, &dk))
	assert.Equal(t, "testdata/semgate.yaml", dk.GateConfig)

	stream, ok := cfg.Streams["GRAPH"]
	require.True(t, ok)
	assert.Equal(t, []string{"graph.ingest.entity"}, stream.Subjects)

	ensureServiceManagerConfig(cfg)
	assert.Contains(t, cfg.Services, "service-manager")
}

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"version", "validate", "commit"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestGraphFixtureDecodes(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeJSON(&out, resource.New("urn:x")))
	assert.Contains(t, out.String(), `"node": "urn:x"`)
}
