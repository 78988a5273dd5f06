package doorkeeper

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestComponent(t *testing.T, cfg Config) *Component {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SEMGATE_DATABASE_DSN", "")

	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	comp, err := NewComponent(raw, component.Dependencies{})
	require.NoError(t, err)
	return comp.(*Component)
}

func TestNewComponent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GateConfig = "testdata/semgate.yaml"
	c := newTestComponent(t, cfg)

	assert.Equal(t, SubjectResourceEdit, c.editSubject)
	assert.Equal(t, SubjectTransactionCommit, c.commitSubject)
	assert.Equal(t, "https://data.example.org/", c.gateConfig.Namespaces.Identifiers)
	assert.Equal(t, "2s", c.gateConfig.Aggregate.LockTimeout)
	assert.Nil(t, c.metrics)

	require.NoError(t, c.Initialize())
	assert.Nil(t, c.db)
}

func TestNewComponentErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bad json", `{`, "unmarshal config"},
		{"negative timeout", `{"timeout_secs":-1,"gate_config":"testdata/semgate.yaml"}`, "timeout_secs must be non-negative"},
		{"single input", `{"ports":{"inputs":[{"name":"a","subject":"a"}]},"gate_config":"testdata/semgate.yaml"}`, "edit and commit inputs"},
		{"missing gate config", `{"gate_config":"testdata/missing.yaml"}`, "load gate config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			_, err := NewComponent(json.RawMessage(tt.raw), component.Dependencies{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestComponentLifecycleWithoutNATS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GateConfig = "testdata/semgate.yaml"
	c := newTestComponent(t, cfg)

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NATS client required")

	health := c.Health()
	assert.False(t, health.Healthy)
	assert.Equal(t, "stopped", health.Status)
	assert.NoError(t, c.Stop(0))
}

func TestStopReleasesSubscriptionsAndDatabase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GateConfig = "testdata/semgate.yaml"
	c := newTestComponent(t, cfg)
	c.gateConfig.Database.DSN = "postgres://semgate@127.0.0.1:1/semgate?sslmode=disable"

	require.NoError(t, c.openDB())
	require.NotNil(t, c.db)
	first := c.db
	require.NoError(t, c.openDB())
	assert.Same(t, first, c.db, "open database is reused")

	cancelled := false
	c.running = true
	c.cancel = func() { cancelled = true }
	c.subscriptions = []*natsclient.Subscription{{}, nil}

	require.NoError(t, c.Stop(0))
	assert.True(t, cancelled)
	assert.Nil(t, c.subscriptions)
	assert.Nil(t, c.cancel)
	assert.Nil(t, c.db)
	assert.False(t, c.running)

	// A restart reopens the database closed by Stop.
	require.NoError(t, c.openDB())
	assert.NotNil(t, c.db)
	require.NoError(t, c.db.Close())
}

func TestOpenDBWithoutDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GateConfig = "testdata/semgate.yaml"
	c := newTestComponent(t, cfg)

	require.NoError(t, c.openDB())
	assert.Nil(t, c.db)
}

func TestComponentPortsAndMeta(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GateConfig = "testdata/semgate.yaml"
	c := newTestComponent(t, cfg)

	meta := c.Meta()
	assert.Equal(t, "doorkeeper", meta.Name)
	assert.Equal(t, "processor", meta.Type)

	inputs := c.InputPorts()
	require.Len(t, inputs, 2)
	assert.Equal(t, component.DirectionInput, inputs[0].Direction)
	assert.Equal(t, "resource_edits", inputs[0].Name)
	natsPort, ok := inputs[1].Config.(component.NATSPort)
	require.True(t, ok)
	assert.Equal(t, SubjectTransactionCommit, natsPort.Subject)

	outputs := c.OutputPorts()
	require.Len(t, outputs, 1)
	assert.Equal(t, component.DirectionOutput, outputs[0].Direction)

	assert.Empty(t, ports(nil, component.DirectionInput))
	assert.NotNil(t, c.ConfigSchema().Properties)
}

func TestTrackCountsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GateConfig = "testdata/semgate.yaml"
	c := newTestComponent(t, cfg)

	handler := c.track(func(context.Context, []byte) ([]byte, error) {
		return nil, context.Canceled
	})
	_, err := handler(context.Background(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), c.requestsProcessed.Load())
	assert.Equal(t, 1, c.Health().ErrorCount)
	assert.False(t, c.DataFlow().LastActivity.IsZero())
}

// mockRegistry implements RegistryInterface for testing.
type mockRegistry struct {
	registered bool
	lastConfig component.RegistrationConfig
}

func (m *mockRegistry) RegisterWithConfig(cfg component.RegistrationConfig) error {
	m.registered = true
	m.lastConfig = cfg
	return nil
}

func TestRegister(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		registry := &mockRegistry{}
		if err := Register(registry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !registry.registered {
			t.Error("expected registry.RegisterWithConfig to be called")
		}
		cfg := registry.lastConfig
		if cfg.Name != "doorkeeper" {
			t.Errorf("expected Name 'doorkeeper', got %s", cfg.Name)
		}
		if cfg.Type != "processor" {
			t.Errorf("expected Type 'processor', got %s", cfg.Type)
		}
		if cfg.Factory == nil {
			t.Error("expected Factory to be set")
		}
	})

	t.Run("nil registry returns error", func(t *testing.T) {
		if err := Register(nil); err == nil {
			t.Error("expected error for nil registry")
		}
	})
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
	if cfg.TimeoutSecs != 30 {
		t.Errorf("expected timeout 30, got %d", cfg.TimeoutSecs)
	}
}
