// Package doorkeeper exposes resource edit validation and transaction
// commit aggregation as request/reply services on NATS.
package doorkeeper

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/semgate/aggregate"
	"github.com/c360studio/semgate/config"
	"github.com/c360studio/semgate/graph"
	"github.com/c360studio/semgate/ontology"
	"github.com/c360studio/semgate/resolver"
	"github.com/c360studio/semgate/storage"
)

// Component implements the doorkeeper processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	metrics    *Metrics

	gateConfig *config.Config
	onto       *ontology.Snapshot
	db         *sql.DB
	service    *Service

	editSubject   string
	commitSubject string

	// Lifecycle
	running       bool
	startTime     time.Time
	mu            sync.RWMutex
	cancel        context.CancelFunc
	subscriptions []*natsclient.Subscription

	// Metrics
	requestsProcessed atomic.Int64
	errors            atomic.Int64
	lastActivityMu    sync.RWMutex
	lastActivity      time.Time
}

// NewComponent creates a new doorkeeper processor.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var cfg Config
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply defaults if not specified
	defaults := DefaultConfig()
	if cfg.Ports == nil {
		cfg.Ports = defaults.Ports
	}
	if cfg.TimeoutSecs == 0 {
		cfg.TimeoutSecs = defaults.TimeoutSecs
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := deps.GetLoggerWithComponent("doorkeeper")
	gateConfig, err := config.NewLoader(logger).Load(cfg.GateConfig)
	if err != nil {
		return nil, fmt.Errorf("load gate config: %w", err)
	}
	onto, err := ontology.Load(gateConfig.Ontology.Paths...)
	if err != nil {
		return nil, fmt.Errorf("load ontology: %w", err)
	}

	return &Component{
		name:          "doorkeeper",
		config:        cfg,
		natsClient:    deps.NATSClient,
		logger:        logger,
		metrics:       NewMetrics(deps.MetricsRegistry),
		gateConfig:    gateConfig,
		onto:          onto,
		editSubject:   cfg.Ports.Inputs[0].Subject,
		commitSubject: cfg.Ports.Inputs[1].Subject,
	}, nil
}

// Initialize opens the database when one is configured.
func (c *Component) Initialize() error {
	if err := c.openDB(); err != nil {
		return err
	}
	if c.db == nil {
		c.logger.Warn("No database configured, transaction commits will be rejected")
	}
	c.logger.Debug("Initialized doorkeeper",
		"edit_subject", c.editSubject,
		"commit_subject", c.commitSubject,
		"properties", len(c.onto.Properties()))
	return nil
}

// Start wires the service and begins handling requests.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	// Set running state while holding lock to prevent race condition
	c.running = true
	c.startTime = time.Now()

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.start(subCtx); err != nil {
		// Rollback running state on failure
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
		cancel()
		return err
	}

	c.logger.Info("doorkeeper started",
		"edit_subject", c.editSubject,
		"commit_subject", c.commitSubject,
		"database", c.db != nil)
	return nil
}

// openDB opens the database unless it is already open or not configured.
func (c *Component) openDB() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return nil
	}
	dsn := c.gateConfig.DSN()
	if dsn == "" {
		return nil
	}
	db, err := aggregate.Open(dsn, c.gateConfig.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	c.db = db
	return nil
}

func (c *Component) start(ctx context.Context) error {
	// Stop closes the database, so a restart reopens it.
	if err := c.openDB(); err != nil {
		return err
	}

	var store resolver.Store
	if c.gateConfig.Resolver.Enabled && c.gateConfig.Resolver.KVBucket != "" {
		js, err := c.natsClient.JetStream()
		if err != nil {
			return fmt.Errorf("get jetstream: %w", err)
		}
		rs, err := storage.NewResolutionStore(ctx, js, c.gateConfig.Resolver.KVBucket, 0)
		if err != nil {
			return err
		}
		store = rs
	}

	deps := Deps{
		DB:              c.db,
		ResolutionStore: store,
		Metrics:         c.metrics,
		Logger:          c.logger,
	}
	if c.gateConfig.Aggregate.Publish {
		deps.Publisher = graph.NewRollupPublisher(c.natsClient)
	}
	service, err := NewService(c.gateConfig, c.onto, deps)
	if err != nil {
		return err
	}
	service.WithTimeout(time.Duration(c.config.TimeoutSecs) * time.Second)

	handlers := []struct {
		subject string
		handle  func(context.Context, []byte) ([]byte, error)
	}{
		{c.editSubject, service.HandleEdit},
		{c.commitSubject, service.HandleCommit},
	}
	subs := make([]*natsclient.Subscription, 0, len(handlers))
	for _, h := range handlers {
		sub, err := c.natsClient.SubscribeForRequests(ctx, h.subject, c.track(h.handle))
		if err != nil {
			c.unsubscribe(subs)
			return fmt.Errorf("subscribe to %s: %w", h.subject, err)
		}
		subs = append(subs, sub)
	}

	c.mu.Lock()
	c.service = service
	c.subscriptions = subs
	c.mu.Unlock()
	return nil
}

// track counts requests and handler errors.
func (c *Component) track(handle func(context.Context, []byte) ([]byte, error)) func(context.Context, []byte) ([]byte, error) {
	return func(ctx context.Context, data []byte) ([]byte, error) {
		c.requestsProcessed.Add(1)
		c.updateLastActivity()
		out, err := handle(ctx, data)
		if err != nil {
			c.errors.Add(1)
		}
		return out, err
	}
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.unsubscribe(c.subscriptions)
	c.subscriptions = nil
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Warn("Failed to close database", "error", err)
		}
		c.db = nil
	}

	c.running = false
	c.logger.Info("doorkeeper stopped",
		"requests_processed", c.requestsProcessed.Load(),
		"errors", c.errors.Load())

	return nil
}

func (c *Component) unsubscribe(subs []*natsclient.Subscription) {
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("Failed to unsubscribe", "error", err)
		}
	}
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "doorkeeper",
		Type:        "processor",
		Description: "Validates resource edits and aggregates collections on commit",
		Version:     "1.0.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	return ports(c.config.Ports, component.DirectionInput)
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	return ports(c.config.Ports, component.DirectionOutput)
}

func ports(cfg *component.PortConfig, dir component.Direction) []component.Port {
	if cfg == nil {
		return []component.Port{}
	}
	defs := cfg.Inputs
	if dir == component.DirectionOutput {
		defs = cfg.Outputs
	}
	out := make([]component.Port, len(defs))
	for i, portDef := range defs {
		out[i] = component.Port{
			Name:        portDef.Name,
			Direction:   dir,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.NATSPort{
				Subject: portDef.Subject,
			},
		}
	}
	return out
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return doorkeeperSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.errors.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
