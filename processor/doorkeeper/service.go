package doorkeeper

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/google/uuid"

	"github.com/c360studio/semgate/aggregate"
	"github.com/c360studio/semgate/config"
	"github.com/c360studio/semgate/gate"
	"github.com/c360studio/semgate/identifier"
	"github.com/c360studio/semgate/ontology"
	"github.com/c360studio/semgate/pid"
	"github.com/c360studio/semgate/resolver"
	"github.com/c360studio/semgate/rules"
)

// Deps are the collaborators a Service is built from. Every field is
// optional.
type Deps struct {
	// DB enables transaction commit handling.
	DB *sql.DB
	// ResolutionStore persists entity resolutions.
	ResolutionStore resolver.Store
	// Publisher receives collection aggregates after commit.
	Publisher aggregate.Publisher
	// PIDService overrides the configured registry client.
	PIDService pid.Service
	// DisablePID skips PID maintenance even when configured.
	DisablePID bool
	Metrics    *Metrics
	Logger     *slog.Logger
}

// Service validates edits and handles commits. It is shared by the NATS
// component and the command line.
type Service struct {
	pipeline *gate.Pipeline
	engine   *aggregate.Engine
	metrics  *Metrics
	logger   *slog.Logger
	timeout  time.Duration
}

// NewService wires the pipeline and, when a database is given, the
// aggregation engine.
func NewService(cfg *config.Config, onto ontology.Provider, deps Deps) (*Service, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	normalizer, err := identifier.NewRuleNormalizer(cfg.IdentifierRules())
	if err != nil {
		return nil, fmt.Errorf("build normalizer: %w", err)
	}

	opts := []gate.Option{
		gate.WithNormalizer(normalizer),
		gate.WithLogger(logger),
		gate.WithObserver(deps.Metrics),
	}

	if cfg.Resolver.Enabled {
		httpResolver := resolver.NewHTTPResolver(normalizer,
			resolver.WithHTTPClient(&http.Client{Timeout: cfg.ResolverTimeout()}),
			resolver.WithCanonicalRedirects(cfg.Resolver.CanonicalRedirects),
			resolver.WithLogger(logger))
		opts = append(opts, gate.WithResolver(resolver.NewCache(httpResolver, deps.ResolutionStore, logger)))
	}

	if cfg.PID.Enabled && !deps.DisablePID {
		manager, err := newPIDManager(cfg, normalizer, deps, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gate.WithPIDManager(manager))
	}

	pipeline, err := gate.NewPipeline(cfg, onto, opts...)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	s := &Service{
		pipeline: pipeline,
		metrics:  deps.Metrics,
		logger:   logger,
	}
	if deps.DB != nil {
		engineOpts := []aggregate.Option{
			aggregate.WithLogger(logger),
			aggregate.WithObserver(deps.Metrics),
		}
		if deps.Publisher != nil {
			engineOpts = append(engineOpts, aggregate.WithPublisher(deps.Publisher))
		}
		s.engine = aggregate.NewEngine(deps.DB, cfg, engineOpts...)
	}
	return s, nil
}

func newPIDManager(cfg *config.Config, normalizer identifier.Normalizer, deps Deps, logger *slog.Logger) (*pid.Manager, error) {
	svc := deps.PIDService
	if svc == nil {
		client, err := pid.NewHTTPClient(cfg.PID.Registry, pid.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("build pid client: %w", err)
		}
		svc = client
	}
	opts := []pid.ManagerOption{
		pid.WithObserver(deps.Metrics),
		pid.WithManagerLogger(logger),
	}
	if cfg.PID.Dependent != nil {
		dependent, err := pid.NewHTTPClient(*cfg.PID.Dependent, pid.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("build dependent pid client: %w", err)
		}
		opts = append(opts, pid.WithDependentService(dependent))
	}
	return pid.NewManager(cfg.PIDSettings(), svc, normalizer, opts...), nil
}

// WithTimeout bounds each request. Zero disables the bound.
func (s *Service) WithTimeout(d time.Duration) *Service {
	s.timeout = d
	return s
}

func (s *Service) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// Edit validates one resource edit.
func (s *Service) Edit(ctx context.Context, req *EditRequest) *EditResponse {
	resp := &EditResponse{RequestID: uuid.New().String()}
	if err := req.Validate(); err != nil {
		resp.Error = err.Error()
		s.metrics.RecordValidation("error")
		return resp
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	graph, err := s.pipeline.OnResourceEdit(ctx, req.ResourceID, req.Graph, req.Path)
	if err != nil {
		resp.Failures, resp.Error, resp.Operational = describe(err)
		if resp.Failures != nil {
			s.metrics.RecordValidation("invalid")
		} else {
			s.metrics.RecordValidation("error")
			s.logger.Error("Resource edit aborted", "resource_id", req.ResourceID, "error", err)
		}
		return resp
	}

	resp.Valid = true
	resp.Graph = graph
	s.metrics.RecordValidation("valid")
	return resp
}

// Commit runs the transaction rules and aggregation.
func (s *Service) Commit(ctx context.Context, req *CommitRequest) *CommitResponse {
	resp := &CommitResponse{RequestID: uuid.New().String()}
	if err := req.Validate(); err != nil {
		resp.Error = err.Error()
		return resp
	}
	if s.engine == nil {
		resp.Error = "transaction commits require a database"
		return resp
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := s.engine.OnTransactionCommit(ctx, req.Method, req.TransactionID, req.ResourceIDs)
	if err != nil {
		resp.Failures, resp.Error, resp.Operational = describe(err)
		if resp.Failures != nil {
			s.metrics.ObserveCommit(time.Since(start), "invalid")
		} else {
			s.metrics.ObserveCommit(time.Since(start), "error")
			s.logger.Error("Transaction commit aborted", "transaction_id", req.TransactionID, "error", err)
		}
		return resp
	}

	s.metrics.ObserveCommit(time.Since(start), "ok")
	resp.OK = true
	resp.CollectionsUpdated = len(res.Rollups)
	return resp
}

// describe splits an error into domain failures or an error message. Only
// errors that are neither domain failures nor fatal are operational.
func describe(err error) (failures []string, msg string, operational bool) {
	if c, ok := rules.AsComposite(err); ok {
		return c.Messages(), "", false
	}
	return nil, err.Error(), !rules.IsFatal(err)
}

// HandleEdit is the request/reply handler for resource edits.
// Accepts both raw EditRequest JSON and BaseMessage-wrapped requests.
func (s *Service) HandleEdit(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var req EditRequest
	if err := decodeRequest(data, &req, func() bool { return req.ResourceID != "" }); err != nil {
		return json.Marshal(&EditResponse{Error: err.Error(), RequestID: uuid.New().String()})
	}
	return json.Marshal(s.Edit(ctx, &req))
}

// HandleCommit is the request/reply handler for transaction commits.
func (s *Service) HandleCommit(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var req CommitRequest
	if err := decodeRequest(data, &req, func() bool { return req.Method != "" }); err != nil {
		return json.Marshal(&CommitResponse{Error: err.Error(), RequestID: uuid.New().String()})
	}
	return json.Marshal(s.Commit(ctx, &req))
}

// decodeRequest parses data as a raw request first and falls back to a
// BaseMessage envelope when direct reports the raw parse was empty.
func decodeRequest(data []byte, into any, direct func() bool) error {
	if err := json.Unmarshal(data, into); err == nil && direct() {
		return nil
	}

	var baseMsg message.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		return fmt.Errorf("failed to parse request: %w", err)
	}
	payloadBytes, err := json.Marshal(baseMsg.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(payloadBytes, into); err != nil {
		return fmt.Errorf("failed to unmarshal request: %w", err)
	}
	return nil
}
