// Package aggregate runs the transaction-level rules and recomputes
// collection aggregates when the host commits a transaction.
//
// Each commit pass runs in its own SERIALIZABLE transaction with a bounded
// lock wait. Serialization failures, deadlocks and lock timeouts are
// transient: the whole pass is rolled back and retried.
package aggregate

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semstreams/pkg/retry"
	"github.com/lib/pq"

	"github.com/c360studio/semgate/config"
	"github.com/c360studio/semgate/datatype"
	"github.com/c360studio/semgate/resource"
	"github.com/c360studio/semgate/rules"
)

// MethodCommit is the only commit method that triggers aggregation.
const MethodCommit = "commit"

// RuleUpdateCollections names the aggregation step in logs and metrics.
const RuleUpdateCollections = "update-collections"

// SQLSTATE codes retried as transient.
var transientCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// Publisher receives the recomputed aggregates after a successful commit.
type Publisher interface {
	PublishRollups(ctx context.Context, txID int64, rollups []Rollup) error
}

// Result describes a completed commit pass.
type Result struct {
	TransactionID int64
	Rollups       []Rollup
}

// Engine handles transaction commits.
type Engine struct {
	db        *sql.DB
	cfg       *config.Config
	logger    *slog.Logger
	observer  rules.Observer
	publisher Publisher
	retry     retry.Config
	registry  *rules.Registry[*Tx]
	runner    *rules.Runner[*Tx]
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver reports rule failures.
func WithObserver(o rules.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithPublisher publishes aggregates after commit.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithRetry overrides the retry policy. MaxAttempts defaults to the
// configured aggregate attempts.
func WithRetry(cfg retry.Config) Option {
	return func(e *Engine) { e.retry = cfg }
}

// NewEngine creates an engine over db.
func NewEngine(db *sql.DB, cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		db:     db,
		cfg:    cfg,
		logger: slog.Default(),
		retry: retry.Config{
			MaxAttempts:  cfg.Aggregate.MaxAttempts,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retry.MaxAttempts <= 0 {
		e.retry.MaxAttempts = cfg.Aggregate.MaxAttempts
	}
	e.registry = e.buildRegistry()
	e.runner = rules.NewRunner(e.registry, e.logger, e.observer)
	return e
}

// Rules returns the transaction rule names in execution order.
func (e *Engine) Rules() []string {
	return e.registry.Names(rules.StageTransaction)
}

// OnTransactionCommit validates the transaction and recomputes the
// aggregates of every collection it affected. Methods other than commit
// are ignored.
func (e *Engine) OnTransactionCommit(ctx context.Context, method string, txID int64, resourceIDs []int64) (*Result, error) {
	if method != MethodCommit {
		e.logger.Debug("Ignoring transaction method", "method", method, "transaction_id", txID)
		return &Result{TransactionID: txID}, nil
	}

	var result *Result
	attempt := 0
	err := retry.Do(ctx, e.retry, func() error {
		attempt++
		r, err := e.commitOnce(ctx, txID, resourceIDs)
		if err == nil {
			result = r
			return nil
		}
		if rules.IsTransient(err) {
			e.logger.Warn("Commit pass failed, retrying",
				"transaction_id", txID, "attempt", attempt, "error", err)
			return err
		}
		return retry.NonRetryable(err)
	})
	if err != nil {
		var nr *retry.NonRetryableError
		if errors.As(err, &nr) {
			return nil, nr.Err
		}
		return nil, err
	}

	e.logger.Info("Transaction committed",
		"transaction_id", txID,
		"resources", len(resourceIDs),
		"collections", len(result.Rollups))

	if e.publisher != nil && e.cfg.Aggregate.Publish && len(result.Rollups) > 0 {
		if err := e.publisher.PublishRollups(ctx, txID, result.Rollups); err != nil {
			e.logger.Warn("Failed to publish aggregates", "transaction_id", txID, "error", err)
		}
	}
	return result, nil
}

func (e *Engine) commitOnce(ctx context.Context, txID int64, resourceIDs []int64) (*Result, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, classify(fmt.Errorf("begin transaction: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	store := NewStore(tx)
	if err := store.SetLockTimeout(ctx, e.cfg.LockTimeout()); err != nil {
		return nil, classify(fmt.Errorf("set lock timeout: %w", err))
	}

	subject := &Tx{Store: store, ID: txID, ResourceIDs: resourceIDs}
	if err := e.runner.Run(ctx, rules.StageTransaction, subject); err != nil {
		return nil, classify(err)
	}

	rollups, err := e.updateCollections(ctx, store, txID, resourceIDs)
	if err != nil {
		return nil, classify(fmt.Errorf("%s: %w", RuleUpdateCollections, err))
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("commit: %w", err))
	}
	committed = true
	return &Result{TransactionID: txID, Rollups: rollups}, nil
}

// updateCollections recomputes and overwrites the aggregates of every
// collection above the touched resources.
func (e *Engine) updateCollections(ctx context.Context, store *Store, txID int64, resourceIDs []int64) ([]Rollup, error) {
	s := e.cfg.Schema
	classes := e.cfg.CollectionClasses()
	n, err := store.Affected(ctx, txID, resourceIDs, s.Parent, resource.RDFType, classes)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	rollups, err := store.Counts(ctx, s.BinarySize, resource.RDFType, classes, s.BinaryClasses)
	if err != nil {
		return nil, fmt.Errorf("compute counts: %w", err)
	}
	ids := make([]int64, len(rollups))
	sizes := make([]int64, len(rollups))
	counts := make([]int64, len(rollups))
	for i, r := range rollups {
		ids[i] = r.CollectionID
		sizes[i] = r.CumulativeSize
		counts[i] = r.CumulativeCount
	}
	if err := store.ReplaceNumbers(ctx, s.CumulativeSize, datatype.NonNegativeInteger, ids, sizes); err != nil {
		return nil, err
	}
	if err := store.ReplaceNumbers(ctx, s.CumulativeCount, datatype.NonNegativeInteger, ids, counts); err != nil {
		return nil, err
	}

	licenses, err := e.categorical(ctx, store, s.License, s.LicenseAgg, ids)
	if err != nil {
		return nil, err
	}
	access, err := e.categorical(ctx, store, s.AccessRestriction, s.AccessRestrictionAgg, ids)
	if err != nil {
		return nil, err
	}
	for i := range rollups {
		rollups[i].Licenses = licenses[rollups[i].CollectionID]
		rollups[i].Access = access[rollups[i].CollectionID]
	}

	e.logger.Debug("Updated collection aggregates", "transaction_id", txID, "collections", len(rollups))
	return rollups, nil
}

func (e *Engine) categorical(ctx context.Context, store *Store, property, aggregate string, ids []int64) (map[int64]map[string]string, error) {
	if property == "" || aggregate == "" {
		return nil, nil
	}
	counts, err := store.Categories(ctx, property, e.cfg.Schema.LabelPredicates)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", property, err)
	}
	summaries := renderSummaries(ids, counts, e.cfg.Aggregate.Languages)
	rowIDs, langs, values := flatten(summaries)
	if err := store.ReplaceStrings(ctx, aggregate, datatype.LangString, ids, rowIDs, langs, values); err != nil {
		return nil, err
	}
	return summaries, nil
}

// classify marks database contention and dropped connections transient.
func classify(err error) error {
	if err == nil || rules.IsTransient(err) || rules.IsFatal(err) || rules.IsFailure(err) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && transientCodes[pqErr.Code] {
		return rules.NewTransientError(err)
	}
	if errors.Is(err, driver.ErrBadConn) {
		return rules.NewTransientError(err)
	}
	return err
}
