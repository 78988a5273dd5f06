// Package rules runs ordered, named validation rules against a subject and
// aggregates their domain failures.
//
// Rules are registered once at startup as explicit (stage, name, function)
// triples. Within a stage they run in name order; every rule runs even when
// an earlier one failed, and the stage result joins all failure messages.
// Non-domain errors abort the stage immediately.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Stage tags a rule with the pipeline phase it belongs to.
type Stage string

const (
	// StagePreNormalize injects defaults and canonicalizes values.
	StagePreNormalize Stage = "pre-normalize"
	// StageCheck enforces invariants.
	StageCheck Stage = "check"
	// StagePostNormalize runs only on valid resources.
	StagePostNormalize Stage = "post-normalize"
	// StageTransaction runs once per committed transaction.
	StageTransaction Stage = "transaction"
)

// Func is the body of a rule. It returns a *Failure for domain problems and
// any other error for operational ones.
type Func[T any] func(ctx context.Context, subject T) error

// Rule is one named validation step.
type Rule[T any] struct {
	Stage Stage
	Name  string
	Fn    Func[T]
}

// Registry holds the rules of every stage. It is built once and read-only
// afterwards.
type Registry[T any] struct {
	rules map[Stage][]Rule[T]
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{rules: make(map[Stage][]Rule[T])}
}

// Register adds a rule. Duplicate names within a stage are rejected.
func (r *Registry[T]) Register(stage Stage, name string, fn Func[T]) error {
	if name == "" || fn == nil {
		return fmt.Errorf("rule name and function are required")
	}
	for _, existing := range r.rules[stage] {
		if existing.Name == name {
			return fmt.Errorf("rule %s already registered in stage %s", name, stage)
		}
	}
	r.rules[stage] = append(r.rules[stage], Rule[T]{Stage: stage, Name: name, Fn: fn})
	sort.Slice(r.rules[stage], func(i, j int) bool {
		return r.rules[stage][i].Name < r.rules[stage][j].Name
	})
	return nil
}

// MustRegister is Register that panics on error. Use at startup only.
func (r *Registry[T]) MustRegister(stage Stage, name string, fn Func[T]) {
	if err := r.Register(stage, name, fn); err != nil {
		panic(err)
	}
}

// Rules returns the rules of a stage in execution order.
func (r *Registry[T]) Rules(stage Stage) []Rule[T] {
	out := make([]Rule[T], len(r.rules[stage]))
	copy(out, r.rules[stage])
	return out
}

// Names returns the rule names of a stage in execution order.
func (r *Registry[T]) Names(stage Stage) []string {
	names := make([]string, 0, len(r.rules[stage]))
	for _, rule := range r.rules[stage] {
		names = append(names, rule.Name)
	}
	return names
}

// Observer is notified about each rule outcome. Implementations must be
// safe for concurrent use.
type Observer interface {
	RuleFailed(stage Stage, rule string)
}

// Runner executes the rules of a registry.
type Runner[T any] struct {
	registry *Registry[T]
	logger   *slog.Logger
	observer Observer
}

// NewRunner creates a runner over registry.
func NewRunner[T any](registry *Registry[T], logger *slog.Logger, observer Observer) *Runner[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner[T]{registry: registry, logger: logger, observer: observer}
}

// Run executes every rule of stage against subject. It returns nil, a
// *CompositeFailure when any rule reported domain failures, or the first
// operational error.
func (r *Runner[T]) Run(ctx context.Context, stage Stage, subject T) error {
	var composite *CompositeFailure
	for _, rule := range r.registry.rules[stage] {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := rule.Fn(ctx, subject)
		if err == nil {
			continue
		}
		failures, ok := collect(rule.Name, err)
		if !ok {
			r.logger.Error("Rule aborted stage", "stage", stage, "rule", rule.Name, "error", err)
			return fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		r.logger.Debug("Rule failed", "stage", stage, "rule", rule.Name, "failures", len(failures))
		if r.observer != nil {
			r.observer.RuleFailed(stage, rule.Name)
		}
		if composite == nil {
			composite = &CompositeFailure{Stage: stage}
		}
		composite.Failures = append(composite.Failures, failures...)
	}
	if composite != nil {
		return composite
	}
	return nil
}

// collect flattens a domain error into failures tagged with the rule name.
func collect(rule string, err error) ([]*Failure, bool) {
	var c *CompositeFailure
	if errors.As(err, &c) {
		out := make([]*Failure, len(c.Failures))
		for i, f := range c.Failures {
			out[i] = tag(rule, f)
		}
		return out, true
	}
	var f *Failure
	if errors.As(err, &f) {
		return []*Failure{tag(rule, f)}, true
	}
	return nil, false
}

func tag(rule string, f *Failure) *Failure {
	if f.Rule != "" {
		return f
	}
	c := *f
	c.Rule = rule
	return &c
}
