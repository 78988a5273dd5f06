// Package gate validates and normalizes a resource graph before an edit is
// committed.
//
// The pipeline runs three rule stages in order: pre-normalization (defaults,
// derived literals, range coercion, identifier canonicalization), checks
// (title, type, cardinality, identifier and language-tag invariants) and
// post-normalization (persistent identifiers). A stage with failures ends
// the run; post-normalization therefore never runs for an invalid resource.
package gate

import (
	"context"
	"log/slog"

	"github.com/c360studio/semgate/bibtex"
	"github.com/c360studio/semgate/config"
	"github.com/c360studio/semgate/identifier"
	"github.com/c360studio/semgate/ontology"
	"github.com/c360studio/semgate/pid"
	"github.com/c360studio/semgate/resolver"
	"github.com/c360studio/semgate/resource"
	"github.com/c360studio/semgate/rules"
)

// Stages lists the pipeline stages in execution order.
var Stages = []rules.Stage{
	rules.StagePreNormalize,
	rules.StageCheck,
	rules.StagePostNormalize,
}

// Context is the subject every resource rule operates on.
type Context struct {
	ResourceID string
	Path       string
	Graph      *resource.Graph

	classes []string
	known   bool
}

// Classes returns the classes asserted on the resource.
func (c *Context) Classes() []string { return c.classes }

// Known reports whether at least one asserted class has an ontology
// descriptor. Identifier normalization is strict for known resources.
func (c *Context) Known() bool { return c.known }

// Pipeline is the per-resource validation entry point.
type Pipeline struct {
	cfg        *config.Config
	onto       ontology.Provider
	normalizer identifier.Normalizer
	resolver   *resolver.Cache
	pids       *pid.Manager
	bib        bibtex.Parser
	logger     *slog.Logger
	observer   rules.Observer

	registry *rules.Registry[*Context]
	runner   *rules.Runner[*Context]
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNormalizer sets the identifier normalizer.
func WithNormalizer(n identifier.Normalizer) Option {
	return func(p *Pipeline) {
		p.normalizer = n
	}
}

// WithResolver sets the per-class URI resolution cache used for verified
// range classes.
func WithResolver(c *resolver.Cache) Option {
	return func(p *Pipeline) {
		p.resolver = c
	}
}

// WithPIDManager enables persistent identifier maintenance.
func WithPIDManager(m *pid.Manager) Option {
	return func(p *Pipeline) {
		p.pids = m
	}
}

// WithBibParser replaces the bibliographic record parser.
func WithBibParser(b bibtex.Parser) Option {
	return func(p *Pipeline) {
		p.bib = b
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithObserver receives rule failure notifications.
func WithObserver(o rules.Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// NewPipeline creates a pipeline over an ontology snapshot.
func NewPipeline(cfg *config.Config, onto ontology.Provider, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:    cfg,
		onto:   onto,
		bib:    bibtex.EntryParser{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.normalizer == nil {
		n, err := identifier.NewRuleNormalizer(cfg.IdentifierRules())
		if err != nil {
			return nil, err
		}
		p.normalizer = n
	}

	registry, err := p.buildRegistry()
	if err != nil {
		return nil, err
	}
	p.registry = registry
	p.runner = rules.NewRunner(registry, p.logger, p.observer)
	return p, nil
}

// Rules returns the rule names of stage in execution order.
func (p *Pipeline) Rules(stage rules.Stage) []string {
	return p.registry.Names(stage)
}

// OnResourceEdit validates graph and returns the normalized copy. The input
// graph is never modified, so a failed run leaves no partial mutations.
// Domain problems are returned as *rules.CompositeFailure; any other error
// is operational.
func (p *Pipeline) OnResourceEdit(ctx context.Context, resourceID string, graph *resource.Graph, path string) (*resource.Graph, error) {
	c := p.newContext(resourceID, graph.Clone(), path)

	for _, stage := range Stages {
		if err := p.runner.Run(ctx, stage, c); err != nil {
			p.logger.Debug("Resource rejected",
				slog.String("resource", resourceID),
				slog.String("stage", string(stage)),
				slog.String("error", err.Error()))
			return nil, err
		}
	}
	return c.Graph, nil
}

func (p *Pipeline) newContext(resourceID string, g *resource.Graph, path string) *Context {
	c := &Context{ResourceID: resourceID, Path: path, Graph: g, classes: g.Classes()}
	for _, class := range c.classes {
		if _, ok := p.onto.Class(class); ok {
			c.known = true
			break
		}
	}
	return c
}

// property returns the descriptor governing predicate for this resource.
func (p *Pipeline) property(c *Context, predicate string) (*ontology.Property, bool) {
	return p.onto.Property(c.classes, predicate)
}

// applicable returns the properties of every known asserted class followed
// by the root class properties, without duplicates.
func (p *Pipeline) applicable(c *Context) []*ontology.Property {
	seen := make(map[*ontology.Property]bool)
	var out []*ontology.Property
	add := func(props []*ontology.Property) {
		for _, prop := range props {
			if !seen[prop] {
				seen[prop] = true
				out = append(out, prop)
			}
		}
	}
	for _, class := range c.classes {
		if desc, ok := p.onto.Class(class); ok {
			add(desc.Properties)
		}
	}
	if c.known && p.onto.Root() != nil {
		add(p.onto.Root().Properties)
	}
	return out
}
