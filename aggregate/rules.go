package aggregate

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/c360studio/semgate/resource"
	"github.com/c360studio/semgate/rules"
)

// Transaction rule names.
const (
	RuleCheckAutoCreatedResources = "check-auto-created-resources"
	RuleCheckEmptyCollections     = "check-empty-collections"
	RuleCheckNextItemChain        = "check-next-item-chain"
	RuleCheckNewVersionCycles     = "check-new-version-cycles"
)

// Tx is the subject of the transaction rules.
type Tx struct {
	Store       *Store
	ID          int64
	ResourceIDs []int64
}

func (e *Engine) buildRegistry() *rules.Registry[*Tx] {
	r := rules.NewRegistry[*Tx]()
	r.MustRegister(rules.StageTransaction, RuleCheckAutoCreatedResources, e.checkAutoCreatedResources)
	r.MustRegister(rules.StageTransaction, RuleCheckEmptyCollections, e.checkEmptyCollections)
	r.MustRegister(rules.StageTransaction, RuleCheckNextItemChain, e.checkNextItemChain)
	r.MustRegister(rules.StageTransaction, RuleCheckNewVersionCycles, e.checkNewVersionCycles)
	return r
}

func (e *Engine) checkAutoCreatedResources(ctx context.Context, tx *Tx) error {
	found, err := tx.Store.AutoCreated(ctx, tx.ID, tx.ResourceIDs)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return nil
	}
	return rules.Failf("Transaction created resources without any metadata: %s", joinLabels(found))
}

func (e *Engine) checkEmptyCollections(ctx context.Context, tx *Tx) error {
	s := e.cfg.Schema
	found, err := tx.Store.EmptyCollections(ctx, tx.ID, tx.ResourceIDs, resource.RDFType, e.cfg.CollectionClasses(), s.Parent)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return nil
	}
	return rules.Failf("Transaction created empty collections: %s", joinLabels(found))
}

// checkNextItemChain requires the next-item relation reachable from the
// touched resources to form simple chains.
func (e *Engine) checkNextItemChain(ctx context.Context, tx *Tx) error {
	pred := e.cfg.Schema.HasNextItem
	if pred == "" {
		return nil
	}
	edges, err := tx.Store.Chain(ctx, pred, tx.ResourceIDs)
	if err != nil {
		return err
	}
	var fs rules.Failures
	out := make(map[int64]int)
	in := make(map[int64]int)
	for _, edge := range edges {
		out[edge.From]++
		in[edge.To]++
	}
	for _, id := range sortedKeys(out) {
		if out[id] > 1 {
			fs.Addf("Resource %d has more than one next item", id)
		}
	}
	for _, id := range sortedKeys(in) {
		if in[id] > 1 {
			fs.Addf("Resource %d is the next item of more than one resource", id)
		}
	}
	if id, ok := findCycle(edges); ok {
		fs.Addf("Next item chain contains a cycle at resource %d", id)
	}
	return fs.Err()
}

func (e *Engine) checkNewVersionCycles(ctx context.Context, tx *Tx) error {
	pred := e.cfg.Schema.IsNewVersionOf
	if pred == "" {
		return nil
	}
	edges, err := tx.Store.Chain(ctx, pred, tx.ResourceIDs)
	if err != nil {
		return err
	}
	if id, ok := findCycle(edges); ok {
		return rules.Failf("New version chain contains a cycle at resource %d", id)
	}
	return nil
}

// findCycle returns the smallest-id node from which a cycle is entered.
func findCycle(edges []Edge) (int64, bool) {
	adj := make(map[int64][]int64)
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	const (
		white = iota
		grey
		black
	)
	color := make(map[int64]int)
	var visit func(n int64) (int64, bool)
	visit = func(n int64) (int64, bool) {
		color[n] = grey
		for _, next := range adj[n] {
			switch color[next] {
			case grey:
				return next, true
			case white:
				if id, ok := visit(next); ok {
					return id, true
				}
			}
		}
		color[n] = black
		return 0, false
	}
	for _, n := range sortedKeys(adj) {
		if color[n] == white {
			if id, ok := visit(n); ok {
				return id, true
			}
		}
	}
	return 0, false
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func joinLabels(ls []Labeled) string {
	parts := make([]string, len(ls))
	for i, l := range ls {
		parts[i] = l.Label
		if parts[i] == "" {
			parts[i] = strconv.FormatInt(l.ID, 10)
		}
	}
	return strings.Join(parts, ", ")
}
