// Package resource holds the property graph of a single repository resource
// while it passes through the validation pipeline.
//
// A Graph is a multiset of (predicate, object) statements attached to one
// canonical node. Objects are either literals (value, language tag, datatype)
// or named nodes (URIs). Rules mutate the graph in place.
package resource

import (
	"sort"
	"strings"
)

// Kind distinguishes literal objects from named-node objects.
type Kind string

const (
	// KindLiteral marks a literal value.
	KindLiteral Kind = "literal"
	// KindNamedNode marks a URI reference.
	KindNamedNode Kind = "uri"
)

// XSDString is the datatype assumed for literals without an explicit one.
const XSDString = "http://www.w3.org/2001/XMLSchema#string"

// LangString is the datatype of language-tagged literals.
const LangString = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"

// Value is the object of a statement.
type Value struct {
	Kind     Kind   `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// Literal builds a literal value. An empty datatype means xsd:string.
func Literal(value, lang, datatype string) Value {
	return Value{Kind: KindLiteral, Value: value, Lang: lang, Datatype: datatype}
}

// NamedNode builds a URI value.
func NamedNode(uri string) Value {
	return Value{Kind: KindNamedNode, Value: uri}
}

// IsLiteral reports whether the value is a literal.
func (v Value) IsLiteral() bool { return v.Kind == KindLiteral }

// IsNamedNode reports whether the value is a URI reference.
func (v Value) IsNamedNode() bool { return v.Kind == KindNamedNode }

// DatatypeOrDefault returns the literal datatype, defaulting to xsd:string
// (or rdf:langString for tagged literals).
func (v Value) DatatypeOrDefault() string {
	if v.Datatype != "" {
		return v.Datatype
	}
	if v.Lang != "" {
		return LangString
	}
	return XSDString
}

// Equal compares two values by kind, lexical form, language and datatype.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.Value != o.Value {
		return false
	}
	if v.Kind == KindNamedNode {
		return true
	}
	return v.Lang == o.Lang && v.DatatypeOrDefault() == o.DatatypeOrDefault()
}

// Statement is one (predicate, object) pair of the resource.
type Statement struct {
	Predicate string `json:"predicate"`
	Object    Value  `json:"object"`
}

// Graph is the editable metadata of one resource.
type Graph struct {
	// Node is the canonical internal URI of the resource.
	Node       string      `json:"node"`
	Statements []Statement `json:"statements"`
}

// New creates an empty graph for the given node.
func New(node string) *Graph {
	return &Graph{Node: node}
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{Node: g.Node, Statements: make([]Statement, len(g.Statements))}
	copy(c.Statements, g.Statements)
	return c
}

// Len returns the number of statements.
func (g *Graph) Len() int { return len(g.Statements) }

// Add appends a statement. Duplicates are kept; the graph is a multiset.
func (g *Graph) Add(predicate string, v Value) {
	g.Statements = append(g.Statements, Statement{Predicate: predicate, Object: v})
}

// AddUnique appends a statement unless an equal one is already present.
func (g *Graph) AddUnique(predicate string, v Value) bool {
	if g.Contains(predicate, v) {
		return false
	}
	g.Add(predicate, v)
	return true
}

// Contains reports whether an equal statement exists.
func (g *Graph) Contains(predicate string, v Value) bool {
	for _, s := range g.Statements {
		if s.Predicate == predicate && s.Object.Equal(v) {
			return true
		}
	}
	return false
}

// Has reports whether any statement uses the predicate.
func (g *Graph) Has(predicate string) bool {
	for _, s := range g.Statements {
		if s.Predicate == predicate {
			return true
		}
	}
	return false
}

// Values returns all objects of the predicate in insertion order.
func (g *Graph) Values(predicate string) []Value {
	var out []Value
	for _, s := range g.Statements {
		if s.Predicate == predicate {
			out = append(out, s.Object)
		}
	}
	return out
}

// Literals returns the literal objects of the predicate.
func (g *Graph) Literals(predicate string) []Value {
	var out []Value
	for _, s := range g.Statements {
		if s.Predicate == predicate && s.Object.IsLiteral() {
			out = append(out, s.Object)
		}
	}
	return out
}

// NamedNodes returns the URI objects of the predicate.
func (g *Graph) NamedNodes(predicate string) []string {
	var out []string
	for _, s := range g.Statements {
		if s.Predicate == predicate && s.Object.IsNamedNode() {
			out = append(out, s.Object.Value)
		}
	}
	return out
}

// First returns the first object of the predicate.
func (g *Graph) First(predicate string) (Value, bool) {
	for _, s := range g.Statements {
		if s.Predicate == predicate {
			return s.Object, true
		}
	}
	return Value{}, false
}

// Predicates returns the distinct predicates, sorted.
func (g *Graph) Predicates() []string {
	seen := make(map[string]struct{})
	for _, s := range g.Statements {
		seen[s.Predicate] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Delete removes every statement of the predicate and returns how many were
// removed.
func (g *Graph) Delete(predicate string) int {
	return g.DeleteMatching(predicate, func(Value) bool { return true })
}

// DeleteValue removes statements equal to (predicate, v).
func (g *Graph) DeleteValue(predicate string, v Value) int {
	return g.DeleteMatching(predicate, func(o Value) bool { return o.Equal(v) })
}

// DeleteMatching removes statements of the predicate whose object satisfies
// match. An empty predicate matches every predicate.
func (g *Graph) DeleteMatching(predicate string, match func(Value) bool) int {
	kept := g.Statements[:0]
	removed := 0
	for _, s := range g.Statements {
		if (predicate == "" || s.Predicate == predicate) && match(s.Object) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	g.Statements = kept
	return removed
}

// Replace swaps the object of every statement equal to (predicate, old).
func (g *Graph) Replace(predicate string, old, repl Value) int {
	n := 0
	for i := range g.Statements {
		s := &g.Statements[i]
		if s.Predicate == predicate && s.Object.Equal(old) {
			s.Object = repl
			n++
		}
	}
	return n
}

// HasPrefix reports whether uri starts with any of the prefixes.
func HasPrefix(uri string, prefixes ...string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(uri, p) {
			return true
		}
	}
	return false
}

// RDFType is the predicate asserting class membership.
const RDFType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

// Classes returns the asserted classes of the resource, sorted and
// deduplicated.
func (g *Graph) Classes() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, uri := range g.NamedNodes(RDFType) {
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// HasClass reports whether the resource asserts any of the classes.
func (g *Graph) HasClass(classes ...string) bool {
	for _, c := range g.NamedNodes(RDFType) {
		for _, want := range classes {
			if c == want {
				return true
			}
		}
	}
	return false
}
