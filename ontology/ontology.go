// Package ontology models the read-only class/property schema that governs
// valid resource graphs.
//
// A Snapshot is loaded once and shared between pipeline invocations. Nothing
// in this package mutates a snapshot after Load returns.
package ontology

import (
	"strings"
)

// PropertyType tags a property descriptor as literal-valued or node-valued.
type PropertyType string

const (
	// TypeDatatype properties carry literal values.
	TypeDatatype PropertyType = "datatype"
	// TypeObject properties carry named-node values.
	TypeObject PropertyType = "object"
)

// Property describes the constraints on one predicate (or a set of
// equivalent predicates).
type Property struct {
	// URIs are equivalent predicate URIs; the first is the display name.
	URIs []string     `yaml:"uris" json:"uris"`
	Type PropertyType `yaml:"type" json:"type"`
	// Range is the set of acceptable datatypes, or a single class URI for
	// object properties.
	Range []string `yaml:"range,omitempty" json:"range,omitempty"`
	Min   int      `yaml:"min,omitempty" json:"min,omitempty"`
	// Max is nil when the property is unbounded.
	Max           *int   `yaml:"max,omitempty" json:"max,omitempty"`
	LangTag       bool   `yaml:"lang_tag,omitempty" json:"lang_tag,omitempty"`
	DefaultValue  string `yaml:"default_value,omitempty" json:"default_value,omitempty"`
	Vocabs        string `yaml:"vocabs,omitempty" json:"vocabs,omitempty"`
	AutomatedFill bool   `yaml:"automated_fill,omitempty" json:"automated_fill,omitempty"`
}

// Name returns the display predicate of the property.
func (p *Property) Name() string {
	if len(p.URIs) == 0 {
		return ""
	}
	return p.URIs[0]
}

// Matches reports whether predicate is one of the property's URIs.
func (p *Property) Matches(predicate string) bool {
	for _, u := range p.URIs {
		if u == predicate {
			return true
		}
	}
	return false
}

// Bounded reports whether the property participates in cardinality checks.
func (p *Property) Bounded() bool {
	return p.Min > 0 || p.Max != nil
}

// InRange reports whether uri is a member of the declared range.
func (p *Property) InRange(uri string) bool {
	for _, r := range p.Range {
		if r == uri {
			return true
		}
	}
	return false
}

// RangeClass returns the class URI of an object property's range.
func (p *Property) RangeClass() string {
	if p.Type != TypeObject || len(p.Range) == 0 {
		return ""
	}
	return p.Range[0]
}

// Class is an ontology class descriptor.
type Class struct {
	URI        string      `yaml:"uri" json:"uri"`
	Properties []*Property `yaml:"properties,omitempty" json:"properties,omitempty"`
	// Verified classes are external entities whose URIs must be resolved
	// before they are accepted as object values.
	Verified bool `yaml:"verified,omitempty" json:"verified,omitempty"`
}

// Property returns the class property matching predicate.
func (c *Class) Property(predicate string) (*Property, bool) {
	for _, p := range c.Properties {
		if p.Matches(predicate) {
			return p, true
		}
	}
	return nil, false
}

// Concept is one entry of a controlled vocabulary.
type Concept struct {
	URI    string            `yaml:"uri" json:"uri"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Vocabulary is a controlled list of concepts.
type Vocabulary struct {
	ID       string    `yaml:"id" json:"id"`
	Concepts []Concept `yaml:"concepts" json:"concepts"`
}

// Concept returns the concept with the given URI.
func (v *Vocabulary) Concept(uri string) (Concept, bool) {
	for _, c := range v.Concepts {
		if c.URI == uri {
			return c, true
		}
	}
	return Concept{}, false
}

// ByLabel finds a concept by label. Matching is case-insensitive and, when
// lang is non-empty, prefers labels in that language.
func (v *Vocabulary) ByLabel(label, lang string) (Concept, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Concept{}, false
	}
	if lang != "" {
		for _, c := range v.Concepts {
			if l, ok := c.Labels[lang]; ok && strings.EqualFold(l, label) {
				return c, true
			}
		}
	}
	for _, c := range v.Concepts {
		for _, l := range c.Labels {
			if strings.EqualFold(l, label) {
				return c, true
			}
		}
	}
	return Concept{}, false
}

// Label returns the concept label for lang, falling back to any label.
func (c Concept) Label(lang string) string {
	if l, ok := c.Labels[lang]; ok {
		return l
	}
	if l, ok := c.Labels["en"]; ok {
		return l
	}
	for _, l := range c.Labels {
		return l
	}
	return c.URI
}

// Provider is the read-only ontology lookup consumed by validation rules.
type Provider interface {
	// Class returns the descriptor for a class URI.
	Class(uri string) (*Class, bool)
	// Property returns the descriptor for predicate in the context of the
	// given asserted classes.
	Property(classes []string, predicate string) (*Property, bool)
	// Properties enumerates every declared property.
	Properties() []*Property
	// Vocabulary returns a controlled vocabulary by id.
	Vocabulary(id string) (*Vocabulary, bool)
	// Namespace is the ontology's own namespace prefix.
	Namespace() string
	// Root is the class whose properties every resource may carry.
	Root() *Class
}
