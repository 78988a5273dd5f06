package ontology

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Snapshot is an immutable, already-loaded ontology.
type Snapshot struct {
	namespace    string
	root         *Class
	classes      map[string]*Class
	vocabularies map[string]*Vocabulary
	properties   []*Property
	byPredicate  map[string]*Property
}

// Document is the on-disk YAML form of (part of) an ontology. Several
// documents are merged into one snapshot.
type Document struct {
	Namespace    string        `yaml:"namespace,omitempty"`
	Root         string        `yaml:"root,omitempty"`
	Classes      []*Class      `yaml:"classes,omitempty"`
	Vocabularies []*Vocabulary `yaml:"vocabularies,omitempty"`
}

// NewSnapshot builds a snapshot from one or more documents. Later documents
// override classes and vocabularies of earlier ones with the same URI/id.
func NewSnapshot(docs ...*Document) (*Snapshot, error) {
	s := &Snapshot{
		classes:      make(map[string]*Class),
		vocabularies: make(map[string]*Vocabulary),
		byPredicate:  make(map[string]*Property),
	}
	var rootURI string
	for _, d := range docs {
		if d == nil {
			continue
		}
		if d.Namespace != "" {
			s.namespace = d.Namespace
		}
		if d.Root != "" {
			rootURI = d.Root
		}
		for _, c := range d.Classes {
			if c.URI == "" {
				return nil, fmt.Errorf("class without uri")
			}
			for _, p := range c.Properties {
				if err := validateProperty(c.URI, p); err != nil {
					return nil, err
				}
			}
			s.classes[c.URI] = c
		}
		for _, v := range d.Vocabularies {
			if v.ID == "" {
				return nil, fmt.Errorf("vocabulary without id")
			}
			s.vocabularies[v.ID] = v
		}
	}
	if s.namespace == "" {
		return nil, fmt.Errorf("ontology namespace is required")
	}
	if rootURI != "" {
		root, ok := s.classes[rootURI]
		if !ok {
			return nil, fmt.Errorf("root class %s not declared", rootURI)
		}
		s.root = root
	} else {
		s.root = &Class{}
	}

	uris := make([]string, 0, len(s.classes))
	for u := range s.classes {
		uris = append(uris, u)
	}
	sort.Strings(uris)
	seen := make(map[*Property]bool)
	for _, u := range uris {
		for _, p := range s.classes[u].Properties {
			if seen[p] {
				continue
			}
			seen[p] = true
			s.properties = append(s.properties, p)
			for _, pred := range p.URIs {
				if _, ok := s.byPredicate[pred]; !ok {
					s.byPredicate[pred] = p
				}
			}
		}
	}
	return s, nil
}

func validateProperty(class string, p *Property) error {
	if len(p.URIs) == 0 {
		return fmt.Errorf("class %s: property without uris", class)
	}
	switch p.Type {
	case TypeDatatype, TypeObject:
	default:
		return fmt.Errorf("class %s: property %s has unknown type %q", class, p.URIs[0], p.Type)
	}
	if p.Min < 0 {
		return fmt.Errorf("class %s: property %s has negative min", class, p.URIs[0])
	}
	if p.Max != nil && *p.Max < p.Min {
		return fmt.Errorf("class %s: property %s has max < min", class, p.URIs[0])
	}
	return nil
}

// Load reads every YAML file matching the glob patterns (doublestar syntax,
// "**" allowed) and merges them into a snapshot in lexical path order.
func Load(patterns ...string) (*Snapshot, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no ontology files match %s", strings.Join(patterns, ", "))
	}
	sort.Strings(files)

	docs := make([]*Document, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read ontology file %s: %w", f, err)
		}
		var d Document
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("parse ontology file %s: %w", f, err)
		}
		docs = append(docs, &d)
	}
	return NewSnapshot(docs...)
}

// Class implements Provider.
func (s *Snapshot) Class(uri string) (*Class, bool) {
	c, ok := s.classes[uri]
	return c, ok
}

// Property implements Provider. Asserted classes are searched in order,
// then the root class, then any class declaring the predicate.
func (s *Snapshot) Property(classes []string, predicate string) (*Property, bool) {
	for _, uri := range classes {
		if c, ok := s.classes[uri]; ok {
			if p, ok := c.Property(predicate); ok {
				return p, true
			}
		}
	}
	if p, ok := s.root.Property(predicate); ok {
		return p, true
	}
	p, ok := s.byPredicate[predicate]
	return p, ok
}

// Properties implements Provider.
func (s *Snapshot) Properties() []*Property {
	return s.properties
}

// Vocabulary implements Provider.
func (s *Snapshot) Vocabulary(id string) (*Vocabulary, bool) {
	v, ok := s.vocabularies[id]
	return v, ok
}

// Namespace implements Provider.
func (s *Snapshot) Namespace() string { return s.namespace }

// Root implements Provider.
func (s *Snapshot) Root() *Class { return s.root }

// InNamespace reports whether uri belongs to the ontology namespace.
func (s *Snapshot) InNamespace(uri string) bool {
	return strings.HasPrefix(uri, s.namespace)
}

var _ Provider = (*Snapshot)(nil)
