package gate

import (
	"context"
	"sort"
	"strings"

	"github.com/c360studio/semgate/ontology"
	"github.com/c360studio/semgate/resource"
	"github.com/c360studio/semgate/rules"
)

// checkCardinalities enforces min/max counts of every bounded property of
// the asserted classes and, for ontology-namespace resources, closes the
// domain over the declared properties.
func (p *Pipeline) checkCardinalities(_ context.Context, c *Context) error {
	if !c.Known() {
		return nil
	}
	var fs rules.Failures
	for _, prop := range p.applicable(c) {
		if !prop.Bounded() || prop.AutomatedFill {
			continue
		}
		objects, perLang := countValues(c.Graph, prop)
		total, most := 0, 0
		for _, n := range perLang {
			total += n
			if n > most {
				most = n
			}
		}
		if have := objects + total; have < prop.Min {
			fs.Addf("Min property count for %s is %d but resource has %d", prop.Name(), prop.Min, have)
		}
		if prop.Max != nil {
			if have := objects + most; have > *prop.Max {
				fs.Addf("Max property count for %s is %d but resource has %d", prop.Name(), *prop.Max, have)
			}
		}
	}

	if p.closedDomain(c) {
		allowed := p.allowedPredicates(c)
		for _, pred := range c.Graph.Predicates() {
			if !allowed[pred] {
				fs.Addf("Property %s is not allowed for class %s", pred, strings.Join(c.Classes(), ", "))
			}
		}
	}
	return fs.Err()
}

// countValues counts object values and literal values per language over
// every equivalent predicate of prop.
func countValues(g *resource.Graph, prop *ontology.Property) (int, map[string]int) {
	objects := 0
	perLang := make(map[string]int)
	for _, s := range g.Statements {
		if !prop.Matches(s.Predicate) {
			continue
		}
		if s.Object.IsNamedNode() {
			objects++
		} else {
			perLang[s.Object.Lang]++
		}
	}
	return objects, perLang
}

// closedDomain reports whether every asserted class is an ontology class.
// Resources asserting foreign classes are open-world.
func (p *Pipeline) closedDomain(c *Context) bool {
	ns := p.onto.Namespace()
	if ns == "" || len(c.Classes()) == 0 {
		return false
	}
	for _, class := range c.Classes() {
		if !strings.HasPrefix(class, ns) {
			return false
		}
	}
	return true
}

func (p *Pipeline) allowedPredicates(c *Context) map[string]bool {
	allowed := map[string]bool{
		resource.RDFType: true,
		p.cfg.Schema.ID:  true,
	}
	for _, prop := range p.applicable(c) {
		for _, u := range prop.URIs {
			allowed[u] = true
		}
	}
	return allowed
}

// checkIdentifierCount requires at least one external identifier and at
// most one ontology identifier, which must then stand alone.
func (p *Pipeline) checkIdentifierCount(_ context.Context, c *Context) error {
	ns := p.onto.Namespace()
	ontologyIDs, otherIDs := 0, 0
	for _, id := range c.Graph.NamedNodes(p.cfg.Schema.ID) {
		switch {
		case ns != "" && strings.HasPrefix(id, ns):
			ontologyIDs++
		case resource.HasPrefix(id, p.cfg.Namespaces.Repository):
		default:
			otherIDs++
		}
	}
	switch {
	case ontologyIDs > 1:
		return rules.Failf("More than one ontology id")
	case ontologyIDs == 1 && otherIDs > 0:
		return rules.Failf("Ontology resource can not have additional ids")
	case ontologyIDs == 0 && otherIDs == 0:
		return rules.Failf("No non-repository id")
	}
	return nil
}

// checkLanguageTags requires a language on literals of language-tagged
// properties.
func (p *Pipeline) checkLanguageTags(_ context.Context, c *Context) error {
	var fs rules.Failures
	reported := make(map[string]bool)
	for _, s := range c.Graph.Statements {
		if !s.Object.IsLiteral() || s.Object.Lang != "" || reported[s.Predicate] {
			continue
		}
		prop, ok := p.property(c, s.Predicate)
		if !ok || !prop.LangTag {
			continue
		}
		reported[s.Predicate] = true
		fs.AddProperty(s.Predicate, "language tag required for %s", localName(s.Predicate))
	}
	return fs.Err()
}

// checkPropertyTypes rejects literals on object properties and named nodes
// on datatype properties.
func (p *Pipeline) checkPropertyTypes(_ context.Context, c *Context) error {
	var fs rules.Failures
	for _, s := range c.Graph.Statements {
		prop, ok := p.property(c, s.Predicate)
		if !ok {
			continue
		}
		switch prop.Type {
		case ontology.TypeObject:
			if s.Object.IsLiteral() {
				fs.AddProperty(s.Predicate, "literal %q given for object property", s.Object.Value)
			}
		case ontology.TypeDatatype:
			if s.Object.IsNamedNode() {
				fs.AddProperty(s.Predicate, "URI %s given for datatype property", s.Object.Value)
			}
		}
	}
	return fs.Err()
}

// checkUnknownProperties rejects ontology-namespace predicates that the
// ontology does not declare.
func (p *Pipeline) checkUnknownProperties(_ context.Context, c *Context) error {
	ns := p.onto.Namespace()
	if ns == "" {
		return nil
	}
	var unknown []string
	for _, pred := range c.Graph.Predicates() {
		if !strings.HasPrefix(pred, ns) || pred == p.cfg.Schema.ID {
			continue
		}
		if _, ok := p.property(c, pred); !ok {
			unknown = append(unknown, pred)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return rules.Failf("Unknown ontology properties: %s", strings.Join(unknown, ", "))
}

// checkBibLaTeX parses embedded bibliographic records.
func (p *Pipeline) checkBibLaTeX(_ context.Context, c *Context) error {
	pred := p.cfg.Schema.BibliographicRecord
	if pred == "" || p.bib == nil {
		return nil
	}
	var fs rules.Failures
	for _, v := range c.Graph.Literals(pred) {
		if err := p.bib.Parse(v.Value); err != nil {
			fs.AddProperty(pred, "invalid bibliographic record: %v", err)
		}
	}
	return fs.Err()
}
