package gate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/c360studio/semgate/datatype"
	"github.com/c360studio/semgate/ontology"
	"github.com/c360studio/semgate/resource"
	"github.com/c360studio/semgate/rules"
	"golang.org/x/text/language"
)

// maintainAccessRights derives the read roles from the access-restriction
// concept. Managed roles not granted by the concept are removed.
func (p *Pipeline) maintainAccessRights(_ context.Context, c *Context) error {
	if len(p.cfg.Access.Rights) == 0 {
		return nil
	}
	restrictions := p.accessConcepts(c)
	if len(restrictions) == 0 {
		return nil
	}

	granted := make(map[string]bool)
	for _, concept := range restrictions {
		roles, ok := p.cfg.Access.Rights[concept]
		if !ok {
			p.logger.Debug("Access restriction grants no roles", "resource", c.ResourceID, "concept", concept)
			continue
		}
		for _, role := range roles {
			granted[role] = true
		}
	}

	acl := p.cfg.Schema.ACLRead
	for _, role := range p.cfg.Access.ManagedRoles {
		if !granted[role] {
			c.Graph.DeleteValue(acl, resource.NamedNode(role))
		}
	}
	for _, concept := range restrictions {
		for _, role := range p.cfg.Access.Rights[concept] {
			c.Graph.AddUnique(acl, resource.NamedNode(role))
		}
	}
	return nil
}

// accessConcepts returns the access-restriction concepts of the resource.
// Labels are looked up in the property's vocabulary, since range coercion
// rewrites them only after this rule has run. Unknown labels are left to
// range coercion to report.
func (p *Pipeline) accessConcepts(c *Context) []string {
	pred := p.cfg.Schema.AccessRestriction
	var vocab *ontology.Vocabulary
	if prop, ok := p.property(c, pred); ok && prop.Vocabs != "" {
		vocab, _ = p.onto.Vocabulary(prop.Vocabs)
	}
	var concepts []string
	for _, v := range c.Graph.Values(pred) {
		switch {
		case v.IsNamedNode():
			concepts = append(concepts, v.Value)
		case vocab != nil:
			if concept, ok := vocab.ByLabel(v.Value, v.Lang); ok {
				concepts = append(concepts, concept.URI)
			}
		}
	}
	return concepts
}

// maintainDefaultValues injects the default value of every applicable
// property the resource does not carry at all.
func (p *Pipeline) maintainDefaultValues(_ context.Context, c *Context) error {
	for _, prop := range p.applicable(c) {
		if prop.DefaultValue == "" || hasAny(c.Graph, prop) {
			continue
		}
		var v resource.Value
		switch prop.Type {
		case ontology.TypeObject:
			v = resource.NamedNode(prop.DefaultValue)
		default:
			lang := ""
			if prop.LangTag {
				lang = "und"
			}
			dt := ""
			if len(prop.Range) > 0 && lang == "" && prop.Range[0] != datatype.String {
				dt = prop.Range[0]
			}
			v = resource.Literal(prop.DefaultValue, lang, dt)
		}
		c.Graph.Add(prop.Name(), v)
	}
	return nil
}

func hasAny(g *resource.Graph, prop *ontology.Property) bool {
	for _, u := range prop.URIs {
		if g.Has(u) {
			return true
		}
	}
	return false
}

// maintainLanguageTags rewrites language tags to canonical BCP 47 form.
// Unparseable tags are left as they are.
func (p *Pipeline) maintainLanguageTags(_ context.Context, c *Context) error {
	for i := range c.Graph.Statements {
		v := &c.Graph.Statements[i].Object
		if !v.IsLiteral() || v.Lang == "" {
			continue
		}
		tag, err := language.Parse(v.Lang)
		if err != nil {
			continue
		}
		if canonical := tag.String(); canonical != v.Lang {
			v.Lang = canonical
		}
	}
	return nil
}

// maintainWKT composes a point geometry from paired coordinates.
func (p *Pipeline) maintainWKT(_ context.Context, c *Context) error {
	s := p.cfg.Schema
	if s.WKT == "" || c.Graph.Has(s.WKT) {
		return nil
	}
	lat, okLat := c.Graph.First(s.Latitude)
	long, okLong := c.Graph.First(s.Longitude)
	if !okLat || !okLong {
		return nil
	}

	var fs rules.Failures
	x, err := strconv.ParseFloat(strings.TrimSpace(long.Value), 64)
	if err != nil {
		fs.AddProperty(s.Longitude, "invalid coordinate %q", long.Value)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(lat.Value), 64)
	if err != nil {
		fs.AddProperty(s.Latitude, "invalid coordinate %q", lat.Value)
	}
	if len(fs) > 0 {
		return fs.Err()
	}
	point := fmt.Sprintf("POINT(%s %s)",
		strconv.FormatFloat(x, 'f', -1, 64),
		strconv.FormatFloat(y, 'f', -1, 64))
	c.Graph.Add(s.WKT, resource.Literal(point, "", datatype.WKTLiteral))
	return nil
}

// normalizeIdentifiers canonicalizes every identifier. Normalization errors
// fail resources of known classes; for others the value is kept.
func (p *Pipeline) normalizeIdentifiers(_ context.Context, c *Context) error {
	pred := p.cfg.Schema.ID
	var fs rules.Failures
	for _, id := range c.Graph.NamedNodes(pred) {
		canonical, err := p.normalizer.Normalize(id, c.Known())
		if err != nil {
			fs.AddProperty(pred, "invalid identifier %s: %v", id, err)
			continue
		}
		if canonical == id {
			continue
		}
		if c.Graph.Contains(pred, resource.NamedNode(canonical)) {
			c.Graph.DeleteValue(pred, resource.NamedNode(id))
			continue
		}
		c.Graph.Replace(pred, resource.NamedNode(id), resource.NamedNode(canonical))
	}
	return fs.Err()
}
