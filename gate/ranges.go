package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/semgate/datatype"
	"github.com/c360studio/semgate/ontology"
	"github.com/c360studio/semgate/resolver"
	"github.com/c360studio/semgate/resource"
	"github.com/c360studio/semgate/rules"
)

// maintainPropertyRange coerces every value into its property's range:
// vocabulary labels become concept URIs, verified entity URIs are resolved,
// and literals are cast to the first supported range datatype.
func (p *Pipeline) maintainPropertyRange(ctx context.Context, c *Context) error {
	var fs rules.Failures
	for i := range c.Graph.Statements {
		st := &c.Graph.Statements[i]
		prop, ok := p.property(c, st.Predicate)
		if !ok || (len(prop.Range) == 0 && prop.Vocabs == "") {
			continue
		}

		var err error
		switch {
		case prop.Vocabs != "":
			err = p.resolveConcept(prop, &st.Object)
		case prop.Type == ontology.TypeObject:
			err = p.resolveEntity(ctx, prop, &st.Object)
		default:
			err = p.coerceLiteral(c, prop, &st.Object)
		}
		if err == nil {
			continue
		}
		if !rules.IsFailure(err) {
			return err
		}
		var f *rules.Failure
		errors.As(rules.WithProperty(err, st.Predicate), &f)
		fs = append(fs, f)
	}
	return fs.Err()
}

// resolveConcept accepts concept URIs and rewrites matching labels.
func (p *Pipeline) resolveConcept(prop *ontology.Property, v *resource.Value) error {
	vocab, ok := p.onto.Vocabulary(prop.Vocabs)
	if !ok {
		return rules.NewFatalError(fmt.Errorf("property %s references unknown vocabulary %q", prop.Name(), prop.Vocabs))
	}
	if v.IsNamedNode() {
		if _, ok := vocab.Concept(v.Value); ok {
			return nil
		}
		return rules.Failf("%s is not a concept of vocabulary %s", v.Value, vocab.ID)
	}
	concept, ok := vocab.ByLabel(v.Value, v.Lang)
	if !ok {
		return rules.Failf("%q is not a label of vocabulary %s", v.Value, vocab.ID)
	}
	*v = resource.NamedNode(concept.URI)
	return nil
}

// resolveEntity verifies values of properties ranging over verified
// classes and rewrites them to the resolver's canonical form.
func (p *Pipeline) resolveEntity(ctx context.Context, prop *ontology.Property, v *resource.Value) error {
	if !v.IsNamedNode() || p.resolver == nil {
		return nil
	}
	class, ok := p.onto.Class(prop.RangeClass())
	if !ok || !class.Verified {
		return nil
	}
	canonical, err := p.resolver.Resolve(ctx, class.URI, v.Value)
	if errors.Is(err, resolver.ErrUnresolvable) {
		return rules.Failf("could not resolve %s", v.Value)
	}
	if err != nil {
		return err
	}
	if canonical != v.Value {
		p.logger.Debug("Rewrote resolved URI", "from", v.Value, "to", canonical)
		v.Value = canonical
	}
	return nil
}

// coerceLiteral brings a literal into the declared datatype range.
func (p *Pipeline) coerceLiteral(c *Context, prop *ontology.Property, v *resource.Value) error {
	if !v.IsLiteral() {
		return nil
	}
	dt := v.DatatypeOrDefault()

	if inRange(prop, dt) {
		if datatype.Supported(dt) {
			cast, err := datatype.Cast(v.Value, dt)
			if err != nil {
				return castFailure(err)
			}
			v.Value = cast
		}
		return nil
	}

	if prop.InRange(datatype.String) || prop.InRange(datatype.LangString) {
		if v.Lang != "" {
			v.Datatype = ""
		} else {
			v.Datatype = datatype.String
		}
		return nil
	}

	target := prop.Range[0]
	for _, r := range prop.Range {
		if datatype.Supported(r) {
			target = r
			break
		}
	}
	cast, err := datatype.Cast(v.Value, target)
	switch {
	case err == nil:
		*v = resource.Literal(cast, "", target)
		return nil
	case errors.Is(err, datatype.ErrUnsupported):
		p.logger.Debug("Literal left uncoerced",
			"resource", c.ResourceID, "property", prop.Name(), "datatype", target, "error", err)
		return nil
	case errors.Is(err, datatype.ErrUnknownDatatype):
		return rules.NewFatalError(err)
	default:
		return castFailure(err)
	}
}

// inRange treats untagged strings and language-tagged strings as one
// datatype family.
func inRange(prop *ontology.Property, dt string) bool {
	if prop.InRange(dt) {
		return true
	}
	return dt == datatype.LangString && prop.InRange(datatype.String)
}

func castFailure(err error) error {
	if datatype.IsCastError(err) {
		return rules.Failf("%s", err.Error())
	}
	return err
}
