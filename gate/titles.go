package gate

import (
	"context"
	"sort"
	"strings"

	"github.com/c360studio/semgate/resource"
	"github.com/c360studio/semgate/rules"
	"github.com/c360studio/semgate/vocabulary/repo"
)

// titleSources are tried in order when a resource has no title. Values of
// the predicates in one group are joined per language.
var titleSources = [][]string{
	{repo.SchemaGivenName, repo.SchemaFamilyName},
	{repo.FOAFGivenName, repo.FOAFFamilyName},
	{repo.SchemaName},
	{repo.FOAFName},
	{repo.DCTitle},
	{repo.DCTermsTitle},
	{repo.RDFSLabel},
	{repo.SKOSPrefLabel},
}

// checkAndDeriveTitles enforces one non-empty title per language and
// synthesizes titles from alternate properties when none exist.
func (p *Pipeline) checkAndDeriveTitles(_ context.Context, c *Context) error {
	pred := p.cfg.Schema.Title
	name := localName(pred)
	titles := c.Graph.Literals(pred)

	if len(titles) == 0 {
		if p.deriveTitles(c.Graph, pred) {
			return nil
		}
		return rules.Failf("missing %s property", name)
	}

	var fs rules.Failures
	seen := make(map[string]int)
	for _, t := range titles {
		if strings.TrimSpace(t.Value) == "" {
			fs.AddProperty(pred, "empty %s property", name)
			continue
		}
		seen[t.Lang]++
	}
	langs := make([]string, 0, len(seen))
	for lang, n := range seen {
		if n > 1 {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	for _, lang := range langs {
		fs.Addf("more than one %s property for language %q", name, lang)
	}
	return fs.Err()
}

// deriveTitles installs one title per language from the first source group
// that yields any non-empty value.
func (p *Pipeline) deriveTitles(g *resource.Graph, pred string) bool {
	for _, group := range titleSources {
		buckets := make(map[string][]string)
		var order []string
		for _, source := range group {
			if source == pred {
				continue
			}
			for _, v := range g.Literals(source) {
				if _, ok := buckets[v.Lang]; !ok {
					order = append(order, v.Lang)
				}
				buckets[v.Lang] = append(buckets[v.Lang], v.Value)
			}
		}

		installed := false
		for _, lang := range order {
			title := strings.TrimSpace(strings.Join(buckets[lang], " "))
			if title == "" {
				continue
			}
			g.Add(pred, resource.Literal(title, lang, ""))
			installed = true
		}
		if installed {
			return true
		}
	}
	return false
}

// localName returns the part of an IRI after the last '#' or '/'.
func localName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/"); i >= 0 && i < len(iri)-1 {
		return iri[i+1:]
	}
	return iri
}
