// Package identifier canonicalizes identifier URIs using namespace rules.
//
// Normalization is idempotent: normalizing an already-canonical identifier
// returns it unchanged.
package identifier

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalid is wrapped by every normalization error.
var ErrInvalid = errors.New("invalid identifier")

// Normalizer canonicalizes identifier URIs.
type Normalizer interface {
	// Normalize returns the canonical form of uri. In strict mode any
	// problem is an error; otherwise the input is returned unchanged.
	Normalize(uri string, strict bool) (string, error)
}

// Rule maps the spellings of one identifier namespace onto its canonical
// prefix.
type Rule struct {
	Name string `yaml:"name" json:"name"`
	// Canonical is the prefix every match is rewritten to.
	Canonical string `yaml:"canonical" json:"canonical"`
	// Aliases are alternative prefixes, matched case-insensitively.
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	// Local optionally constrains the part after the prefix.
	Local string `yaml:"local,omitempty" json:"local,omitempty"`
	// Upper folds the local part to upper case (e.g. ORCID check digit).
	Upper bool `yaml:"upper,omitempty" json:"upper,omitempty"`
}

type compiledRule struct {
	rule  Rule
	local *regexp.Regexp
}

type prefix struct {
	value string
	rule  int
}

// RuleNormalizer applies namespace rules, falling back to generic URI
// canonicalization (lower-case scheme and host, IDNA host, default port
// removal).
type RuleNormalizer struct {
	rules    []compiledRule
	prefixes []prefix
}

// DefaultRules covers common scholarly identifier schemes.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:      "doi",
			Canonical: "https://doi.org/",
			Aliases:   []string{"http://doi.org/", "http://dx.doi.org/", "https://dx.doi.org/", "doi:"},
			Local:     `^10\.[0-9]{4,9}/\S+$`,
		},
		{
			Name:      "orcid",
			Canonical: "https://orcid.org/",
			Aliases:   []string{"http://orcid.org/", "orcid:"},
			Local:     `^[0-9]{4}-[0-9]{4}-[0-9]{4}-[0-9]{3}[0-9X]$`,
			Upper:     true,
		},
		{
			Name:      "ror",
			Canonical: "https://ror.org/",
			Aliases:   []string{"http://ror.org/"},
			Local:     `^0[a-z0-9]{8}$`,
		},
		{
			Name:      "handle",
			Canonical: "https://hdl.handle.net/",
			Aliases:   []string{"http://hdl.handle.net/", "hdl:"},
			Local:     `^[0-9.]+/\S+$`,
		},
	}
}

// NewRuleNormalizer compiles rules.
func NewRuleNormalizer(rules []Rule) (*RuleNormalizer, error) {
	n := &RuleNormalizer{}
	for i, r := range rules {
		if r.Canonical == "" {
			return nil, fmt.Errorf("identifier rule %q: canonical prefix is required", r.Name)
		}
		cr := compiledRule{rule: r}
		if r.Local != "" {
			re, err := regexp.Compile(r.Local)
			if err != nil {
				return nil, fmt.Errorf("identifier rule %q: %w", r.Name, err)
			}
			cr.local = re
		}
		n.rules = append(n.rules, cr)
		n.prefixes = append(n.prefixes, prefix{value: strings.ToLower(r.Canonical), rule: i})
		for _, a := range r.Aliases {
			n.prefixes = append(n.prefixes, prefix{value: strings.ToLower(a), rule: i})
		}
	}
	sort.SliceStable(n.prefixes, func(i, j int) bool {
		return len(n.prefixes[i].value) > len(n.prefixes[j].value)
	})
	return n, nil
}

// Normalize implements Normalizer.
func (n *RuleNormalizer) Normalize(uri string, strict bool) (string, error) {
	out, err := n.normalize(strings.TrimSpace(uri))
	if err != nil {
		if strict {
			return "", err
		}
		return uri, nil
	}
	return out, nil
}

func (n *RuleNormalizer) normalize(uri string) (string, error) {
	if uri == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalid)
	}
	lower := strings.ToLower(uri)
	for _, p := range n.prefixes {
		if !strings.HasPrefix(lower, p.value) {
			continue
		}
		cr := n.rules[p.rule]
		local := uri[len(p.value):]
		if cr.rule.Upper {
			local = strings.ToUpper(local)
		}
		if cr.local != nil && !cr.local.MatchString(local) {
			return "", fmt.Errorf("%w: %s does not match %s syntax", ErrInvalid, uri, cr.rule.Name)
		}
		return cr.rule.Canonical + local, nil
	}
	return canonicalURI(uri)
}

func canonicalURI(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("%w: %s has no scheme", ErrInvalid, raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Opaque != "" {
		return u.String(), nil
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %s has no host", ErrInvalid, raw)
	}
	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("%w: host %s: %v", ErrInvalid, host, err)
		}
		host = ascii
	}
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		u.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}
	return u.String(), nil
}

var _ Normalizer = (*RuleNormalizer)(nil)
