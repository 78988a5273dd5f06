package identifier

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefault(t *testing.T) *RuleNormalizer {
	t.Helper()
	n, err := NewRuleNormalizer(DefaultRules())
	require.NoError(t, err)
	return n
}

func TestNormalize(t *testing.T) {
	n := newDefault(t)
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"doi alias", "doi:10.1234/abc", "https://doi.org/10.1234/abc"},
		{"doi dx", "http://dx.doi.org/10.1234/abc", "https://doi.org/10.1234/abc"},
		{"doi upper prefix", "HTTPS://DOI.ORG/10.1234/abc", "https://doi.org/10.1234/abc"},
		{"orcid check digit", "http://orcid.org/0000-0002-1825-009x", "https://orcid.org/0000-0002-1825-009X"},
		{"handle", "hdl:21.11101/abc", "https://hdl.handle.net/21.11101/abc"},
		{"generic host case", "HTTP://Example.ORG/Path", "http://example.org/Path"},
		{"generic default port", "https://example.org:443/x", "https://example.org/x"},
		{"generic keeps port", "https://example.org:8443/x", "https://example.org:8443/x"},
		{"idna host", "https://bücher.example/x", "https://xn--bcher-kva.example/x"},
		{"ipv6 host with port", "http://[::1]:8080/x", "http://[::1]:8080/x"},
		{"ipv6 host default port", "http://[::1]:80/x", "http://[::1]/x"},
		{"ipv4 host", "http://127.0.0.1:9000/x", "http://127.0.0.1:9000/x"},
		{"urn", "URN:isbn:0451450523", "urn:isbn:0451450523"},
		{"surrounding space", "  https://example.org/a ", "https://example.org/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.input, true)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := newDefault(t)
	inputs := []string{
		"doi:10.1234/abc",
		"http://orcid.org/0000-0002-1825-009x",
		"HTTP://Example.ORG:80/Path?q=1#frag",
		"https://bücher.example/x",
		"hdl:21.11101/abc",
		"mailto:someone@example.org",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			once, err := n.Normalize(in, true)
			require.NoError(t, err)
			twice, err := n.Normalize(once, true)
			require.NoError(t, err)
			assert.Equal(t, once, twice)
		})
	}
}

func TestNormalizeStrictness(t *testing.T) {
	n := newDefault(t)
	bad := []string{
		"",
		"no-scheme",
		"doi:not-a-doi",
		"https://orcid.org/1234",
		"http:///nohost",
	}
	for _, in := range bad {
		t.Run(in, func(t *testing.T) {
			_, err := n.Normalize(in, true)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))

			got, err := n.Normalize(in, false)
			require.NoError(t, err)
			assert.Equal(t, in, got, "best-effort mode returns input unchanged")
		})
	}
}

func TestNewRuleNormalizerValidation(t *testing.T) {
	_, err := NewRuleNormalizer([]Rule{{Name: "x"}})
	assert.Error(t, err)

	_, err = NewRuleNormalizer([]Rule{{Name: "x", Canonical: "https://x/", Local: "("}})
	assert.Error(t, err)
}
