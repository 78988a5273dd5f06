package resource

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	title = "http://purl.org/dc/terms/title"
	ident = "http://schema.org/identifier"
)

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same literal", Literal("x", "en", ""), Literal("x", "en", ""), true},
		{"different lang", Literal("x", "en", ""), Literal("x", "de", ""), false},
		{"implicit string", Literal("x", "", ""), Literal("x", "", XSDString), true},
		{"literal vs uri", Literal("x", "", ""), NamedNode("x"), false},
		{"uri ignores lang", NamedNode("http://a"), Value{Kind: KindNamedNode, Value: "http://a", Lang: "en"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
		})
	}
}

func TestGraphMutation(t *testing.T) {
	g := New("http://repo/r/1")
	g.Add(title, Literal("A", "en", ""))
	g.Add(title, Literal("A", "en", ""))
	g.Add(title, Literal("B", "de", ""))
	g.Add(ident, NamedNode("http://id/1"))

	assert.Equal(t, 4, g.Len(), "graph keeps duplicates")
	assert.Len(t, g.Literals(title), 3)
	assert.Equal(t, []string{"http://id/1"}, g.NamedNodes(ident))
	assert.Equal(t, []string{ident, title}, g.Predicates())

	assert.False(t, g.AddUnique(title, Literal("B", "de", "")))
	assert.Equal(t, 2, g.DeleteValue(title, Literal("A", "en", "")))
	assert.Equal(t, 1, g.Replace(title, Literal("B", "de", ""), Literal("C", "de", "")))

	v, ok := g.First(title)
	require.True(t, ok)
	assert.Equal(t, "C", v.Value)

	assert.Equal(t, 1, g.Replace(ident, NamedNode("http://id/1"), NamedNode("http://id/2")))
	assert.Equal(t, []string{"http://id/2"}, g.NamedNodes(ident))

	assert.Equal(t, 1, g.Delete(title))
	assert.False(t, g.Has(title))
}

func TestGraphCloneIsIndependent(t *testing.T) {
	g := New("n")
	g.Add(title, Literal("A", "", ""))
	c := g.Clone()
	c.Replace(title, Literal("A", "", ""), Literal("B", "", ""))

	assert.Equal(t, "A", g.Statements[0].Object.Value)
	assert.Equal(t, "B", c.Statements[0].Object.Value)
}

func TestGraphClasses(t *testing.T) {
	g := New("n")
	g.Add(RDFType, NamedNode("http://o/B"))
	g.Add(RDFType, NamedNode("http://o/A"))
	g.Add(RDFType, NamedNode("http://o/B"))

	assert.Equal(t, []string{"http://o/A", "http://o/B"}, g.Classes())
	assert.True(t, g.HasClass("http://x", "http://o/A"))
	assert.False(t, g.HasClass("http://x"))
}

func TestGraphJSON(t *testing.T) {
	raw := `{"node":"http://repo/r/1","statements":[
		{"predicate":"http://purl.org/dc/terms/title","object":{"type":"literal","value":"T","lang":"en"}},
		{"predicate":"http://schema.org/identifier","object":{"type":"uri","value":"http://id/1"}}]}`

	var g Graph
	require.NoError(t, json.Unmarshal([]byte(raw), &g))
	assert.Equal(t, "http://repo/r/1", g.Node)
	assert.True(t, g.Contains(title, Literal("T", "en", "")))
	assert.Equal(t, []string{"http://id/1"}, g.NamedNodes(ident))
}
