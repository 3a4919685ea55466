package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddEdgeSameDomain(t *testing.T) {
	g := New()
	a := g.AddNode("a", KindBase, nil)
	b := g.AddNode("b", KindInternal, nil)
	a.Domain, b.Domain = 0, 0

	g.AddEdge(a.Index, b.Index)

	assert.Equal(t, []NodeIndex{b.Index}, a.Children)
	assert.Equal(t, []NodeIndex{a.Index}, b.Parents)
	assert.Equal(t, []NodeIndex{a.Index}, g.Parents(b.Index))
}

func TestAddEdgeCrossDomain(t *testing.T) {
	g := New()
	a := g.AddNode("a", KindBase, nil)
	b := g.AddNode("b", KindIngress, nil)
	a.Domain, b.Domain = 0, 1

	g.AddEdge(a.Index, b.Index)

	assert.Empty(t, a.Children, "cross-domain successors stay out of the local Children list")
	assert.Equal(t, []NodeIndex{a.Index}, b.Parents)
}

func TestIsStateful(t *testing.T) {
	cases := []struct {
		kind   Kind
		stateful bool
	}{
		{KindBase, false},
		{KindIngress, true},
		{KindEgress, false},
		{KindSharder, false},
		{KindReader, true},
		{KindInternal, true},
	}
	for _, c := range cases {
		n := &Node{Kind: c.kind}
		assert.Equal(t, c.stateful, n.IsStateful(), c.kind.String())
	}
}

func TestLenAndNode(t *testing.T) {
	g := New()
	n := g.AddNode("n", KindSource, nil)
	assert.Equal(t, 1, g.Len())
	assert.Same(t, n, g.Node(n.Index))
	assert.Nil(t, g.Node(NodeIndex(999)))
}
