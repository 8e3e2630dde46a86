package wsg_test

import (
	"testing"

	"eve.evalgo.org/internal/chash"
	"eve.evalgo.org/internal/id"
	"eve.evalgo.org/internal/vclock"
	"eve.evalgo.org/internal/wsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(kind wsg.NodeKind) wsg.NodeWeight {
	return wsg.NodeWeight{
		NodeID: id.New(),
		Kind:   kind,
		Hash:   chash.Of([]byte(kind.String())),
		Clock:  vclock.New(),
	}
}

func TestAddEdgeRejectsMissingEndpoints(t *testing.T) {
	g := wsg.New()
	n := node(wsg.KindComponent)
	g.AddNode(n)

	err := g.AddEdge(n.NodeID, id.New(), wsg.EdgeWeight{Kind: wsg.EdgeContain})
	assert.Error(t, err)
}

func TestAddEdgeRejectsSelfLoopForContain(t *testing.T) {
	g := wsg.New()
	n := node(wsg.KindComponent)
	g.AddNode(n)

	err := g.AddEdge(n.NodeID, n.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain})
	assert.Error(t, err)
}

// A non-Contain self-loop is legitimate: a value can reference itself
// through its own prototype argument (the dvg package's self-dependency
// policy exists precisely to schedule that case).
func TestAddEdgeAllowsSelfLoopForNonContainKinds(t *testing.T) {
	g := wsg.New()
	n := node(wsg.KindAttributeValue)
	g.AddNode(n)

	err := g.AddEdge(n.NodeID, n.NodeID, wsg.EdgeWeight{Kind: wsg.EdgePrototypeArgumentValue})
	assert.NoError(t, err)
}

func TestAddEdgeRejectsCycle(t *testing.T) {
	g := wsg.New()
	a, b, c := node(wsg.KindComponent), node(wsg.KindComponent), node(wsg.KindComponent)
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(c)
	require.NoError(t, g.AddEdge(a.NodeID, b.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain}))
	require.NoError(t, g.AddEdge(b.NodeID, c.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain}))

	err := g.AddEdge(c.NodeID, a.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain})
	assert.Error(t, err)
}

func TestOutgoingOrderedByOrdinalThenID(t *testing.T) {
	g := wsg.New()
	parent := node(wsg.KindProp)
	childA := node(wsg.KindProp)
	childB := node(wsg.KindProp)
	g.AddNode(parent)
	g.AddNode(childA)
	g.AddNode(childB)

	require.NoError(t, g.AddEdge(parent.NodeID, childB.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain, Ordinal: 1}))
	require.NoError(t, g.AddEdge(parent.NodeID, childA.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain, Ordinal: 0}))

	out := g.Outgoing(parent.NodeID, wsg.EdgeContain)
	require.Len(t, out, 2)
	assert.Equal(t, childA.NodeID, out[0])
	assert.Equal(t, childB.NodeID, out[1])
}

func TestRemoveNodeDropsDanglingEdges(t *testing.T) {
	g := wsg.New()
	a, b := node(wsg.KindComponent), node(wsg.KindAttributeValue)
	g.AddNode(a)
	g.AddNode(b)
	require.NoError(t, g.AddEdge(a.NodeID, b.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain}))

	g.RemoveNode(b.NodeID, b.Clock)

	assert.Empty(t, g.Outgoing(a.NodeID, wsg.EdgeContain))
	_, ok := g.GetNode(b.NodeID)
	assert.False(t, ok)
}

func TestReplaceReferencesRewritesIncomingEdges(t *testing.T) {
	g := wsg.New()
	parent := node(wsg.KindComponent)
	oldChild := node(wsg.KindAttributeValue)
	g.AddNode(parent)
	g.AddNode(oldChild)
	require.NoError(t, g.AddEdge(parent.NodeID, oldChild.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain}))

	newChild := oldChild
	newChild.NodeID = id.New()
	newChild.Hash = chash.Of([]byte("new-content"))

	g.ReplaceReferences(oldChild.NodeID, newChild.NodeID, newChild)

	out := g.Outgoing(parent.NodeID, wsg.EdgeContain)
	require.Len(t, out, 1)
	assert.Equal(t, newChild.NodeID, out[0])
	_, stillThere := g.GetNode(oldChild.NodeID)
	assert.False(t, stillThere)
}

func TestCategoryIndexLookup(t *testing.T) {
	g := wsg.New()
	cat := node(wsg.KindCategory)
	cat.Category = &wsg.CategoryPayload{Kind: wsg.KindComponent}
	g.AddNode(cat)

	got, ok := g.GetCategoryNode(wsg.KindComponent)
	require.True(t, ok)
	assert.Equal(t, cat.NodeID, got)
}
