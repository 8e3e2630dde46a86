package dvg_test

import (
	"testing"

	"eve.evalgo.org/internal/chash"
	"eve.evalgo.org/internal/dvg"
	"eve.evalgo.org/internal/id"
	"eve.evalgo.org/internal/vclock"
	"eve.evalgo.org/internal/wsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNode(kind wsg.NodeKind) wsg.NodeWeight {
	return wsg.NodeWeight{NodeID: id.New(), Kind: kind, Hash: chash.Of([]byte(kind.String())), Clock: vclock.New()}
}

// buildChain builds a component with three attribute values v1 <- v2 <- v3
// (v2 reads v1, v3 reads v2), each controlling (has a dynamic-func
// prototype), matching spec §8 scenario 4's expected order v1, v2, v3.
func buildChain(t *testing.T) (*wsg.Graph, []id.ID) {
	t.Helper()
	g := wsg.New()

	compCat := newNode(wsg.KindCategory)
	compCat.Category = &wsg.CategoryPayload{Kind: wsg.KindComponent}
	g.AddNode(compCat)

	comp := newNode(wsg.KindComponent)
	comp.Component = &wsg.ComponentPayload{Name: "c1"}
	g.AddNode(comp)
	require.NoError(t, g.AddEdge(compCat.NodeID, comp.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeUse}))

	values := make([]wsg.NodeWeight, 3)
	for i := range values {
		v := newNode(wsg.KindAttributeValue)
		v.AttributeValue = &wsg.AttributeValuePayload{IsDynamicFunc: true}
		g.AddNode(v)
		require.NoError(t, g.AddEdge(comp.NodeID, v.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain, Ordinal: i}))
		values[i] = v
	}

	for i := 1; i < len(values); i++ {
		proto := newNode(wsg.KindAttributePrototype)
		proto.AttributePrototype = &wsg.AttributePrototypePayload{}
		g.AddNode(proto)
		require.NoError(t, g.AddEdge(values[i].NodeID, proto.NodeID, wsg.EdgeWeight{Kind: wsg.EdgePrototype}))

		arg := newNode(wsg.KindAttributePrototypeArgument)
		arg.AttributePrototypeArgument = &wsg.AttributePrototypeArgumentPayload{ArgumentName: "input"}
		g.AddNode(arg)
		require.NoError(t, g.AddEdge(proto.NodeID, arg.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeUse}))
		require.NoError(t, g.AddEdge(arg.NodeID, values[i-1].NodeID, wsg.EdgeWeight{Kind: wsg.EdgePrototypeArgumentValue}))
	}

	ids := make([]id.ID, len(values))
	for i, v := range values {
		ids[i] = v.NodeID
	}
	return g, ids
}

// TestIndependentValuesOrdersByDependency covers spec §8 scenario 4: seeding
// the graph from only v1 (the value actually edited) still discovers v2 and
// v3 by walking forward to their consumers, in dependency order.
func TestIndependentValuesOrdersByDependency(t *testing.T) {
	snap, values := buildChain(t)
	d := dvg.Build(snap, []id.ID{values[0]})

	order := d.IndependentValues()
	require.Len(t, order, 3)
	assert.Equal(t, values[0], order[0])
	assert.Equal(t, values[1], order[1])
	assert.Equal(t, values[2], order[2])
}

// TestMustExecuteIsNotPropagatedToDiscoveredConsumers covers the corrected
// must-execute semantics: only the seeded initial id is flagged, since it is
// the value actually known to have changed. v2 and v3 are pulled into the
// graph because they must be revisited, but nothing observed about them
// individually requires their own function to actually re-run.
func TestMustExecuteIsNotPropagatedToDiscoveredConsumers(t *testing.T) {
	snap, values := buildChain(t)
	d := dvg.Build(snap, []id.ID{values[0]})

	assert.True(t, d.MustExecute(values[0]))
	assert.False(t, d.MustExecute(values[1]))
	assert.False(t, d.MustExecute(values[2]))
}

// TestObjectChildIsPrunedFromGraph models spec §8 scenario 5: an object
// attribute value with three children, only one of which feeds a consumer.
// The two childless children are pruned entirely; the one with a consumer,
// and the object itself (which gains a dependency on it), both survive.
func TestObjectChildIsPrunedFromGraph(t *testing.T) {
	g := wsg.New()

	compCat := newNode(wsg.KindCategory)
	compCat.Category = &wsg.CategoryPayload{Kind: wsg.KindComponent}
	g.AddNode(compCat)

	comp := newNode(wsg.KindComponent)
	comp.Component = &wsg.ComponentPayload{Name: "c1"}
	g.AddNode(comp)
	require.NoError(t, g.AddEdge(compCat.NodeID, comp.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeUse}))

	objectValue := newNode(wsg.KindAttributeValue)
	objectValue.AttributeValue = &wsg.AttributeValuePayload{}
	g.AddNode(objectValue)
	require.NoError(t, g.AddEdge(comp.NodeID, objectValue.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain}))

	objectProp := newNode(wsg.KindProp)
	objectProp.Prop = &wsg.PropPayload{Name: "domain", Kind: wsg.PropObject}
	g.AddNode(objectProp)
	require.NoError(t, g.AddEdge(objectValue.NodeID, objectProp.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeProxy}))

	children := make([]wsg.NodeWeight, 3)
	for i := range children {
		c := newNode(wsg.KindAttributeValue)
		c.AttributeValue = &wsg.AttributeValuePayload{}
		g.AddNode(c)
		require.NoError(t, g.AddEdge(objectValue.NodeID, c.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain, Ordinal: i}))
		children[i] = c
	}
	feedingChild := children[0]

	derived := newNode(wsg.KindAttributeValue)
	derived.AttributeValue = &wsg.AttributeValuePayload{IsDynamicFunc: true}
	g.AddNode(derived)
	require.NoError(t, g.AddEdge(comp.NodeID, derived.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain, Ordinal: 1}))

	proto := newNode(wsg.KindAttributePrototype)
	proto.AttributePrototype = &wsg.AttributePrototypePayload{}
	g.AddNode(proto)
	require.NoError(t, g.AddEdge(derived.NodeID, proto.NodeID, wsg.EdgeWeight{Kind: wsg.EdgePrototype}))

	arg := newNode(wsg.KindAttributePrototypeArgument)
	arg.AttributePrototypeArgument = &wsg.AttributePrototypeArgumentPayload{ArgumentName: "input"}
	g.AddNode(arg)
	require.NoError(t, g.AddEdge(proto.NodeID, arg.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeUse}))
	require.NoError(t, g.AddEdge(arg.NodeID, feedingChild.NodeID, wsg.EdgeWeight{Kind: wsg.EdgePrototypeArgumentValue}))

	d := dvg.Build(g, []id.ID{objectValue.NodeID})

	dump := d.Dump()
	kept := make(map[id.ID]bool, len(dump.Values))
	for _, v := range dump.Values {
		kept[v.ValueID] = true
	}

	assert.Len(t, dump.Values, 3)
	assert.True(t, kept[objectValue.NodeID], "object value itself should survive")
	assert.True(t, kept[feedingChild.NodeID], "the child feeding a consumer should survive")
	assert.True(t, kept[derived.NodeID], "the consumer should survive")
	assert.False(t, kept[children[1].NodeID], "a childless, dependency-free object child should be pruned")
	assert.False(t, kept[children[2].NodeID], "a childless, dependency-free object child should be pruned")
}

// TestSelfDependentValueIsAlwaysImmediatelyReady covers a value whose own
// prototype reads itself as an argument: the self-reference is recorded but
// never blocks the value's own readiness.
func TestSelfDependentValueIsAlwaysImmediatelyReady(t *testing.T) {
	g := wsg.New()

	compCat := newNode(wsg.KindCategory)
	compCat.Category = &wsg.CategoryPayload{Kind: wsg.KindComponent}
	g.AddNode(compCat)

	comp := newNode(wsg.KindComponent)
	comp.Component = &wsg.ComponentPayload{Name: "c1"}
	g.AddNode(comp)
	require.NoError(t, g.AddEdge(compCat.NodeID, comp.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeUse}))

	v := newNode(wsg.KindAttributeValue)
	v.AttributeValue = &wsg.AttributeValuePayload{IsDynamicFunc: true}
	g.AddNode(v)
	require.NoError(t, g.AddEdge(comp.NodeID, v.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain}))

	proto := newNode(wsg.KindAttributePrototype)
	g.AddNode(proto)
	require.NoError(t, g.AddEdge(v.NodeID, proto.NodeID, wsg.EdgeWeight{Kind: wsg.EdgePrototype}))

	arg := newNode(wsg.KindAttributePrototypeArgument)
	g.AddNode(arg)
	require.NoError(t, g.AddEdge(proto.NodeID, arg.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeUse}))
	require.NoError(t, g.AddEdge(arg.NodeID, v.NodeID, wsg.EdgeWeight{Kind: wsg.EdgePrototypeArgumentValue}))

	d := dvg.Build(g, []id.ID{v.NodeID})
	order := d.IndependentValues()
	require.Len(t, order, 1)
	assert.Equal(t, v.NodeID, order[0])
}

// TestIndependentValuesAppendsCycleMembersAtEnd covers spec §4.E: values
// that never reach in-degree 0 (mutual dynamic-function dependents) are
// still reported, appended after every value actually resolved, in
// ascending-id order.
func TestIndependentValuesAppendsCycleMembersAtEnd(t *testing.T) {
	g := wsg.New()

	compCat := newNode(wsg.KindCategory)
	compCat.Category = &wsg.CategoryPayload{Kind: wsg.KindComponent}
	g.AddNode(compCat)

	comp := newNode(wsg.KindComponent)
	comp.Component = &wsg.ComponentPayload{Name: "c1"}
	g.AddNode(comp)
	require.NoError(t, g.AddEdge(compCat.NodeID, comp.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeUse}))

	va := newNode(wsg.KindAttributeValue)
	va.AttributeValue = &wsg.AttributeValuePayload{IsDynamicFunc: true}
	g.AddNode(va)
	require.NoError(t, g.AddEdge(comp.NodeID, va.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain, Ordinal: 0}))

	vb := newNode(wsg.KindAttributeValue)
	vb.AttributeValue = &wsg.AttributeValuePayload{IsDynamicFunc: true}
	g.AddNode(vb)
	require.NoError(t, g.AddEdge(comp.NodeID, vb.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeContain, Ordinal: 1}))

	link := func(consumer, source wsg.NodeWeight) {
		proto := newNode(wsg.KindAttributePrototype)
		proto.AttributePrototype = &wsg.AttributePrototypePayload{}
		g.AddNode(proto)
		require.NoError(t, g.AddEdge(consumer.NodeID, proto.NodeID, wsg.EdgeWeight{Kind: wsg.EdgePrototype}))

		arg := newNode(wsg.KindAttributePrototypeArgument)
		arg.AttributePrototypeArgument = &wsg.AttributePrototypeArgumentPayload{ArgumentName: "input"}
		g.AddNode(arg)
		require.NoError(t, g.AddEdge(proto.NodeID, arg.NodeID, wsg.EdgeWeight{Kind: wsg.EdgeUse}))
		require.NoError(t, g.AddEdge(arg.NodeID, source.NodeID, wsg.EdgeWeight{Kind: wsg.EdgePrototypeArgumentValue}))
	}
	link(vb, va)
	link(va, vb)

	d := dvg.Build(g, []id.ID{va.NodeID})
	order := d.IndependentValues()

	require.Len(t, order, 2)
	expected := []id.ID{va.NodeID, vb.NodeID}
	if id.Less(vb.NodeID, va.NodeID) {
		expected = []id.ID{vb.NodeID, va.NodeID}
	}
	assert.Equal(t, expected, order)
}
