// Package dvg implements the Dependent Value Graph (spec §3, §4.E): a
// derived, per-request dependency graph over a Workspace Snapshot Graph's
// AttributeValue nodes, used to compute the order attribute values must be
// recalculated in after an edit.
//
// The topological-consumption algorithm generalizes graph/dag.go's
// GetExecutionOrder (Kahn's algorithm over a slice of actions) to an
// incrementally-consumable independent_values() walk over attribute values.
// Construction itself follows original_source's
// dependent_value_graph.rs DependentValueGraph::new(initial_ids): the graph
// is grown outward from a frontier of "initially changed" ids rather than
// by walking the whole snapshot, so its size (and P5's monotonicity
// property) is governed by what actually changed.
package dvg

import (
	"sort"

	"eve.evalgo.org/internal/id"
	"eve.evalgo.org/internal/wsg"
)

// node is one AttributeValue's position in the derived dependency graph.
type node struct {
	valueID         id.ID
	dependencies    map[id.ID]struct{}
	dependents      map[id.ID]struct{}
	mustExecute     bool
	isSelfDependent bool
}

// Graph is the Dependent Value Graph derived from a single WSG snapshot. It
// is built fresh for every attribute-value update batch (spec §4.E: "cheap
// to rebuild, not maintained incrementally across edits").
type Graph struct {
	nodes map[id.ID]*node
}

// New returns an empty graph, as if built from no initial ids.
func New() *Graph {
	return &Graph{nodes: make(map[id.ID]*node)}
}

// workQueueKind tags why a value entered the build work queue, mirroring
// original_source's WorkQueueValue: the reason governs whether the value
// can be pruned once processed.
type workQueueKind int

const (
	wqInitial workQueueKind = iota
	wqObjectChild
	wqDiscovered
)

type workItem struct {
	valueID id.ID
	kind    workQueueKind
}

// Build grows a Dependent Value Graph outward from initialIDs (spec §4.E
// step 1-2): AttributeValue ids are seeded directly, flagged must-execute
// iff their own prototype is dynamic; Secret ids are expanded to their
// direct dependent attribute values, which are always flagged must-execute
// regardless of their own prototype (a secret changing always forces its
// direct readers to re-run, spec §4.E step 1). From there, step 3 walks
// outward to every consumer so the graph reflects everything that needs
// recomputing, without re-flagging those consumers must-execute themselves
// — must-execute distinguishes "the function must actually run" from
// "structurally included so we know to visit it" (spec §4.E "must-execute
// flag").
func Build(snap *wsg.Graph, initialIDs []id.ID) *Graph {
	g := New()

	var queue []workItem
	for _, valueID := range initialIDs {
		w, ok := snap.GetNode(valueID)
		if !ok {
			continue
		}
		switch w.Kind {
		case wsg.KindAttributeValue:
			n := g.ensureNode(valueID)
			if w.AttributeValue != nil && w.AttributeValue.IsDynamicFunc {
				n.mustExecute = true
			}
			queue = append(queue, workItem{valueID: valueID, kind: wqInitial})
		case wsg.KindSecret:
			for _, consumerID := range consumersOf(snap, valueID, id.None) {
				if _, ok := snap.GetNode(consumerID); !ok {
					continue
				}
				n := g.ensureNode(consumerID)
				n.mustExecute = true
				queue = append(queue, workItem{valueID: consumerID, kind: wqInitial})
			}
		}
	}

	processed := make(map[id.ID]bool)
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if processed[item.valueID] {
			continue
		}
		processed[item.valueID] = true
		g.processValue(snap, item, &queue)
	}

	return g
}

// processValue runs one work-queue entry through spec §4.E step 3:
// resolving what the value is for (Prop vs Socket), enqueueing Object
// children, propagating inferred output-socket data flow, discovering
// prototype-argument consumers, and finally linking the value's parent —
// unless it's an Object child with no dependencies found, which is pruned
// instead (spec §4.E step 3b, §8 scenario 5).
func (g *Graph) processValue(snap *wsg.Graph, item workItem, queue *[]workItem) {
	currentComponentID := componentOf(snap, item.valueID)
	controllingID := controllingValue(snap, item.valueID)
	foundDeps := false

	if propID, ok := proxyProp(snap, item.valueID); ok {
		if p, ok := snap.GetNode(propID); ok && p.Prop != nil && p.Prop.Kind == wsg.PropObject {
			for _, childID := range snap.Outgoing(item.valueID, wsg.EdgeContain) {
				*queue = append(*queue, workItem{valueID: childID, kind: wqObjectChild})
			}
		}
	}

	if socketID, ok := proxySocket(snap, item.valueID); ok {
		if s, ok := snap.GetNode(socketID); ok && s.Socket != nil && s.Socket.Direction == wsg.SocketOutput {
			for _, inputSocketID := range snap.Outgoing(socketID, wsg.EdgeSocket) {
				destComponentID := componentOf(snap, inputSocketID)
				if !shouldDataFlowBetweenComponents(snap, destComponentID, currentComponentID) {
					continue
				}
				for _, consumerAVID := range snap.Incoming(inputSocketID, wsg.EdgeProxy) {
					g.linkConsumer(snap, consumerAVID, controllingID, queue)
					foundDeps = true
				}
			}
		}
	}

	for _, consumerID := range consumersOf(snap, item.valueID, currentComponentID) {
		g.linkConsumer(snap, consumerID, controllingID, queue)
		foundDeps = true
	}

	if item.kind == wqObjectChild && !foundDeps {
		return
	}

	if parentID, ok := parentAttributeValue(snap, controllingID); ok {
		if _, ok := snap.GetNode(parentID); ok {
			g.ensureNode(parentID)
			g.addDependency(parentID, controllingID)
			*queue = append(*queue, workItem{valueID: parentID, kind: wqDiscovered})
		}
	}
}

// linkConsumer records that consumerID's controlling value depends on
// sourceControllingID, then enqueues the consumer's controlling value for
// further processing.
func (g *Graph) linkConsumer(snap *wsg.Graph, consumerID, sourceControllingID id.ID, queue *[]workItem) {
	consumerControlling := controllingValue(snap, consumerID)
	if _, ok := snap.GetNode(consumerControlling); !ok {
		return
	}
	g.ensureNode(consumerControlling)
	g.addDependency(consumerControlling, sourceControllingID)
	*queue = append(*queue, workItem{valueID: consumerControlling, kind: wqDiscovered})
}

// consumersOf returns every AttributeValue id whose prototype reads
// sourceID as an argument source (spec §4.E step 3 "relevant
// AttributePrototypeArguments"), honoring each argument's component
// scoping: an argument with no explicit Targets requires the consumer to
// live in scopeComponentID (the source's own component); one with Targets
// requires the source to be in Targets.SourceComponentID and the consumer
// in Targets.DestinationComponentID. Pass id.None for scopeComponentID when
// the source isn't itself component-scoped (e.g. a Secret), which skips
// the no-Targets same-component default and accepts any component.
func consumersOf(snap *wsg.Graph, sourceID, scopeComponentID id.ID) []id.ID {
	var out []id.ID
	for _, argID := range snap.Incoming(sourceID, wsg.EdgePrototypeArgumentValue) {
		argW, ok := snap.GetNode(argID)
		if !ok {
			continue
		}
		filterComponentID := scopeComponentID
		if argW.AttributePrototypeArgument != nil && argW.AttributePrototypeArgument.Targets != nil {
			targets := argW.AttributePrototypeArgument.Targets
			if !scopeComponentID.IsNone() && targets.SourceComponentID != scopeComponentID {
				continue
			}
			filterComponentID = targets.DestinationComponentID
		}
		for _, protoID := range snap.Incoming(argID, wsg.EdgeUse) {
			for _, consumerID := range snap.Incoming(protoID, wsg.EdgePrototype) {
				if !filterComponentID.IsNone() && componentOf(snap, consumerID) != filterComponentID {
					continue
				}
				out = append(out, consumerID)
			}
		}
	}
	return out
}

// shouldDataFlowBetweenComponents is the Component-deletion-aware policy
// original_source calls should_data_flow_between_components: both deleted
// and not-deleted components can feed a deleted destination, but only a
// not-deleted component can feed a not-deleted destination (spec §4.E step
// 3c). Either component missing from snap (e.g. already removed) is
// treated as if ToDelete, matching "nothing left to protect" semantics.
func shouldDataFlowBetweenComponents(snap *wsg.Graph, destComponentID, srcComponentID id.ID) bool {
	destToDelete := true
	if dw, ok := snap.GetNode(destComponentID); ok && dw.Component != nil {
		destToDelete = dw.Component.ToDelete
	}
	if destToDelete {
		return true
	}
	srcToDelete := true
	if sw, ok := snap.GetNode(srcComponentID); ok && sw.Component != nil {
		srcToDelete = sw.Component.ToDelete
	}
	return !srcToDelete
}

// proxyProp returns the Prop valueID's AttributeValue is-for, if any.
func proxyProp(snap *wsg.Graph, valueID id.ID) (id.ID, bool) {
	for _, target := range snap.Outgoing(valueID, wsg.EdgeProxy) {
		if w, ok := snap.GetNode(target); ok && w.Kind == wsg.KindProp {
			return target, true
		}
	}
	return id.None, false
}

// proxySocket returns the Socket valueID's AttributeValue is-for, if any.
func proxySocket(snap *wsg.Graph, valueID id.ID) (id.ID, bool) {
	for _, target := range snap.Outgoing(valueID, wsg.EdgeProxy) {
		if w, ok := snap.GetNode(target); ok && w.Kind == wsg.KindSocket {
			return target, true
		}
	}
	return id.None, false
}

// componentOf walks valueID's containment ancestry up to its owning
// Component node. Returns id.None if no Component ancestor is found.
func componentOf(snap *wsg.Graph, valueID id.ID) id.ID {
	current := valueID
	for {
		if w, ok := snap.GetNode(current); ok && w.Kind == wsg.KindComponent {
			return current
		}
		parents := snap.Incoming(current, wsg.EdgeContain)
		if len(parents) == 0 {
			return id.None
		}
		current = parents[0]
	}
}

// parentAttributeValue returns valueID's containing AttributeValue parent,
// if its immediate Contain-parent is itself an AttributeValue (as opposed
// to, say, the Component that directly owns a top-level value).
func parentAttributeValue(snap *wsg.Graph, valueID id.ID) (id.ID, bool) {
	for _, parentID := range snap.Incoming(valueID, wsg.EdgeContain) {
		if w, ok := snap.GetNode(parentID); ok && w.Kind == wsg.KindAttributeValue {
			return parentID, true
		}
	}
	return id.None, false
}

// controllingValue resolves valueID to the nearest dynamic-function
// ancestor (inclusive of itself) walking up the AttributeValue containment
// chain — the value that actually governs valueID's recomputation (spec
// §4.E step 3a). A value with no dynamic ancestor controls itself.
func controllingValue(snap *wsg.Graph, valueID id.ID) id.ID {
	current := valueID
	for {
		w, ok := snap.GetNode(current)
		if ok && w.AttributeValue != nil && w.AttributeValue.IsDynamicFunc {
			return current
		}
		parentID, ok := parentAttributeValue(snap, current)
		if !ok {
			return valueID
		}
		current = parentID
	}
}

func (g *Graph) ensureNode(valueID id.ID) *node {
	n, ok := g.nodes[valueID]
	if !ok {
		n = &node{
			valueID:      valueID,
			dependencies: make(map[id.ID]struct{}),
			dependents:   make(map[id.ID]struct{}),
		}
		g.nodes[valueID] = n
	}
	return n
}

// addDependency records that valueID's recomputation reads sourceID's
// current value. A value naming itself as its own source (spec §3 "cycle
// self-dependency policy") is flagged rather than treated as a blocking
// dependency: it is always immediately independent, since it has no other
// value to wait on.
func (g *Graph) addDependency(valueID, sourceID id.ID) {
	n := g.nodes[valueID]
	if n == nil {
		return
	}
	if valueID == sourceID {
		n.isSelfDependent = true
		return
	}
	n.dependencies[sourceID] = struct{}{}

	src, ok := g.nodes[sourceID]
	if !ok {
		src = &node{valueID: sourceID, dependencies: make(map[id.ID]struct{}), dependents: make(map[id.ID]struct{})}
		g.nodes[sourceID] = src
	}
	src.dependents[valueID] = struct{}{}
}

// MustExecute reports whether valueID's function must actually run (as
// opposed to simply copying an upstream value) when it is recomputed.
func (g *Graph) MustExecute(valueID id.ID) bool {
	n, ok := g.nodes[valueID]
	return ok && n.mustExecute
}

// Len returns the number of values tracked.
func (g *Graph) Len() int { return len(g.nodes) }

// Touches reports whether componentID is the owning component (per snap)
// of any value this graph tracks — the scheduler's DVG interlock (spec
// §4.F dispatch-rule condition 3 / property P9) consults this to withhold
// dispatch of any action targeting a component still in flight.
func (g *Graph) Touches(snap *wsg.Graph, componentID id.ID) bool {
	if componentID.IsNone() {
		return false
	}
	for valueID := range g.nodes {
		if componentOf(snap, valueID) == componentID {
			return true
		}
	}
	return false
}

// IndependentValues computes a full topological consumption order over the
// graph using Kahn's algorithm (as graph/dag.go's GetExecutionOrder does
// for actions), breaking ties by ascending id for determinism. A value
// flagged isSelfDependent contributes no edge to its own in-degree, so it
// is never blocked on itself. Values that never reach in-degree 0 — members
// of a genuine dependency cycle — are not dropped: spec §4.E requires they
// still be reported, appended at the end in ascending-id order.
func (g *Graph) IndependentValues() []id.ID {
	inDegree := make(map[id.ID]int, len(g.nodes))
	for valueID, n := range g.nodes {
		inDegree[valueID] = len(n.dependencies)
	}

	var ready []id.ID
	for valueID, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, valueID)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return id.Less(ready[i], ready[j]) })

	var order []id.ID
	resolved := make(map[id.ID]bool, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return id.Less(ready[i], ready[j]) })
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)
		resolved[current] = true

		dependents := make([]id.ID, 0, len(g.nodes[current].dependents))
		for dependent := range g.nodes[current].dependents {
			dependents = append(dependents, dependent)
		}
		sort.Slice(dependents, func(i, j int) bool { return id.Less(dependents[i], dependents[j]) })

		for _, dependent := range dependents {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	var cyclic []id.ID
	for valueID := range g.nodes {
		if !resolved[valueID] {
			cyclic = append(cyclic, valueID)
		}
	}
	sort.Slice(cyclic, func(i, j int) bool { return id.Less(cyclic[i], cyclic[j]) })
	order = append(order, cyclic...)

	return order
}

// Dump is a structured snapshot of the graph's shape, replacing the
// teacher corpus's filesystem `.dot` debug dump with a return value the
// caller can serialize however it likes (DESIGN.md Open Question
// decision).
type Dump struct {
	Values []DumpValue
}

// DumpValue is one node's recorded state in a Dump.
type DumpValue struct {
	ValueID       id.ID
	Dependencies  []id.ID
	MustExecute   bool
	SelfDependent bool
}

// Dump returns a deterministic, sorted snapshot of every tracked value.
func (g *Graph) Dump() Dump {
	ids := make([]id.ID, 0, len(g.nodes))
	for valueID := range g.nodes {
		ids = append(ids, valueID)
	}
	sort.Slice(ids, func(i, j int) bool { return id.Less(ids[i], ids[j]) })

	out := Dump{Values: make([]DumpValue, 0, len(ids))}
	for _, valueID := range ids {
		n := g.nodes[valueID]
		deps := make([]id.ID, 0, len(n.dependencies))
		for dep := range n.dependencies {
			deps = append(deps, dep)
		}
		sort.Slice(deps, func(i, j int) bool { return id.Less(deps[i], deps[j]) })
		out.Values = append(out.Values, DumpValue{
			ValueID:       valueID,
			Dependencies:  deps,
			MustExecute:   n.mustExecute,
			SelfDependent: n.isSelfDependent,
		})
	}
	return out
}
