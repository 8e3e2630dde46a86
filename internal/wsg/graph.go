package wsg

import (
	"fmt"
	"sort"
	"sync"

	"eve.evalgo.org/internal/errkind"
	"eve.evalgo.org/internal/id"
	"eve.evalgo.org/internal/vclock"
)

// edgeRef is one outgoing edge record: the edge's weight plus the target
// node it points at.
type edgeRef struct {
	target id.ID
	weight EdgeWeight
}

// Graph is the Workspace Snapshot Graph: a single in-memory snapshot,
// content-addressed and versioned by per-node vector clocks. Mutation
// methods change the Graph in place; callers that must keep a published
// snapshot unchanged take a Clone and mutate the copy.
//
// The adjacency-map-keyed-by-id representation generalizes graph/dag.go's
// map[string][]string adjacency lists from a single action DAG to the full
// typed node/edge set.
type Graph struct {
	mu sync.RWMutex

	nodes      map[id.ID]NodeWeight
	outEdges   map[id.ID][]edgeRef
	inEdges    map[id.ID][]edgeRef
	categories map[NodeKind]id.ID

	// tombstones records the vector clock a node carried at the moment it
	// was removed, keyed by the removed node's id. Rebase consults this to
	// compare a removal against a concurrent modification (spec §4.D step
	// 3, §8 scenario 3) the same way it compares two modifications: via
	// vclock.Compare, not an unconditional "delete wins" or "modify wins".
	tombstones map[id.ID]vclock.Clock
}

// New returns an empty graph with no root.
func New() *Graph {
	return &Graph{
		nodes:      make(map[id.ID]NodeWeight),
		outEdges:   make(map[id.ID][]edgeRef),
		inEdges:    make(map[id.ID][]edgeRef),
		categories: make(map[NodeKind]id.ID),
		tombstones: make(map[id.ID]vclock.Clock),
	}
}

// Clone returns a deep-enough copy of g safe to mutate independently; node
// payloads are shared (immutable once content-hashed) but the adjacency
// maps are copied.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := New()
	for k, v := range g.nodes {
		out.nodes[k] = v
	}
	for k, v := range g.outEdges {
		cp := make([]edgeRef, len(v))
		copy(cp, v)
		out.outEdges[k] = cp
	}
	for k, v := range g.inEdges {
		cp := make([]edgeRef, len(v))
		copy(cp, v)
		out.inEdges[k] = cp
	}
	for k, v := range g.categories {
		out.categories[k] = v
	}
	for k, v := range g.tombstones {
		out.tombstones[k] = v
	}
	return out
}

// AddNode inserts w, keyed by w.NodeID. If w.Kind is Category, it is also
// indexed for GetCategoryNode lookup.
func (g *Graph) AddNode(w NodeWeight) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes[w.NodeID] = w
	if w.Kind == KindCategory && w.Category != nil {
		g.categories[w.Category.Kind] = w.NodeID
	}
}

// GetNode returns the node weight for nodeID.
func (g *Graph) GetNode(nodeID id.ID) (NodeWeight, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.nodes[nodeID]
	return w, ok
}

// GetCategoryNode returns the id of the well-known category node for kind,
// e.g. the Component category root (spec §3 "Category index").
func (g *Graph) GetCategoryNode(kind NodeKind) (id.ID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodeID, ok := g.categories[kind]
	return nodeID, ok
}

// AddEdge adds a directed edge from -> to carrying weight. For Contain
// edges — the structural containment tree a node's ancestry is walked
// through — it returns a GraphInvariantViolation error if the edge would
// introduce a cycle reachable back to "from" (spec §3 invariant 2). Other
// edge kinds (notably Prototype/PrototypeArgumentValue, the data-flow
// edges the DVG is built from) are not required to be acyclic: a value
// legitimately can reference itself through its own prototype argument,
// which is exactly the self-dependency case internal/dvg's cycle policy
// handles rather than something the WSG should reject outright.
func (g *Graph) AddEdge(from, to id.ID, weight EdgeWeight) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[from]; !ok {
		return errkind.New(errkind.GraphInvariantViolation, fmt.Sprintf("add edge: source node %s not found", from))
	}
	if _, ok := g.nodes[to]; !ok {
		return errkind.New(errkind.GraphInvariantViolation, fmt.Sprintf("add edge: target node %s not found", to))
	}
	if weight.Kind == EdgeContain && g.wouldCreateCycleLocked(from, to) {
		return errkind.New(errkind.GraphInvariantViolation, fmt.Sprintf("add edge %s -> %s would create a cycle", from, to))
	}

	g.outEdges[from] = append(g.outEdges[from], edgeRef{target: to, weight: weight})
	g.inEdges[to] = append(g.inEdges[to], edgeRef{target: from, weight: weight})
	return nil
}

// wouldCreateCycleLocked reports whether adding from->to would create a
// cycle, i.e. whether "from" is already reachable from "to". Grounded on
// graph/dag.go's checkCycleManual depth-first reachability walk.
func (g *Graph) wouldCreateCycleLocked(from, to id.ID) bool {
	if from == to {
		return true
	}
	visited := make(map[id.ID]bool)
	var walk func(id.ID) bool
	walk = func(n id.ID) bool {
		if n == from {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		for _, e := range g.outEdges[n] {
			if walk(e.target) {
				return true
			}
		}
		return false
	}
	return walk(to)
}

// Outgoing returns the ids of nodes "from" points at via edges of kind.
// Results are sorted by Ordinal then by target id, giving deterministic
// iteration order (spec §9 "Deterministic iteration").
func (g *Graph) Outgoing(from id.ID, kind EdgeKind) []id.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	refs := filterByKind(g.outEdges[from], kind)
	out := make([]id.ID, len(refs))
	for i, r := range refs {
		out[i] = r.target
	}
	return out
}

// Incoming returns the ids of nodes pointing at "to" via edges of kind.
func (g *Graph) Incoming(to id.ID, kind EdgeKind) []id.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	refs := filterByKind(g.inEdges[to], kind)
	out := make([]id.ID, len(refs))
	for i, r := range refs {
		out[i] = r.target
	}
	return out
}

// EdgesDirected returns every outgoing edge's (target, weight) pair from
// "from", regardless of kind, ordered by Ordinal then target id.
func (g *Graph) EdgesDirected(from id.ID) []struct {
	Target id.ID
	Weight EdgeWeight
} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	refs := make([]edgeRef, len(g.outEdges[from]))
	copy(refs, g.outEdges[from])
	sortEdgeRefs(refs)

	out := make([]struct {
		Target id.ID
		Weight EdgeWeight
	}, len(refs))
	for i, r := range refs {
		out[i] = struct {
			Target id.ID
			Weight EdgeWeight
		}{Target: r.target, Weight: r.weight}
	}
	return out
}

func filterByKind(refs []edgeRef, kind EdgeKind) []edgeRef {
	out := make([]edgeRef, 0, len(refs))
	for _, r := range refs {
		if r.weight.Kind == kind {
			out = append(out, r)
		}
	}
	sortEdgeRefs(out)
	return out
}

func sortEdgeRefs(refs []edgeRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].weight.Ordinal != refs[j].weight.Ordinal {
			return refs[i].weight.Ordinal < refs[j].weight.Ordinal
		}
		return id.Less(refs[i].target, refs[j].target)
	})
}

// RemoveNode deletes nodeID and every edge touching it, recording clock as
// the tombstone the removal leaves behind. clock is typically the removed
// node's own clock (a removal that hasn't observed anything beyond what the
// node already knew) or that clock advanced for the removing actor (a
// removal that causally follows some other observed change) — the caller
// picks, since only it knows which applies.
func (g *Graph) RemoveNode(nodeID id.ID, clock vclock.Clock) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.nodes, nodeID)
	delete(g.outEdges, nodeID)
	delete(g.inEdges, nodeID)
	g.tombstones[nodeID] = clock

	for n, refs := range g.outEdges {
		g.outEdges[n] = removeRefsTo(refs, nodeID)
	}
	for n, refs := range g.inEdges {
		g.inEdges[n] = removeRefsTo(refs, nodeID)
	}
	for k, v := range g.categories {
		if v == nodeID {
			delete(g.categories, k)
		}
	}
}

// TombstoneClock returns the vector clock a removed node carried at the
// moment it was deleted, if nodeID was ever removed from g via RemoveNode.
func (g *Graph) TombstoneClock(nodeID id.ID) (vclock.Clock, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.tombstones[nodeID]
	return c, ok
}

// RemoveEdge deletes the edge of the given kind between from and to, if any.
func (g *Graph) RemoveEdge(from, to id.ID, kind EdgeKind) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.outEdges[from] = removeEdgeRef(g.outEdges[from], to, kind)
	g.inEdges[to] = removeEdgeRef(g.inEdges[to], from, kind)
}

func removeRefsTo(refs []edgeRef, target id.ID) []edgeRef {
	out := refs[:0:0]
	for _, r := range refs {
		if r.target != target {
			out = append(out, r)
		}
	}
	return out
}

func removeEdgeRef(refs []edgeRef, target id.ID, kind EdgeKind) []edgeRef {
	out := refs[:0:0]
	for _, r := range refs {
		if r.target == target && r.weight.Kind == kind {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ReplaceReferences rewrites every edge pointing at oldID to instead point
// at newID, and re-inserts newNode under newID. Used when rebasing applies
// an update that replaces a node's content (a new content hash means a new
// node identity in this model) but every container must keep pointing at
// the replacement (spec §4.D "replace_references").
func (g *Graph) ReplaceReferences(oldID, newID id.ID, newNode NodeWeight) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes[newID] = newNode
	delete(g.nodes, oldID)

	for n, refs := range g.outEdges {
		for i := range refs {
			if refs[i].target == oldID {
				refs[i].target = newID
			}
		}
		g.outEdges[n] = refs
	}
	g.outEdges[newID] = g.outEdges[oldID]
	delete(g.outEdges, oldID)

	for n, refs := range g.inEdges {
		for i := range refs {
			if refs[i].target == oldID {
				refs[i].target = newID
			}
		}
		g.inEdges[n] = refs
	}
	g.inEdges[newID] = g.inEdges[oldID]
	delete(g.inEdges, oldID)

	for k, v := range g.categories {
		if v == oldID {
			g.categories[k] = newID
		}
	}
}

// NodeIDs returns every node id in the graph, sorted ascending for
// deterministic iteration.
func (g *Graph) NodeIDs() []id.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]id.ID, 0, len(g.nodes))
	for k := range g.nodes {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return id.Less(out[i], out[j]) })
	return out
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
