package wsg

import (
	"eve.evalgo.org/internal/id"
	"eve.evalgo.org/internal/vclock"
)

// ChangeKind tags one entry of a Diff.
type ChangeKind int

const (
	ChangeNodeAdded ChangeKind = iota
	ChangeNodeRemoved
	ChangeNodeModified
)

// Change is one difference between a base graph and a descendant graph.
// Clock is the node's clock for Added/Modified, or the tombstone clock the
// removing graph recorded for Removed.
type Change struct {
	Kind   ChangeKind
	NodeID id.ID
	Clock  vclock.Clock
}

// Diff walks base and other and returns the set of node-level changes that
// turn base into other. Node identity is NodeID; a node is "modified" when
// the same id carries a different content hash.
func Diff(base, other *Graph) []Change {
	var changes []Change

	for _, nodeID := range other.NodeIDs() {
		ow, _ := other.GetNode(nodeID)
		bw, existed := base.GetNode(nodeID)
		switch {
		case !existed:
			changes = append(changes, Change{Kind: ChangeNodeAdded, NodeID: nodeID, Clock: ow.Clock})
		case bw.Hash != ow.Hash:
			changes = append(changes, Change{Kind: ChangeNodeModified, NodeID: nodeID, Clock: ow.Clock})
		}
	}
	for _, nodeID := range base.NodeIDs() {
		if _, ok := other.GetNode(nodeID); !ok {
			tomb, _ := other.TombstoneClock(nodeID)
			changes = append(changes, Change{Kind: ChangeNodeRemoved, NodeID: nodeID, Clock: tomb})
		}
	}
	return changes
}

// ConflictKind classifies why two divergent changes to the same node could
// not be reconciled automatically.
type ConflictKind int

const (
	ConflictModifyRemove ConflictKind = iota
	ConflictModifyModify
)

// Conflict describes a node changed incompatibly on both sides of a rebase
// (spec §4.D "three-way merge", e.g. a component renamed on one side and
// deleted on the other).
type Conflict struct {
	Kind   ConflictKind
	NodeID id.ID
}

// EdgeChangeKind tags one entry of an edge-level merge decision.
type EdgeChangeKind int

const (
	EdgeChangeAdded EdgeChangeKind = iota
	EdgeChangeRemoved
)

// EdgeChange records one edge added to or dropped from the rebase result.
type EdgeChange struct {
	Kind EdgeChangeKind
	From id.ID
	To   id.ID
	Edge EdgeKind
}

// RebaseResult is the outcome of rebasing "from" onto "onto" using their
// common ancestor "base".
type RebaseResult struct {
	Graph       *Graph
	Updates     []Change
	EdgeUpdates []EdgeChange
	Conflicts   []Conflict
}

// Rebase computes the three-way merge of "from" onto "onto", given their
// common ancestor "base" (spec §4.D, §4.G EnqueueUpdates). For every node
// that changed on the "from" side relative to base:
//
//   - if "onto" did not also change that node, the from-side node (with its
//     own clock, unmerged) is applied onto the result graph, recording the
//     update;
//   - if both sides changed the node and the changes are compatible (same
//     resulting content hash, i.e. both sides converged on the same edit),
//     the clocks are merged and no conflict is raised;
//   - if both sides changed the node to different content, vclock.Compare
//     decides: a Dominates relationship picks the dominating side silently;
//     a Concurrent relationship is an unresolvable conflict surfaced to the
//     caller (who, per spec §4.G, reports it back to the submitting change
//     set rather than guessing).
//
// The removed-on-one-side/modified-on-other-side case follows the same
// dominance rule, using each side's node/tombstone clock: whichever side's
// clock dominates the other wins silently (spec §8 scenario 3 — a delete
// whose clock dominates a concurrent rename's wins outright, no conflict),
// and only a genuinely Concurrent comparison is reported as
// ConflictModifyRemove.
func Rebase(base, onto, from *Graph) RebaseResult {
	result := RebaseResult{Graph: onto.Clone()}

	ontoChanges := changeSetByNode(Diff(base, onto))
	fromChanges := Diff(base, from)

	for _, c := range fromChanges {
		oc, ontoTouched := ontoChanges[c.NodeID]

		switch c.Kind {
		case ChangeNodeAdded:
			if ontoTouched {
				continue
			}
			fw, _ := from.GetNode(c.NodeID)
			result.Graph.AddNode(fw)
			result.Updates = append(result.Updates, c)

		case ChangeNodeRemoved:
			if ontoTouched && oc.Kind == ChangeNodeModified {
				ow, _ := onto.GetNode(c.NodeID)
				resolveRemoveModifyConflict(&result, c.Clock, ow)
				continue
			}
			result.Graph.RemoveNode(c.NodeID, c.Clock)
			result.Updates = append(result.Updates, c)

		case ChangeNodeModified:
			fw, _ := from.GetNode(c.NodeID)

			if !ontoTouched {
				result.Graph.AddNode(fw)
				result.Updates = append(result.Updates, c)
				continue
			}
			if oc.Kind == ChangeNodeRemoved {
				resolveRemoveModifyConflict(&result, oc.Clock, fw)
				continue
			}

			ow, _ := onto.GetNode(c.NodeID)
			if ow.Hash == fw.Hash {
				merged := ow.WithClock(vclock.Merge(ow.Clock, fw.Clock))
				result.Graph.AddNode(merged)
				continue
			}

			switch vclock.Compare(fw.Clock, ow.Clock) {
			case vclock.Greater:
				merged := fw.WithClock(vclock.Merge(ow.Clock, fw.Clock))
				result.Graph.AddNode(merged)
				result.Updates = append(result.Updates, c)
			case vclock.Less:
				// onto already dominates; keep onto's node as-is.
			default:
				result.Conflicts = append(result.Conflicts, Conflict{Kind: ConflictModifyModify, NodeID: c.NodeID})
			}
		}
	}

	mergeEdges(base, onto, from, &result)

	return result
}

// resolveRemoveModifyConflict decides a remove-vs-modify pair per spec §8
// scenario 3's dominance rule: the side whose vector clock dominates wins
// outright, silently; only a genuinely Concurrent comparison is an
// unresolvable conflict. removeClock is the tombstone left by whichever
// side removed the node; modifyNode is the other side's surviving node.
// Both AddNode and RemoveNode are idempotent on the result graph regardless
// of which side (onto or from) actually performed the removal, so this one
// routine covers both call directions.
func resolveRemoveModifyConflict(result *RebaseResult, removeClock vclock.Clock, modifyNode NodeWeight) {
	switch vclock.Compare(removeClock, modifyNode.Clock) {
	case vclock.Greater, vclock.Equal:
		// The removal causally dominates (or matches) the modification: it
		// was made with knowledge of the modification and still chose to
		// delete. Delete wins, silently.
		merged := vclock.Merge(removeClock, modifyNode.Clock)
		result.Graph.RemoveNode(modifyNode.NodeID, merged)
		result.Updates = append(result.Updates, Change{Kind: ChangeNodeRemoved, NodeID: modifyNode.NodeID, Clock: removeClock})
	case vclock.Less:
		// The modification dominates the removal: it happened-after, so the
		// node survives regardless of which snapshot the removal came from.
		merged := modifyNode.WithClock(vclock.Merge(removeClock, modifyNode.Clock))
		result.Graph.AddNode(merged)
		result.Updates = append(result.Updates, Change{Kind: ChangeNodeModified, NodeID: modifyNode.NodeID, Clock: merged.Clock})
	default:
		result.Conflicts = append(result.Conflicts, Conflict{Kind: ConflictModifyRemove, NodeID: modifyNode.NodeID})
	}
}

func changeSetByNode(changes []Change) map[id.ID]Change {
	m := make(map[id.ID]Change, len(changes))
	for _, c := range changes {
		m[c.NodeID] = c
	}
	return m
}

// edgeKey identifies an edge by endpoints and kind. Ordinal is deliberately
// excluded: a reorder (same edge, new Ordinal) isn't a distinct edge for
// merge purposes. An edge present in both "onto" and "from" keeps onto's
// weight, so a reorder made only on the "from" side is not carried over.
type edgeKey struct {
	From id.ID
	To   id.ID
	Kind EdgeKind
}

func edgeSet(g *Graph) map[edgeKey]EdgeWeight {
	set := make(map[edgeKey]EdgeWeight)
	for _, nodeID := range g.NodeIDs() {
		for _, e := range g.EdgesDirected(nodeID) {
			set[edgeKey{From: nodeID, To: e.Target, Kind: e.Weight.Kind}] = e.Weight
		}
	}
	return set
}

// sourceClock returns the clock g associates with nodeID — its live node
// clock, or its tombstone clock if it was removed — or an empty clock if g
// never saw the node at all. EdgeWeight carries no clock of its own (spec
// §3's node-level vector clock is the only clock this model has), so edge
// dominance is approximated via the clock of the edge's source node: the
// same clock that records whether that node (and by extension, what it
// points at) advanced past what the other snapshot saw.
func sourceClock(g *Graph, nodeID id.ID) vclock.Clock {
	if w, ok := g.GetNode(nodeID); ok {
		return w.Clock
	}
	if c, ok := g.TombstoneClock(nodeID); ok {
		return c
	}
	return vclock.New()
}

// mergeEdges applies spec §4.D step 3's edge half of the three-way merge
// directly onto result.Graph (already seeded from onto.Clone() and updated
// by the node merge above): an edge present only in "from" is added iff
// both its endpoints survived the node merge (a new node's edges to its
// category root fall out of this automatically, covering step 4's "attach
// added node to its category" without separate special-casing); an edge
// present in "onto" but dropped by "from" is removed iff "from"'s knowledge
// of the source node dominates "onto"'s, otherwise it's retained.
func mergeEdges(base, onto, from *Graph, result *RebaseResult) {
	baseEdges := edgeSet(base)
	ontoEdges := edgeSet(onto)
	fromEdges := edgeSet(from)

	for k, w := range fromEdges {
		if _, inOnto := ontoEdges[k]; inOnto {
			continue
		}
		if _, inBase := baseEdges[k]; inBase {
			continue // onto removed an edge base had and from merely kept it; onto's removal stands
		}
		if _, srcOK := result.Graph.GetNode(k.From); !srcOK {
			continue
		}
		if _, dstOK := result.Graph.GetNode(k.To); !dstOK {
			continue
		}
		if err := result.Graph.AddEdge(k.From, k.To, w); err == nil {
			result.EdgeUpdates = append(result.EdgeUpdates, EdgeChange{Kind: EdgeChangeAdded, From: k.From, To: k.To, Edge: k.Kind})
		}
	}

	for k := range ontoEdges {
		if _, inFrom := fromEdges[k]; inFrom {
			continue
		}
		if _, inBase := baseEdges[k]; !inBase {
			continue // onto added this itself; from has no say
		}
		if vclock.Dominates(sourceClock(from, k.From), sourceClock(onto, k.From)) {
			result.Graph.RemoveEdge(k.From, k.To, k.Kind)
			result.EdgeUpdates = append(result.EdgeUpdates, EdgeChange{Kind: EdgeChangeRemoved, From: k.From, To: k.To, Edge: k.Kind})
		}
	}
}
