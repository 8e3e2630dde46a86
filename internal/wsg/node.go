// Package wsg implements the Workspace Snapshot Graph (spec §3, §4.D): a
// content-addressed directed graph of typed nodes and edges, each node
// carrying a vector clock, with three-way-merge rebase.
//
// The adjacency-maps-keyed-by-id representation follows this
// repository's graph/dag.go (there, a single action-dependency DAG; here,
// generalized to the full typed node/edge set spec §3 names).
package wsg

import (
	"eve.evalgo.org/internal/chash"
	"eve.evalgo.org/internal/id"
	"eve.evalgo.org/internal/vclock"
)

// NodeKind is the exhaustive tag for every node variant spec §3 names.
type NodeKind int

const (
	KindCategory NodeKind = iota
	KindComponent
	KindProp
	KindAttributeValue
	KindAttributePrototype
	KindAttributePrototypeArgument
	KindAction
	KindActionPrototype
	KindSocket
	KindFunc
	KindFuncArgument
	KindSecret
	KindSchema
	KindSchemaVariant
	KindOrdering
)

func (k NodeKind) String() string {
	switch k {
	case KindCategory:
		return "Category"
	case KindComponent:
		return "Component"
	case KindProp:
		return "Prop"
	case KindAttributeValue:
		return "AttributeValue"
	case KindAttributePrototype:
		return "AttributePrototype"
	case KindAttributePrototypeArgument:
		return "AttributePrototypeArgument"
	case KindAction:
		return "Action"
	case KindActionPrototype:
		return "ActionPrototype"
	case KindSocket:
		return "Socket"
	case KindFunc:
		return "Func"
	case KindFuncArgument:
		return "FuncArgument"
	case KindSecret:
		return "Secret"
	case KindSchema:
		return "Schema"
	case KindSchemaVariant:
		return "SchemaVariant"
	case KindOrdering:
		return "Ordering"
	default:
		return "Unknown"
	}
}

// PropKind is the scalar/structural kind of a Prop node.
type PropKind int

const (
	PropObject PropKind = iota
	PropArray
	PropMap
	PropString
	PropInteger
	PropBoolean
)

// ActionState is the action state machine's current state (spec §4.F).
type ActionState int

const (
	ActionQueued ActionState = iota
	ActionOnHold
	ActionDispatched
	ActionRunning
	ActionFailed
)

func (s ActionState) String() string {
	switch s {
	case ActionQueued:
		return "Queued"
	case ActionOnHold:
		return "OnHold"
	case ActionDispatched:
		return "Dispatched"
	case ActionRunning:
		return "Running"
	case ActionFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// FuncRunResultState records the outcome persisted on an action node after
// its function runs (spec §4.F, restored per SPEC_FULL.md §C.1).
type FuncRunResultState int

const (
	FuncRunResultUnknown FuncRunResultState = iota
	FuncRunResultSuccess
	FuncRunResultFailure
)

// SocketDirection distinguishes input from output sockets.
type SocketDirection int

const (
	SocketInput SocketDirection = iota
	SocketOutput
)

// CategoryPayload marks one of the well-known category nodes reachable from
// the snapshot root (spec §3 "Category index").
type CategoryPayload struct {
	Kind NodeKind
}

// ComponentPayload is a Component node's variant-specific attributes.
// ResourcePayload is the serialized external-resource state the component's
// last create/refresh action recorded; a ToDelete component whose
// ResourcePayload is empty has nothing left in the real world to reconcile
// against, which is what lets the scheduler remove it outright on action
// success (spec §4.F "On success").
type ComponentPayload struct {
	SchemaVariantID id.ID
	Name            string
	ToDelete        bool
	ResourcePayload []byte
}

// PropPayload is a Prop node's variant-specific attributes.
type PropPayload struct {
	Name string
	Kind PropKind
}

// AttributeValuePayload is an AttributeValue node's variant-specific
// attributes. A controlling value is one whose prototype is "dynamic"
// (spec §3 "Attribute tree").
type AttributeValuePayload struct {
	IsDynamicFunc bool
	// RawValue is the resolved value's canonical byte serialization, or
	// nil if unset.
	RawValue []byte
}

// AttributePrototypePayload names the function a prototype invokes.
type AttributePrototypePayload struct {
	FuncID id.ID
}

// AttributePrototypeArgumentPayload is an argument to an
// AttributePrototype; Targets is nil for schema-level args (spec §3
// invariant 5, §4.E step 3).
type AttributePrototypeArgumentPayload struct {
	ArgumentName string
	Targets      *ArgumentTargets
}

// ArgumentTargets names the source/destination components an argument is
// scoped to.
type ArgumentTargets struct {
	SourceComponentID      id.ID
	DestinationComponentID id.ID
}

// ActionPayload is an Action node's variant-specific attributes (spec §3
// "Action", §4.F).
type ActionPayload struct {
	State                 ActionState
	OriginatingChangeSetID id.ID
	FuncRunResultState     FuncRunResultState
}

// ActionPrototypePayload names the function an action dispatches.
type ActionPrototypePayload struct {
	FuncID id.ID
	Name   string
}

// SocketPayload is a Socket node's variant-specific attributes.
type SocketPayload struct {
	Name      string
	Direction SocketDirection
}

// FuncPayload is a Func node's variant-specific attributes.
type FuncPayload struct {
	Name      string
	IsDynamic bool
}

// FuncArgumentPayload is a FuncArgument node's variant-specific attributes.
type FuncArgumentPayload struct {
	Name string
}

// SecretPayload is a Secret node's variant-specific attributes. Secret
// material itself is opaque bytes behind the LHC (see DESIGN.md); this
// payload only carries metadata.
type SecretPayload struct {
	Name string
}

// SchemaPayload is a Schema node's variant-specific attributes.
type SchemaPayload struct {
	Name string
}

// SchemaVariantPayload is a SchemaVariant node's variant-specific
// attributes.
type SchemaVariantPayload struct {
	SchemaID id.ID
	Name     string
}

// OrderingPayload records the ordered child list for a node that has one
// (e.g. an Array AttributeValue's indexed children).
type OrderingPayload struct {
	OrderedIDs []id.ID
}

// NodeWeight is one node in the graph: common identity/versioning fields
// plus exactly one populated kind-specific payload, selected by Kind. This
// is the "tagged union over node kinds" design note from spec §9: all
// dispatch on Kind is an exhaustive switch, no open-world polymorphism.
type NodeWeight struct {
	NodeID id.ID
	Kind   NodeKind
	Hash   chash.Hash
	Clock  vclock.Clock

	Category                   *CategoryPayload
	Component                  *ComponentPayload
	Prop                       *PropPayload
	AttributeValue             *AttributeValuePayload
	AttributePrototype         *AttributePrototypePayload
	AttributePrototypeArgument *AttributePrototypeArgumentPayload
	Action                     *ActionPayload
	ActionPrototype            *ActionPrototypePayload
	Socket                     *SocketPayload
	Func                       *FuncPayload
	FuncArgument               *FuncArgumentPayload
	Secret                     *SecretPayload
	Schema                     *SchemaPayload
	SchemaVariant              *SchemaVariantPayload
	Ordering                   *OrderingPayload
}

// WithClock returns a copy of w with Clock replaced; used when advancing a
// node's vector clock on mutation (nodes are otherwise immutable once their
// content hash is computed, per spec §4.D "State machine").
func (w NodeWeight) WithClock(c vclock.Clock) NodeWeight {
	w.Clock = c
	return w
}
