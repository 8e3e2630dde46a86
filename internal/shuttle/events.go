package shuttle

import (
	"time"

	"eve.evalgo.org/internal/id"
)

// AuditLogKind is a closed enum of audit event payload kinds, matching
// si-events-rs/src/audit_log.rs's typed shape rather than a free-form
// event map.
type AuditLogKind int

const (
	ComponentCreated AuditLogKind = iota
	ComponentDeleted
	AttributeValueUpdated
	ActionDispatched
	ActionCompleted
	RebasePerformed
)

func (k AuditLogKind) String() string {
	switch k {
	case ComponentCreated:
		return "ComponentCreated"
	case ComponentDeleted:
		return "ComponentDeleted"
	case AttributeValueUpdated:
		return "AttributeValueUpdated"
	case ActionDispatched:
		return "ActionDispatched"
	case ActionCompleted:
		return "ActionCompleted"
	case RebasePerformed:
		return "RebasePerformed"
	default:
		return "Unknown"
	}
}

// AuditLogEvent is one entry on a session's pending-events stream, and
// later one entry forwarded onto the durable per-workspace audit stream.
type AuditLogEvent struct {
	EventID     id.ID
	Kind        AuditLogKind
	WorkspaceID string
	ChangeSetID string
	ActorID     string
	TargetID    string // node id or action id the event concerns, stringified
	OccurredAt  time.Time
}

// marker is the final message a Shuttle writes after forwarding a
// session's events, signalling the relay for that session is complete
// (spec §4.H "writes a final marker").
type marker struct {
	SessionID string
	EventIDs  []id.ID
}
