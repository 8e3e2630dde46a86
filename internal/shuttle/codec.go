package shuttle

import (
	"encoding/json"
	"fmt"
	"time"

	"eve.evalgo.org/internal/id"
)

const timeLayout = time.RFC3339Nano

type wireEvent struct {
	EventID     string `json:"event_id"`
	Kind        string `json:"kind"`
	WorkspaceID string `json:"workspace_id"`
	ChangeSetID string `json:"change_set_id"`
	ActorID     string `json:"actor_id"`
	TargetID    string `json:"target_id"`
	OccurredAt  string `json:"occurred_at"`
}

var auditLogKindNames = map[AuditLogKind]string{
	ComponentCreated:      "ComponentCreated",
	ComponentDeleted:      "ComponentDeleted",
	AttributeValueUpdated: "AttributeValueUpdated",
	ActionDispatched:      "ActionDispatched",
	ActionCompleted:       "ActionCompleted",
	RebasePerformed:       "RebasePerformed",
}

func kindFromWire(s string) AuditLogKind {
	for k, name := range auditLogKindNames {
		if name == s {
			return k
		}
	}
	return ComponentCreated
}

func encodeEvent(ev AuditLogEvent) ([]byte, error) {
	return json.Marshal(wireEvent{
		EventID:     ev.EventID.String(),
		Kind:        ev.Kind.String(),
		WorkspaceID: ev.WorkspaceID,
		ChangeSetID: ev.ChangeSetID,
		ActorID:     ev.ActorID,
		TargetID:    ev.TargetID,
		OccurredAt:  ev.OccurredAt.Format(timeLayout),
	})
}

func decodeEvent(data []byte) (AuditLogEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return AuditLogEvent{}, fmt.Errorf("shuttle: decode event: %w", err)
	}
	eventID, err := id.Parse(w.EventID)
	if err != nil {
		return AuditLogEvent{}, fmt.Errorf("shuttle: decode event id: %w", err)
	}
	occurredAt, err := time.Parse(timeLayout, w.OccurredAt)
	if err != nil {
		return AuditLogEvent{}, fmt.Errorf("shuttle: decode event timestamp: %w", err)
	}
	return AuditLogEvent{
		EventID:     eventID,
		Kind:        kindFromWire(w.Kind),
		WorkspaceID: w.WorkspaceID,
		ChangeSetID: w.ChangeSetID,
		ActorID:     w.ActorID,
		TargetID:    w.TargetID,
		OccurredAt:  occurredAt,
	}, nil
}

type wireMarker struct {
	SessionID string   `json:"session_id"`
	EventIDs  []string `json:"event_ids"`
}

func encodeMarker(m marker) ([]byte, error) {
	ids := make([]string, len(m.EventIDs))
	for i, eventID := range m.EventIDs {
		ids[i] = eventID.String()
	}
	return json.Marshal(wireMarker{SessionID: m.SessionID, EventIDs: ids})
}
