// Package shuttle implements the Audit/Event Shuttle (spec §4.H): a
// per-session pending-events stream accumulates fine-grained audit events
// during a DAL transaction; on commit, a Shuttle forwards those events to
// a durable per-workspace audit stream and writes a final marker. Readers
// of the durable stream consume via pull-based fetch with a max-message
// cap and perform no ack — the stream is append-only and reader-position-
// agnostic, mirroring db/couchdb_changes.go's _changes-feed consumption
// model translated from CouchDB's sequence cursor to this module's bus
// subjects.
package shuttle

import (
	"context"
	"time"

	"eve.evalgo.org/internal/bus"
	"eve.evalgo.org/internal/errkind"
	"eve.evalgo.org/internal/id"
)

// Recorder appends audit events to one session's pending stream during a
// transaction. A fresh Recorder is created per session.
type Recorder struct {
	transport   bus.Transport
	subjects    bus.Subjects
	workspaceID string
	changeSetID string
	sessionID   string
	eventIDs    []id.ID
}

// NewRecorder returns a Recorder scoped to one (workspace, change set,
// session) triple.
func NewRecorder(transport bus.Transport, workspaceID, changeSetID, sessionID string) *Recorder {
	return &Recorder{
		transport:   transport,
		subjects:    bus.DefaultSubjects(),
		workspaceID: workspaceID,
		changeSetID: changeSetID,
		sessionID:   sessionID,
	}
}

// Record appends one audit event to the session's pending stream.
func (r *Recorder) Record(ctx context.Context, kind AuditLogKind, actorID, targetID string) error {
	ev := AuditLogEvent{
		EventID:     id.New(),
		Kind:        kind,
		WorkspaceID: r.workspaceID,
		ChangeSetID: r.changeSetID,
		ActorID:     actorID,
		TargetID:    targetID,
		OccurredAt:  time.Now(),
	}
	body, err := encodeEvent(ev)
	if err != nil {
		return errkind.Wrap(errkind.CacheDeserialize, "encode audit event", err)
	}

	subject := r.subjects.PendingEventsAuditLog(r.workspaceID, r.changeSetID, r.sessionID)
	if err := r.transport.Publish(ctx, bus.Message{Subject: subject, Body: body}, bus.PublishOptions{}); err != nil {
		return errkind.Wrap(errkind.BusPublish, "publish pending audit event", err)
	}
	r.eventIDs = append(r.eventIDs, ev.EventID)
	return nil
}

// EventCount reports how many events this Recorder has appended so far.
func (r *Recorder) EventCount() int {
	return len(r.eventIDs)
}

// DurableWriter is the subset of durableaudit.Store a Shuttle depends on.
type DurableWriter interface {
	Append(ctx context.Context, workspaceID string, ev AuditLogEvent) error
}

// Shuttle relays one session's pending events to the durable per-workspace
// audit stream on commit (spec §4.H).
type Shuttle struct {
	transport bus.Transport
	subjects  bus.Subjects
	durable   DurableWriter
}

// New returns a Shuttle writing through durable.
func New(transport bus.Transport, durable DurableWriter) *Shuttle {
	return &Shuttle{transport: transport, subjects: bus.DefaultSubjects(), durable: durable}
}

// Forward drains the session's pending stream, publishing each event to
// the durable audit stream and the workspace's bus-visible audit subject,
// then writes a final marker recording which events were relayed. It
// returns the number of events forwarded (spec §8 scenario 6: "three
// pre-commit audit events and a final marker").
func (s *Shuttle) Forward(ctx context.Context, workspaceID, changeSetID, sessionID string, maxMessages int) (int, error) {
	pendingSubject := s.subjects.PendingEventsAuditLog(workspaceID, changeSetID, sessionID)
	sub, err := s.transport.Subscribe(ctx, pendingSubject, "shuttle")
	if err != nil {
		return 0, errkind.Wrap(errkind.BusPublish, "subscribe pending audit stream", err)
	}
	defer sub.Close()

	var forwarded []id.ID
pull:
	for len(forwarded) < maxMessages {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				break pull
			}
			ev, err := decodeEvent(msg.Body)
			if err != nil {
				// Malformed pending event: drop and move on rather than
				// stall the whole session's relay on one bad entry.
				continue
			}
			if err := s.relay(ctx, workspaceID, ev); err != nil {
				return len(forwarded), err
			}
			forwarded = append(forwarded, ev.EventID)
		default:
			break pull
		}
	}

	if err := s.writeMarker(ctx, workspaceID, sessionID, forwarded); err != nil {
		return len(forwarded), err
	}
	return len(forwarded), nil
}

func (s *Shuttle) relay(ctx context.Context, workspaceID string, ev AuditLogEvent) error {
	if s.durable != nil {
		if err := s.durable.Append(ctx, workspaceID, ev); err != nil {
			return errkind.Wrap(errkind.CacheDurableWrite, "append durable audit event", err)
		}
	}

	body, err := encodeEvent(ev)
	if err != nil {
		return errkind.Wrap(errkind.CacheDeserialize, "encode durable audit event", err)
	}
	subject := s.subjects.AuditLogs(workspaceID)
	if err := s.transport.Publish(ctx, bus.Message{Subject: subject, Body: body}, bus.PublishOptions{}); err != nil {
		return errkind.Wrap(errkind.BusPublish, "publish durable audit event", err)
	}
	return nil
}

func (s *Shuttle) writeMarker(ctx context.Context, workspaceID, sessionID string, forwarded []id.ID) error {
	body, err := encodeMarker(marker{SessionID: sessionID, EventIDs: forwarded})
	if err != nil {
		return errkind.Wrap(errkind.CacheDeserialize, "encode audit marker", err)
	}
	subject := s.subjects.AuditLogs(workspaceID)
	if err := s.transport.Publish(ctx, bus.Message{Subject: subject, Body: body}, bus.PublishOptions{}); err != nil {
		return errkind.Wrap(errkind.BusPublish, "publish audit marker", err)
	}
	return nil
}

// Read pulls up to maxMessages events from the workspace's durable audit
// subject without acking — spec §4.H's reader-position-agnostic pull.
func Read(ctx context.Context, transport bus.Transport, workspaceID string, maxMessages int) ([]AuditLogEvent, error) {
	subjects := bus.DefaultSubjects()
	sub, err := transport.Subscribe(ctx, subjects.AuditLogs(workspaceID), "audit-reader")
	if err != nil {
		return nil, errkind.Wrap(errkind.BusPublish, "subscribe durable audit stream", err)
	}
	defer sub.Close()

	var events []AuditLogEvent
	for len(events) < maxMessages {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return events, nil
			}
			ev, err := decodeEvent(msg.Body)
			if err != nil {
				continue // skip final markers, which don't decode as events
			}
			events = append(events, ev)
		default:
			return events, nil
		}
	}
	return events, nil
}
