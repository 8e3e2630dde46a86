// Package durableaudit backs the Audit/Event Shuttle's durable,
// append-only per-workspace audit stream with CouchDB via Kivik — an
// audit log is write-once and consumed by sequence cursor, exactly the
// shape db/couchdb.go and db/couchdb_changes.go already give a Kivik-backed
// document store, so this package adapts that pattern to one document per
// audit event instead of one document per flow-process.
package durableaudit

import (
	"context"
	"fmt"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"

	"eve.evalgo.org/internal/shuttle"
)

// Config configures the durable audit database connection.
type Config struct {
	URL          string
	DatabaseName string
}

// Store is a Kivik-backed append-only audit event store, one database per
// workspace's audit trail.
type Store struct {
	client *kivik.Client
	dbName string
	db     *kivik.DB
}

// auditDoc is the CouchDB document shape for one audit event.
type auditDoc struct {
	ID          string `json:"_id"`
	EventID     string `json:"event_id"`
	Kind        string `json:"kind"`
	WorkspaceID string `json:"workspace_id"`
	ChangeSetID string `json:"change_set_id"`
	ActorID     string `json:"actor_id"`
	TargetID    string `json:"target_id"`
	OccurredAt  string `json:"occurred_at"`
}

// Open connects to CouchDB and ensures the audit database exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client, err := kivik.New("couch", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("durableaudit: connect: %w", err)
	}

	exists, err := client.DBExists(ctx, cfg.DatabaseName)
	if err != nil {
		return nil, fmt.Errorf("durableaudit: check database: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, cfg.DatabaseName); err != nil {
			return nil, fmt.Errorf("durableaudit: create database: %w", err)
		}
	}

	return &Store{client: client, dbName: cfg.DatabaseName, db: client.DB(cfg.DatabaseName)}, nil
}

// Append writes ev as a new, immutable document — audit events are never
// updated or deleted, so this always creates rather than checking for an
// existing revision the way db/couchdb.go's SaveDocument does for mutable
// flow-process documents.
func (s *Store) Append(ctx context.Context, workspaceID string, ev shuttle.AuditLogEvent) error {
	doc := auditDoc{
		ID:          ev.EventID.String(),
		EventID:     ev.EventID.String(),
		Kind:        ev.Kind.String(),
		WorkspaceID: workspaceID,
		ChangeSetID: ev.ChangeSetID,
		ActorID:     ev.ActorID,
		TargetID:    ev.TargetID,
		OccurredAt:  ev.OccurredAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
	}
	if _, err := s.db.Put(ctx, doc.ID, doc); err != nil {
		return fmt.Errorf("durableaudit: append event %s: %w", doc.ID, err)
	}
	return nil
}

// Get reports whether an audit event document with the given event id
// exists, for tests and debugging tooling; the document itself is not
// returned — normal audit consumption goes through the bus
// stream (internal/shuttle.Read), not point lookups.
func (s *Store) Get(ctx context.Context, eventID string) (bool, error) {
	row := s.db.Get(ctx, eventID)
	var doc auditDoc
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return false, nil
		}
		return false, fmt.Errorf("durableaudit: get event %s: %w", eventID, err)
	}
	return true, nil
}

// Close releases the underlying CouchDB client.
func (s *Store) Close() error {
	return s.client.Close()
}
