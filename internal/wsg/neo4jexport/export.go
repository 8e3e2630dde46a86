// Package neo4jexport mirrors a Workspace Snapshot Graph into Neo4j for
// operational querying — a component/attribute dependency explorer — the
// same way db/repository/neo4j.go mirrors an action dependency DAG: MERGE
// nodes and relationships per Cypher statement inside a managed write
// transaction. Neo4j is never the snapshot's source of truth (that stays
// content-addressed in the LHC, spec §3); this is a disposable, rebuildable
// projection (SPEC_FULL.md §B).
package neo4jexport

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"eve.evalgo.org/internal/wsg"
)

// Exporter mirrors WSG snapshots into a Neo4j database.
type Exporter struct {
	driver neo4j.DriverWithContext
}

// New connects to the Neo4j instance at uri and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Exporter, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}
	return &Exporter{driver: driver}, nil
}

// Close closes the underlying driver.
func (e *Exporter) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

// MirrorSnapshot replaces any previously mirrored graph with snap's current
// nodes and edges. Snapshots are immutable and rebuilt wholesale (spec §4.D
// "snapshots are immutable once published"), so the mirror follows suit
// rather than attempting an incremental diff against whatever a prior
// export left behind.
func (e *Exporter) MirrorSnapshot(ctx context.Context, snap *wsg.Graph) error {
	session := e.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		if _, err := tx.Run(ctx, `MATCH (n:WSGNode) DETACH DELETE n`, nil); err != nil {
			return nil, fmt.Errorf("clear previous mirror: %w", err)
		}

		for _, nodeID := range snap.NodeIDs() {
			w, ok := snap.GetNode(nodeID)
			if !ok {
				continue
			}
			query := `
				MERGE (n:WSGNode {id: $id})
				SET n.kind = $kind, n.hash = $hash
			`
			params := map[string]interface{}{
				"id":   nodeID.String(),
				"kind": w.Kind.String(),
				"hash": w.Hash.String(),
			}
			if _, err := tx.Run(ctx, query, params); err != nil {
				return nil, fmt.Errorf("merge node %s: %w", nodeID, err)
			}
		}

		for _, nodeID := range snap.NodeIDs() {
			for _, e := range snap.EdgesDirected(nodeID) {
				query := `
					MATCH (a:WSGNode {id: $fromId})
					MATCH (b:WSGNode {id: $toId})
					MERGE (a)-[r:WSG_EDGE {kind: $kind}]->(b)
					SET r.ordinal = $ordinal
				`
				params := map[string]interface{}{
					"fromId":  nodeID.String(),
					"toId":    e.Target.String(),
					"kind":    e.Weight.Kind.String(),
					"ordinal": e.Weight.Ordinal,
				}
				if _, err := tx.Run(ctx, query, params); err != nil {
					return nil, fmt.Errorf("merge edge %s -> %s: %w", nodeID, e.Target, err)
				}
			}
		}

		return nil, nil
	})

	return err
}
