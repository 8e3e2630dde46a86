// Package cacheupdater implements the Layered Hybrid Cache's cross-instance
// invalidation path: a background subscriber on the LayerDBEvents subject
// tree that evicts memory-tier entries another instance wrote, so every
// instance's memory tier stays no-more-than-eventually-stale relative to
// the durable tier (spec §4.C "cross-instance invalidation").
package cacheupdater

import (
	"context"
	"log"

	"eve.evalgo.org/internal/bus"
	"eve.evalgo.org/internal/chash"
)

// MemoryEvictor is the subset of memtier.Tier the updater needs.
type MemoryEvictor interface {
	Remove(dbName string, key chash.Hash)
}

// Updater subscribes to invalidation events and evicts matching memory-tier
// entries, skipping events this same instance originated (it already
// updated its own memory tier inline — re-applying its own event would
// just be wasted work, not a correctness issue, but skipping it keeps the
// hot path from thrashing on its own writes).
type Updater struct {
	transport  bus.Transport
	subjects   bus.Subjects
	memory     MemoryEvictor
	instanceID string
}

// New returns an Updater for instanceID.
func New(transport bus.Transport, memory MemoryEvictor, instanceID string) *Updater {
	return &Updater{
		transport:  transport,
		subjects:   bus.DefaultSubjects(),
		memory:     memory,
		instanceID: instanceID,
	}
}

// Run subscribes to workspaceID/changeSetID's invalidation events for
// dbName and evicts the memory tier as events arrive, until ctx is
// cancelled.
func (u *Updater) Run(ctx context.Context, workspaceID, changeSetID, dbName, op string) error {
	subject := u.subjects.LayerDBEvents(workspaceID, changeSetID, dbName, op)
	sub, err := u.transport.Subscribe(ctx, subject, "lhc-cacheupdater-"+dbName)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			u.handle(ctx, sub, msg, dbName)
		}
	}
}

func (u *Updater) handle(ctx context.Context, sub bus.Subscription, msg bus.Message, dbName string) {
	if msg.Headers.InstanceID == u.instanceID {
		if err := sub.Ack(ctx, msg); err != nil {
			log.Printf("cacheupdater: ack self-originated event: %v", err)
		}
		return
	}

	key, err := chash.Parse(msg.Headers.Key)
	if err != nil {
		log.Printf("cacheupdater: malformed invalidation key %q: %v", msg.Headers.Key, err)
		if ackErr := sub.Ack(ctx, msg); ackErr != nil {
			log.Printf("cacheupdater: ack malformed event: %v", ackErr)
		}
		return
	}

	u.memory.Remove(dbName, key)
	if err := sub.Ack(ctx, msg); err != nil {
		log.Printf("cacheupdater: ack invalidation event: %v", err)
	}
}
