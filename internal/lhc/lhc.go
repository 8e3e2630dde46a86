// Package lhc assembles the Layered Hybrid Cache's tiers (memtier,
// disktier, durable, persister, cacheupdater) into the single read/write
// surface the rest of the core talks to: memory -> disk -> durable on
// read, with write-behind durable persistence and bus-driven cross-
// instance invalidation on write (spec §4.C).
package lhc

import (
	"context"

	"eve.evalgo.org/internal/bus"
	"eve.evalgo.org/internal/chash"
	"eve.evalgo.org/internal/lhc/disktier"
	"eve.evalgo.org/internal/lhc/memtier"
	"eve.evalgo.org/internal/lhc/persister"
)

// DurableStore is the subset of durable.Tier the cache depends on,
// abstracted so callers can substitute couchdb/kivik-backed storage or a
// test double without this package depending on gorm directly.
type DurableStore interface {
	Get(dbName string, key chash.Hash) ([]byte, bool, error)
}

// Cache is the Layered Hybrid Cache's client-facing handle: one per
// process, shared across every request the instance serves (spec §5
// "singleton per instance").
type Cache struct {
	memory     *memtier.Tier
	disk       *disktier.Tier
	durable    DurableStore
	persister  *persister.Persister
	transport  bus.Transport
	subjects   bus.Subjects
	instanceID string
}

// New assembles a Cache from its tiers. persist may be nil, in which case
// writes are not durably persisted (useful for tests exercising only the
// fast tiers).
func New(memory *memtier.Tier, disk *disktier.Tier, durable DurableStore, persist *persister.Persister, transport bus.Transport, instanceID string) *Cache {
	return &Cache{
		memory:     memory,
		disk:       disk,
		durable:    durable,
		persister:  persist,
		transport:  transport,
		subjects:   bus.DefaultSubjects(),
		instanceID: instanceID,
	}
}

// Get resolves key from the memory tier, falling through to disk and then
// durable storage, promoting into faster tiers on the way back up (spec §4.C
// "read-through promotion").
func (c *Cache) Get(dbName string, key chash.Hash) ([]byte, bool, error) {
	if value, ok := c.memory.Get(dbName, key); ok {
		return value, true, nil
	}

	value, ok, err := c.disk.Get(dbName, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		c.memory.Admit(dbName, key, value)
		return value, true, nil
	}

	if c.durable == nil {
		return nil, false, nil
	}
	value, ok, err = c.durable.Get(dbName, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	c.memory.Admit(dbName, key, value)
	if err := c.disk.Put(dbName, key, value); err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Insert writes value under (dbName, key) to the memory and disk tiers
// synchronously, queues a write-behind durable persist, and publishes a
// LayerDBEvents invalidation so other instances evict their own copy
// (spec §4.C "write path").
func (c *Cache) Insert(ctx context.Context, dbName string, key chash.Hash, value []byte) error {
	c.memory.Admit(dbName, key, value)
	if err := c.disk.Put(dbName, key, value); err != nil {
		return err
	}

	if c.persister != nil {
		c.persister.Enqueue(persister.Write{DbName: dbName, Key: key, Value: value})
	}

	if c.transport == nil {
		return nil
	}
	subject := c.subjects.LayerDBEvents("", "", dbName, "insert")
	return c.transport.Publish(ctx, bus.Message{
		Subject: subject,
		Headers: bus.Headers{InstanceID: c.instanceID, DbName: dbName, Key: key.String()},
	}, bus.PublishOptions{})
}

// Evict removes (dbName, key) from the memory and disk tiers and
// publishes an invalidation, without touching the durable tier (durable
// deletes are a separate, explicit operation — spec §4.C never implicitly
// deletes the system of record from a cache eviction).
func (c *Cache) Evict(ctx context.Context, dbName string, key chash.Hash) error {
	c.memory.Remove(dbName, key)
	if err := c.disk.Delete(dbName, key); err != nil {
		return err
	}
	if c.transport == nil {
		return nil
	}
	subject := c.subjects.LayerDBEvents("", "", dbName, "evict")
	return c.transport.Publish(ctx, bus.Message{
		Subject: subject,
		Headers: bus.Headers{InstanceID: c.instanceID, DbName: dbName, Key: key.String()},
	}, bus.PublishOptions{})
}
