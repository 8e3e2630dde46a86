// Package memtier implements the Layered Hybrid Cache's memory tier: a
// size-bounded LRU in front of the disk/durable tiers, with admission
// rate-limited so a burst of disk-tier reads for entries that will never
// be read again does not thrash the hot set (spec §4.C "admission
// control").
package memtier

import (
	"eve.evalgo.org/internal/chash"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// entry is one value tracked by the memory tier, namespaced by dbName
// since distinct LHC dbs may reuse the same content hash for unrelated
// values.
type entryKey struct {
	dbName string
	key    chash.Hash
}

// Tier is the in-process memory tier. Its capacity is measured in entry
// count (the LHC's byte-budget translation to an entry count happens in
// the caller wiring memtier up, cmd/si-core's buildCache, since average
// entry size is workload-dependent).
type Tier struct {
	cache    *lru.Cache[entryKey, []byte]
	admitter *rate.Limiter
}

// New returns a Tier holding up to capacity entries, admitting new entries
// (promotions from the disk/durable tiers) at up to admitPerSecond per
// second with a burst of admitBurst.
func New(capacity int, admitPerSecond float64, admitBurst int) (*Tier, error) {
	cache, err := lru.New[entryKey, []byte](capacity)
	if err != nil {
		return nil, err
	}
	return &Tier{
		cache:    cache,
		admitter: rate.NewLimiter(rate.Limit(admitPerSecond), admitBurst),
	}, nil
}

// Get returns the cached value for (dbName, key), promoting it to
// most-recently-used.
func (t *Tier) Get(dbName string, key chash.Hash) ([]byte, bool) {
	return t.cache.Get(entryKey{dbName: dbName, key: key})
}

// Admit attempts to insert value into the tier. It returns false without
// inserting when the admission rate limiter is exhausted — the caller
// should still serve the value to its own request, it simply won't be
// promoted into the hot set this time (spec §4.C: admission control
// protects the memory tier's working set, it never blocks a read).
func (t *Tier) Admit(dbName string, key chash.Hash, value []byte) bool {
	if !t.admitter.Allow() {
		return false
	}
	t.cache.Add(entryKey{dbName: dbName, key: key}, value)
	return true
}

// Remove evicts (dbName, key) from the memory tier, used when a bus
// invalidation event arrives for an entry another instance wrote (spec
// §4.C "cross-instance invalidation").
func (t *Tier) Remove(dbName string, key chash.Hash) {
	t.cache.Remove(entryKey{dbName: dbName, key: key})
}

// Len returns the number of entries currently resident.
func (t *Tier) Len() int { return t.cache.Len() }

// Purge evicts every entry, used when a cross-instance invalidation event
// cannot name individual keys (e.g. a bulk change-set rebase).
func (t *Tier) Purge() { t.cache.Purge() }
