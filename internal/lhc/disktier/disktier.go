// Package disktier implements the Layered Hybrid Cache's disk tier: a
// bbolt-backed store, one bucket per logical db name, holding the
// serialized bytes the cache writes through on insert (stored as given,
// uncompressed), consulted after a memory-tier miss. Wrapper shape (Open/CreateBucket/PutJSON-equivalent)
// follows db/bolt/bolt.go, generalized from a single flat bucket namespace
// to one bucket per LHC "db name" (spec §4.C "per-dbName namespacing").
package disktier

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"eve.evalgo.org/internal/chash"
	"eve.evalgo.org/internal/errkind"
	bolt "go.etcd.io/bbolt"
)

// Tier is the disk tier of the Layered Hybrid Cache.
type Tier struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt database at path.
func Open(path string) (*Tier, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("disktier: open %s: %w", path, err)
	}
	return &Tier{db: db}, nil
}

// Close releases the underlying bbolt file.
func (t *Tier) Close() error { return t.db.Close() }

// envelope is the on-disk record: the content hash the value was stored
// under, stored alongside it so Get can detect bit-rot/truncation without
// a separate checksum index.
func encodeEnvelope(key chash.Hash, value []byte) []byte {
	buf := make([]byte, chash.Size+8+len(value))
	copy(buf, key[:])
	binary.BigEndian.PutUint64(buf[chash.Size:], uint64(len(value)))
	copy(buf[chash.Size+8:], value)
	return buf
}

func decodeEnvelope(raw []byte) (chash.Hash, []byte, bool) {
	if len(raw) < chash.Size+8 {
		return chash.Hash{}, nil, false
	}
	var key chash.Hash
	copy(key[:], raw[:chash.Size])
	length := binary.BigEndian.Uint64(raw[chash.Size : chash.Size+8])
	value := raw[chash.Size+8:]
	if uint64(len(value)) != length {
		return chash.Hash{}, nil, false
	}
	return key, value, true
}

// Put stores value under key in dbName's bucket, creating the bucket on
// first use (matching bolt.go's CreateBucketIfNotExists-on-write idiom).
func (t *Tier) Put(dbName string, key chash.Hash, value []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(dbName))
		if err != nil {
			return fmt.Errorf("disktier: create bucket %s: %w", dbName, err)
		}
		return b.Put(key[:], encodeEnvelope(key, value))
	})
}

// Get reads the value stored under key in dbName's bucket. If the stored
// envelope cannot be decoded, or its recorded key does not match the
// lookup key (corruption: truncated write, partial flush), the entry is
// evicted within the same call and Get reports a miss rather than
// returning bad bytes to the caller (spec §7 disk-tier corruption
// recovery: "evict and treat as miss", never surface malformed data).
func (t *Tier) Get(dbName string, key chash.Hash) ([]byte, bool, error) {
	var value []byte
	var found bool
	var corrupt bool

	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(dbName))
		if b == nil {
			return nil
		}
		raw := b.Get(key[:])
		if raw == nil {
			return nil
		}
		storedKey, decoded, ok := decodeEnvelope(raw)
		if !ok || !bytes.Equal(storedKey[:], key[:]) {
			corrupt = true
			return nil
		}
		value = append([]byte(nil), decoded...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, errkind.Wrap(errkind.CacheDeserialize, "disktier get", err)
	}

	if corrupt {
		if delErr := t.Delete(dbName, key); delErr != nil {
			return nil, false, errkind.Wrap(errkind.CacheDeserialize, "disktier evict corrupt entry", delErr)
		}
		return nil, false, nil
	}
	return value, found, nil
}

// Delete removes key from dbName's bucket. Deleting a key from a bucket
// that does not yet exist is not an error.
func (t *Tier) Delete(dbName string, key chash.Hash) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(dbName))
		if b == nil {
			return nil
		}
		return b.Delete(key[:])
	})
}

// Keys returns every key currently stored in dbName's bucket, used by bulk
// recovery (spec §8 P8: rebuilding the memory tier from disk on restart).
func (t *Tier) Keys(dbName string) ([]chash.Hash, error) {
	var keys []chash.Hash
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(dbName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			var h chash.Hash
			copy(h[:], k)
			keys = append(keys, h)
			return nil
		})
	})
	return keys, err
}
