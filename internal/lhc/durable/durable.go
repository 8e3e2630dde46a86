// Package durable implements the Layered Hybrid Cache's relational tier:
// the tier of last resort, backing every dbName with a Postgres table via
// GORM. Connection setup (pool sizing, AutoMigrate-on-startup) follows
// db/postgres.go's PGInfo/PGMigrations pattern, generalized from a single
// fixed RabbitLog schema to the LHC's generic (db_name, key) -> value
// shape.
package durable

import (
	"time"

	"eve.evalgo.org/internal/chash"
	"eve.evalgo.org/internal/errkind"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// LayerCacheEntry is one persisted LHC record. DbName+Key is the natural
// key; Key is the hex-encoded content hash so it stays human-inspectable
// in psql.
type LayerCacheEntry struct {
	DbName    string `gorm:"primaryKey"`
	Key       string `gorm:"primaryKey"`
	Value     []byte `gorm:"type:bytea"`
	UpdatedAt time.Time
}

// ChangeSetPointer records which snapshot a change set currently points
// at, the other half of the durable tier's schema (spec §3 "change set
// pointer").
type ChangeSetPointer struct {
	ChangeSetID string `gorm:"primaryKey"`
	SnapshotKey string
	UpdatedAt   time.Time
}

// Tier is the durable (Postgres) tier of the LHC.
type Tier struct {
	db *gorm.DB
}

// Open connects to Postgres at dsn, configures the connection pool, and
// migrates the LHC's schema.
func Open(dsn string) (*Tier, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errkind.Wrap(errkind.CacheDurableWrite, "open postgres", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errkind.Wrap(errkind.CacheDurableWrite, "unwrap sql.DB", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&LayerCacheEntry{}, &ChangeSetPointer{}); err != nil {
		return nil, errkind.Wrap(errkind.CacheDurableWrite, "automigrate", err)
	}

	return &Tier{db: db}, nil
}

// Put upserts value under (dbName, key).
func (t *Tier) Put(dbName string, key chash.Hash, value []byte) error {
	entry := LayerCacheEntry{DbName: dbName, Key: key.String(), Value: value, UpdatedAt: time.Now()}
	err := t.db.Save(&entry).Error
	if err != nil {
		return errkind.Wrap(errkind.CacheDurableWrite, "put entry", err)
	}
	return nil
}

// Get returns the persisted value for (dbName, key).
func (t *Tier) Get(dbName string, key chash.Hash) ([]byte, bool, error) {
	var entry LayerCacheEntry
	err := t.db.Where("db_name = ? AND key = ?", dbName, key.String()).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errkind.Wrap(errkind.CacheDurableWrite, "get entry", err)
	}
	return entry.Value, true, nil
}

// Delete removes the persisted value for (dbName, key), if present.
func (t *Tier) Delete(dbName string, key chash.Hash) error {
	err := t.db.Where("db_name = ? AND key = ?", dbName, key.String()).Delete(&LayerCacheEntry{}).Error
	if err != nil {
		return errkind.Wrap(errkind.CacheDurableWrite, "delete entry", err)
	}
	return nil
}

// SetChangeSetPointer records that changeSetID now points at snapshotKey.
func (t *Tier) SetChangeSetPointer(changeSetID string, snapshotKey chash.Hash) error {
	pointer := ChangeSetPointer{ChangeSetID: changeSetID, SnapshotKey: snapshotKey.String(), UpdatedAt: time.Now()}
	if err := t.db.Save(&pointer).Error; err != nil {
		return errkind.Wrap(errkind.CacheDurableWrite, "set change set pointer", err)
	}
	return nil
}

// GetChangeSetPointer returns the snapshot key changeSetID currently
// points at.
func (t *Tier) GetChangeSetPointer(changeSetID string) (chash.Hash, bool, error) {
	var pointer ChangeSetPointer
	err := t.db.Where("change_set_id = ?", changeSetID).First(&pointer).Error
	if err == gorm.ErrRecordNotFound {
		return chash.Hash{}, false, nil
	}
	if err != nil {
		return chash.Hash{}, false, errkind.Wrap(errkind.CacheDurableWrite, "get change set pointer", err)
	}
	key, err := chash.Parse(pointer.SnapshotKey)
	if err != nil {
		return chash.Hash{}, false, errkind.Wrap(errkind.CacheDeserialize, "parse stored snapshot key", err)
	}
	return key, true, nil
}

// Close releases the underlying connection pool.
func (t *Tier) Close() error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
