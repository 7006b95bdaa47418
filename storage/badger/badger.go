/*
	Package badger provides a BadgerDB key-value store for chunked arrays.  It is
	the "distributed array" transport: every worker rank of a run reads and writes
	chunks of the same database.
*/
package badger

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/storage/chunked"
	"github.com/janelia-flyem/tomoflow/tomo"
)

const (
	// DefaultSyncWrites is true if all writes are synced to disk, thereby making db resilient
	// at cost of speed.
	DefaultSyncWrites = false

	// DefaultSyncInterval is how often buffered writes are synced.
	DefaultSyncInterval = 30 * time.Second
)

// Engine describes the badger storage engine.
var Engine = storage.NewEngine("badger", "BadgerDB chunk store", "0.1.0")

// Config holds the settings of a badger store.
type Config struct {
	// Path is the database directory.  Ignored if InMemory.
	Path string

	// InMemory keeps all data in memory, for tests.
	InMemory bool
}

// ParseConfig reads "path" and "inmemory" settings.
func ParseConfig(c tomo.Config) (Config, error) {
	var cfg Config
	path, found, err := c.GetString("path")
	if err != nil {
		return cfg, err
	}
	inMemory, _, err := c.GetBool("inmemory")
	if err != nil {
		return cfg, err
	}
	if !found && !inMemory {
		return cfg, fmt.Errorf("%q must be specified for BadgerDB configuration", "path")
	}
	cfg.Path = path
	cfg.InMemory = inMemory
	return cfg, nil
}

// DB is a chunked.KV on BadgerDB.
type DB struct {
	directory string
	bdp       *badger.DB

	stopSyncCh chan struct{}
	closeOnce  sync.Once
}

// Open opens or creates a badger database.
func Open(cfg Config) (*DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0744); err != nil {
			return nil, fmt.Errorf("Can't make directory at %s: %v", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1).WithSyncWrites(DefaultSyncWrites).WithLogger(nil)

	tlog := tomo.NewTimeLog()
	bdp, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	db := &DB{directory: cfg.Path, bdp: bdp, stopSyncCh: make(chan struct{})}
	if !cfg.InMemory {
		go db.syncPeriodically(DefaultSyncInterval)
	}
	tlog.Debugf("Opened badger @ %q", cfg.Path)
	return db, nil
}

// NewStore opens a badger database and wraps it as a chunked array store.
func NewStore(cfg Config, opts chunked.Options) (*chunked.Store, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return chunked.New(db, Engine, opts), nil
}

// Periodically sync to prevent too many writes from being buffered
// if the run crashes.
func (db *DB) syncPeriodically(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopSyncCh:
			return
		case <-ticker.C:
			if err := db.bdp.Sync(); err != nil {
				tomo.Errorf("badger sync @ %s: %v\n", db.directory, err)
			}
		}
	}
}

func (db *DB) String() string {
	return fmt.Sprintf("badger @ %s", db.directory)
}

func (db *DB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

func (db *DB) Put(key, value []byte) error {
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (db *DB) Delete(key []byte) error {
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// DeletePrefix removes every key starting with prefix.
func (db *DB) DeletePrefix(prefix []byte) error {
	return db.bdp.DropPrefix(prefix)
}

// Close stops the sync goroutine and closes the database.
func (db *DB) Close() error {
	var err error
	db.closeOnce.Do(func() {
		close(db.stopSyncCh)
		err = db.bdp.Close()
		tomo.Debugf("Closed Badger DB @ %s\n", db.directory)
	})
	return err
}
