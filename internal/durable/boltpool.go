package durable

import (
	"fmt"
	"time"

	"github.com/gofrs/flock"
	bolt "go.etcd.io/bbolt"
)

// IndexBucket is the name of the top-level bbolt bucket holding the
// persisted layout: one entry per key, whose value is the gob-encoded
// version chain for that key (see codec.go).
var IndexBucket = []byte("index")

// BoltPool is the Pool implementation backing a real on-disk file. It pairs
// bbolt's own single-writer, multi-reader MVCC transactions (bbolt's
// *bolt.Tx already is the scoped, all-or-nothing, flush-on-success
// primitive this needs) with an explicit gofrs/flock guard on the
// pool file, so two processes racing to open the same file get a clear
// domain error instead of bbolt's lower-level one.
type BoltPool struct {
	db   *bolt.DB
	flk  *flock.Flock
	path string
}

// OpenBoltPool opens or creates the pool file at path, taking an exclusive
// process-wide lock on it first.
func OpenBoltPool(path string) (*BoltPool, error) {
	flk := flock.New(path + ".lock")
	locked, err := flk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("durable: acquiring pool lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("durable: pool file %q already in use", path)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		_ = flk.Unlock()
		return nil, fmt.Errorf("durable: opening pool file %q: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(IndexBucket)
		return err
	}); err != nil {
		_ = db.Close()
		_ = flk.Unlock()
		return nil, fmt.Errorf("durable: initializing pool root: %w", err)
	}

	return &BoltPool{db: db, flk: flk, path: path}, nil
}

type boltTx struct {
	tx *bolt.Tx
}

func (t boltTx) Bucket(name []byte) Bucket {
	b := t.tx.Bucket(name)
	if b == nil {
		return nil
	}
	return b
}

func (t boltTx) CreateBucketIfNotExists(name []byte) (Bucket, error) {
	return t.tx.CreateBucketIfNotExists(name)
}

// Update runs fn inside one durable, all-or-nothing bbolt read-write
// transaction.
func (p *BoltPool) Update(fn func(Tx) error) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return fn(boltTx{tx})
	})
}

// View runs fn inside one bbolt read-only transaction.
func (p *BoltPool) View(fn func(Tx) error) error {
	return p.db.View(func(tx *bolt.Tx) error {
		return fn(boltTx{tx})
	})
}

// Close closes the backing file and releases the pool-file lock.
func (p *BoltPool) Close() error {
	closeErr := p.db.Close()
	unlockErr := p.flk.Unlock()
	if closeErr != nil {
		return closeErr
	}
	return unlockErr
}
