// Package durable provides the external, out-of-core collaborators: a pool
// open/create/check primitive, a durable transactional block that makes a
// scoped region all-or-nothing and flushes on success, and durable
// allocation of the byte arrays backing keys and values. The core
// transactional engine (internal/mvcc) only depends on the Pool interface
// below; BoltPool is the one concrete implementation, backed by
// go.etcd.io/bbolt.
package durable

// Tx is one durable transactional block: a scoped region whose writes are
// all-or-nothing and, on success, flushed to stable storage before the
// block returns. It is the minimal subset of *bbolt.Tx the core needs;
// BoltPool wraps a live *bbolt.Tx in a thin adapter (boltTx) that returns
// its buckets through the Bucket interface.
type Tx interface {
	// Bucket returns an existing top-level bucket, or nil if none exists
	// under that name.
	Bucket(name []byte) Bucket
	// CreateBucketIfNotExists returns the named top-level bucket, creating
	// it first if necessary. Only valid inside a read-write Tx.
	CreateBucketIfNotExists(name []byte) (Bucket, error)
}

// Bucket is a durable key→value namespace. The core uses a single one,
// IndexBucket, holding the per-key version-chain snapshots.
type Bucket interface {
	Get(key []byte) []byte
	Put(key, value []byte) error
	Delete(key []byte) error
	ForEach(fn func(k, v []byte) error) error
}

// Pool is the bootstrap primitive: open-or-create a single backing file
// and expose durable transactional blocks against it. Pool itself performs
// no corruption checking beyond what the backing store already refuses to
// open: an incompatible or corrupt file must simply fail to open, which
// OpenBoltPool already guarantees for BoltPool.
type Pool interface {
	// Update runs fn inside one durable, read-write transactional block.
	// If fn returns an error, BoltPool rolls back every write it made and
	// flushes nothing (MemPool does not roll back; see MemPool.Update); the
	// block's error is returned unchanged.
	Update(fn func(Tx) error) error
	// View runs fn inside one read-only transactional block. Safe to call
	// concurrently with other View calls and with Update.
	View(fn func(Tx) error) error
	// Close releases the pool's resources, including its file lock.
	Close() error
}
