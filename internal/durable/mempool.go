package durable

import "sync"

// MemPool is an in-process Pool implementation with no backing file. It
// exists for tests that want the Pool interface without touching disk.
// Unlike BoltPool, its Update does not roll back writes when fn returns an
// error (see Update). It does not survive process restart,
// so it cannot exercise crash-recovery scenarios — tests for that use
// BoltPool against a temp file instead.
type MemPool struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
}

// NewMemPool returns an empty MemPool.
func NewMemPool() *MemPool {
	return &MemPool{buckets: make(map[string]map[string][]byte)}
}

type memBucket struct {
	pool *MemPool
	name string
}

func (b memBucket) data() map[string][]byte {
	m, ok := b.pool.buckets[b.name]
	if !ok {
		m = make(map[string][]byte)
		b.pool.buckets[b.name] = m
	}
	return m
}

func (b memBucket) Get(key []byte) []byte {
	v, ok := b.data()[string(key)]
	if !ok {
		return nil
	}
	return append([]byte(nil), v...)
}

func (b memBucket) Put(key, value []byte) error {
	b.data()[string(key)] = append([]byte(nil), value...)
	return nil
}

func (b memBucket) Delete(key []byte) error {
	delete(b.data(), string(key))
	return nil
}

func (b memBucket) ForEach(fn func(k, v []byte) error) error {
	for k, v := range b.data() {
		if err := fn([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

type memTx struct {
	pool *MemPool
}

func (t memTx) Bucket(name []byte) Bucket {
	if _, ok := t.pool.buckets[string(name)]; !ok {
		return nil
	}
	return memBucket{pool: t.pool, name: string(name)}
}

func (t memTx) CreateBucketIfNotExists(name []byte) (Bucket, error) {
	if _, ok := t.pool.buckets[string(name)]; !ok {
		t.pool.buckets[string(name)] = make(map[string][]byte)
	}
	return memBucket{pool: t.pool, name: string(name)}, nil
}

// Update runs fn while holding the pool's single mutex, all-or-nothing in
// spirit (no partial writes are visible outside fn since no other
// goroutine can observe buckets mid-call), though unlike BoltPool a
// caller-returned error does not roll back writes already applied within
// fn — tests using MemPool should treat mid-fn errors as fatal to the
// pool's state, matching how they're already fatal to the transaction.
func (p *MemPool) Update(fn func(Tx) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(memTx{pool: p})
}

// View runs fn while holding the pool's single mutex.
func (p *MemPool) View(fn func(Tx) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(memTx{pool: p})
}

// Close is a no-op for MemPool.
func (p *MemPool) Close() error { return nil }

var _ Pool = (*MemPool)(nil)
