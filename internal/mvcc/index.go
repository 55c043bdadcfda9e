package mvcc

// Index is the thin façade over the key→History map. The real primary
// index (concurrent hashing, bucket layout, resize strategy) is an
// external collaborator; Index here is the core's own serialization point
// in front of it. All structural changes
// (insertions, erasures, iteration) are serialized; plain lookups may
// proceed concurrently with each other.
type Index struct {
	lock         rwMutex
	historiesByKey map[string]*History
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		lock:           makeRWMutex(),
		historiesByKey: make(map[string]*History),
	}
}

// Get returns the History for k, if any.
func (ix *Index) Get(k []byte) (*History, bool) {
	ix.lock.RLock()
	defer ix.lock.RUnlock()
	h, ok := ix.historiesByKey[string(k)]
	return h, ok
}

// Put inserts h for k if no history is present yet, returning the history
// that ends up installed (either h, or a pre-existing one raced in ahead of
// us) and whether our insertion won.
func (ix *Index) Put(k []byte, h *History) (installed *History, inserted bool) {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	if existing, ok := ix.historiesByKey[string(k)]; ok {
		return existing, false
	}
	ix.historiesByKey[string(k)] = h
	return h, true
}

// Range visits every (key, history) pair under the exclusive lock. Used by
// recovery for its full-index pass.
func (ix *Index) Range(visit func(key []byte, h *History)) {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	for k, h := range ix.historiesByKey {
		visit([]byte(k), h)
	}
}

// EraseIf removes every history for which pred returns true, under the
// exclusive lock. Used by recovery to drop histories that purge to empty.
func (ix *Index) EraseIf(pred func(h *History) bool) {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	for k, h := range ix.historiesByKey {
		if pred(h) {
			delete(ix.historiesByKey, k)
		}
	}
}
