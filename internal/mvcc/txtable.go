package mvcc

import "sync"

// txTable is the global, concurrent transaction table keyed by id, used to
// resolve a stamp embedded in a version's begin/end field into the
// status/end of its writer. sync.Map fits this access pattern exactly —
// many concurrent reads (visibility checks resolving an id found in a
// version) against occasional inserts/deletes (begin/commit/abort) for a
// disjoint set of keys each time, which is precisely the case the stdlib
// documents sync.Map for. No caller-held lock is required to use it.
type txTable struct {
	byID sync.Map // Stamp -> *Transaction
}

func newTxTable() *txTable {
	return &txTable{}
}

func (t *txTable) insert(tx *Transaction) {
	t.byID.Store(tx.id, tx)
}

func (t *txTable) lookup(id Stamp) (*Transaction, bool) {
	v, ok := t.byID.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Transaction), true
}

func (t *txTable) remove(id Stamp) {
	t.byID.Delete(id)
}
