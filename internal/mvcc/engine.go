package mvcc

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sehlabs.com/midas/internal/durable"
)

// errConflict is an internal-only sentinel used to short-circuit the
// durable.Pool.Update callback in persist(); it never escapes Engine.
var errConflict = errors.New("mvcc: internal conflict marker")

// Engine implements the client-facing operations:
// begin/read/write/drop/commit/abort, backed by an Index façade, a
// global transaction table, a monotonic Allocator, and a durable
// Pool for the persist/finalize/rollback steps' transactional blocks.
type Engine struct {
	alloc *Allocator
	index *Index
	tab   *txTable
	pool  durable.Pool
	log   *zap.SugaredLogger
}

// NewEngine constructs an Engine against pool, running the recovery pass
// before returning so the engine never serves a transaction against an
// un-normalized history. log may be nil, in which case a no-op logger is
// used.
func NewEngine(pool durable.Pool, log *zap.SugaredLogger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	e := &Engine{
		alloc: NewAllocator(),
		index: NewIndex(),
		tab:   newTxTable(),
		pool:  pool,
		log:   log,
	}
	if err := recover_(e.index, e.alloc, pool, log); err != nil {
		return nil, fmt.Errorf("mvcc: recovery: %w", err)
	}
	return e, nil
}

// Begin allocates a fresh transaction id and begin stamp, registers it in
// the transaction table, and returns a handle. Transactions are
// thread-confined: concurrent calls against the same handle are not
// supported.
func (e *Engine) Begin() *Transaction {
	id := e.alloc.AllocateID()
	begin := e.alloc.AllocateTS()
	tx := newTransaction(id, begin)
	e.tab.insert(tx)
	e.log.Debugw("transaction begun", "id", uint64(id), "begin", uint64(begin))
	return tx
}

func (e *Engine) validate(tx *Transaction) error {
	if tx == nil {
		return newInvalidTxError()
	}
	if found, ok := e.tab.lookup(tx.id); !ok || found != tx || tx.Status() != Active {
		return newInvalidTxError()
	}
	return nil
}

// Read returns the value visible to tx for key, or ErrValueNotFound if no
// version of key is readable from tx's snapshot. On ErrValueNotFound, tx is
// aborted as a side effect.
func (e *Engine) Read(tx *Transaction, key []byte) ([]byte, error) {
	if err := e.validate(tx); err != nil {
		return nil, err
	}

	hist, ok := e.index.Get(key)
	if !ok {
		_ = e.Abort(tx, newValueNotFoundError(key))
		return nil, newValueNotFoundError(key)
	}

	var found *Version
	hist.mu.Lock()
	hist.forEach(func(v *Version) bool {
		if isReadable(v, tx, e.tab) {
			found = v
			return false
		}
		return true
	})
	hist.mu.Unlock()

	if found == nil {
		_ = e.Abort(tx, newValueNotFoundError(key))
		return nil, newValueNotFoundError(key)
	}
	return append([]byte(nil), found.Data()...), nil
}

// Write stages an insert or update of key within tx's change set. The new
// value is not visible to other transactions, or to tx's own reads, until
// commit — read-your-own-writes is explicitly not part of this contract.
func (e *Engine) Write(tx *Transaction, key []byte, value []byte) error {
	if err := e.validate(tx); err != nil {
		return err
	}

	if change, ok := tx.changeSet[string(key)]; ok {
		change.Delta = append([]byte(nil), value...)
		if change.Kind == ChangeRemove {
			change.Kind = ChangeUpdate
		}
		return nil
	}

	hist, ok := e.index.Get(key)
	if !ok {
		tx.changeSet[string(key)] = &Change{Kind: ChangeInsert, Delta: append([]byte(nil), value...)}
		return nil
	}

	hist.mu.Lock()
	var candidate *Version
	hist.forEach(func(v *Version) bool {
		if isWritable(v, tx, e.tab) {
			candidate = v
			return false
		}
		return true
	})
	if candidate == nil {
		if !hist.hasValidSnapshots() {
			hist.mu.Unlock()
			tx.changeSet[string(key)] = &Change{Kind: ChangeInsert, Delta: append([]byte(nil), value...)}
			return nil
		}
		hist.mu.Unlock()
		_ = e.Abort(tx, newValueNotFoundError(key))
		return newValueNotFoundError(key)
	}
	candidate.storeEnd(tx.id)
	hist.mu.Unlock()

	tx.changeSet[string(key)] = &Change{Kind: ChangeUpdate, VOrigin: candidate, Delta: append([]byte(nil), value...)}
	return nil
}

// Drop stages removal of key within tx's change set.
func (e *Engine) Drop(tx *Transaction, key []byte) error {
	if err := e.validate(tx); err != nil {
		return err
	}

	if change, ok := tx.changeSet[string(key)]; ok {
		switch change.Kind {
		case ChangeUpdate:
			change.Kind = ChangeRemove
			change.Delta = nil
			return nil
		case ChangeInsert:
			delete(tx.changeSet, string(key))
			// VOrigin is nil by definition for an Insert entry; guard this
			// store as a no-op.
			if change.VOrigin != nil {
				change.VOrigin.storeEnd(TSInfinity)
			}
			return nil
		case ChangeRemove:
			return newValueNotFoundError(key)
		}
	}

	hist, ok := e.index.Get(key)
	if !ok {
		_ = e.Abort(tx, newValueNotFoundError(key))
		return newValueNotFoundError(key)
	}

	hist.mu.Lock()
	var candidate *Version
	hist.forEach(func(v *Version) bool {
		if isWritable(v, tx, e.tab) {
			candidate = v
			return false
		}
		return true
	})
	if candidate == nil {
		hist.mu.Unlock()
		_ = e.Abort(tx, newValueNotFoundError(key))
		return newValueNotFoundError(key)
	}
	candidate.storeEnd(tx.id)
	hist.mu.Unlock()

	tx.changeSet[string(key)] = &Change{Kind: ChangeRemove, VOrigin: candidate}
	return nil
}

// Commit attempts to make tx's staged changes permanent. On success every
// touched key's new current version becomes visible to transactions
// beginning after tx.End(). On ErrWriteConflict, tx has already been
// aborted and rolled back.
func (e *Engine) Commit(tx *Transaction) error {
	if err := e.validate(tx); err != nil {
		return err
	}

	tx.setEnd(e.alloc.AllocateTS())

	if !e.persist(tx) {
		return e.Abort(tx, newWriteConflictError(nil))
	}

	tx.setStatus(Committed)
	e.finalize(tx)
	e.tab.remove(tx.id)

	e.log.Debugw("transaction committed", "id", uint64(tx.id), "end", uint64(tx.End()))
	return nil
}

// Abort marks tx Failed, rolls back its staged changes, removes it from
// the transaction table, and returns reason unchanged (so callers can
// thread a specific error like ErrValueNotFound or ErrWriteConflict through
// unmodified).
func (e *Engine) Abort(tx *Transaction, reason error) error {
	if err := e.validate(tx); err != nil {
		return err
	}
	tx.setStatus(Failed)
	e.rollback(tx)
	e.tab.remove(tx.id)
	e.log.Debugw("transaction aborted", "id", uint64(tx.id), "reason", reason)
	return reason
}

// persist installs a new Version for every Insert/Update change in tx's
// change set, resolving or creating each key's History, and journals the
// resulting chain to the durable pool. It processes keys one at a time and,
// on the first write/write conflict, stops and returns false without
// unwinding versions already installed for earlier keys in the same change
// set — original_source/src/Store.cpp's own persist() has the identical
// gap: it aborts the loop on the first conflict but never walks back the
// changes already applied to earlier keys in the same pass either. This
// port keeps that behavior rather than engineering a two-phase
// validate-then-install protocol the original never had.
func (e *Engine) persist(tx *Transaction) bool {
	err := e.pool.Update(func(dtx durable.Tx) error {
		for key, change := range tx.changeSet {
			if change.Kind == ChangeRemove {
				continue
			}

			newVer := newVersion(tx.id, change.Delta)

			hist, err := e.resolveTargetHistory(key, change.Kind)
			if err != nil {
				return err
			}

			hist.mu.Lock()
			hist.prepend(newVer)
			snapshot := snapshotChain(hist)
			hist.mu.Unlock()

			change.VNew = newVer

			encoded, err := durable.EncodeChain(snapshot)
			if err != nil {
				return err
			}
			bucket, err := dtx.CreateBucketIfNotExists(durable.IndexBucket)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(key), encoded); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.log.Debugw("transaction persist conflict", "id", uint64(tx.id), "err", err)
		return false
	}
	return true
}

// resolveTargetHistory implements the Update/Insert branch of the persist
// step, including the write/write conflict check for a duplicate
// insert against a history with valid snapshots.
func (e *Engine) resolveTargetHistory(key string, kind ChangeKind) (*History, error) {
	if kind == ChangeUpdate {
		hist, ok := e.index.Get([]byte(key))
		if !ok {
			return nil, fmt.Errorf("%w: update target history for %q vanished", errConflict, key)
		}
		return hist, nil
	}

	// Insert.
	if hist, ok := e.index.Get([]byte(key)); ok {
		hist.mu.Lock()
		valid := hist.hasValidSnapshots()
		hist.mu.Unlock()
		if valid {
			return nil, fmt.Errorf("%w: insert races a live history for %q", errConflict, key)
		}
		return hist, nil
	}

	fresh := newHistory()
	installed, inserted := e.index.Put([]byte(key), fresh)
	if inserted {
		return installed, nil
	}
	// Someone else's history won the race; fall back to the same
	// reuse-if-empty check.
	installed.mu.Lock()
	valid := installed.hasValidSnapshots()
	installed.mu.Unlock()
	if valid {
		return nil, fmt.Errorf("%w: insert races a live history for %q", errConflict, key)
	}
	return installed, nil
}

// finalize propagates tx's commit timestamp to every version it touched:
// new versions are rebased from their in-flight tx-id begin stamp, and
// invalidated origins have their end stamp finalized. A plain store
// suffices for the origin's end field because, by construction, no
// contender may own it while it still carries tx's own id.
func (e *Engine) finalize(tx *Transaction) {
	end := tx.End()
	_ = e.pool.Update(func(dtx durable.Tx) error {
		touched := make(map[string]struct{}, len(tx.changeSet))
		for key, change := range tx.changeSet {
			switch change.Kind {
			case ChangeInsert:
				change.VNew.storeBegin(end)
			case ChangeUpdate:
				change.VNew.storeBegin(end)
				change.VOrigin.storeEnd(end)
			case ChangeRemove:
				change.VOrigin.storeEnd(end)
			}
			touched[key] = struct{}{}
		}
		return e.journalTouched(dtx, touched)
	})
}

// rollback reverses tx's staged changes: newly installed versions are
// zeroed so they can never become visible, and invalidated origins are
// returned to TSInfinity via CAS — a plain store would risk clobbering a
// later transaction that legitimately reclaimed the version after seeing
// tx marked Failed.
func (e *Engine) rollback(tx *Transaction) {
	_ = e.pool.Update(func(dtx durable.Tx) error {
		touched := make(map[string]struct{}, len(tx.changeSet))
		for key, change := range tx.changeSet {
			switch change.Kind {
			case ChangeInsert:
				if change.VNew != nil {
					change.VNew.storeBegin(TSZero)
					change.VNew.storeEnd(TSZero)
				}
			case ChangeUpdate:
				if change.VNew != nil {
					change.VNew.storeBegin(TSZero)
					change.VNew.storeEnd(TSZero)
				}
				change.VOrigin.casEnd(tx.id, TSInfinity)
			case ChangeRemove:
				change.VOrigin.casEnd(tx.id, TSInfinity)
			}
			touched[key] = struct{}{}
		}
		return e.journalTouched(dtx, touched)
	})
}

// journalTouched re-encodes and rewrites the durable snapshot for each
// touched key, reflecting the post-finalize or post-rollback in-memory
// state.
func (e *Engine) journalTouched(dtx durable.Tx, touched map[string]struct{}) error {
	if len(touched) == 0 {
		return nil
	}
	bucket, err := dtx.CreateBucketIfNotExists(durable.IndexBucket)
	if err != nil {
		return err
	}
	for key := range touched {
		hist, ok := e.index.Get([]byte(key))
		if !ok {
			continue
		}
		hist.mu.Lock()
		snapshot := snapshotChain(hist)
		hist.mu.Unlock()
		encoded, err := durable.EncodeChain(snapshot)
		if err != nil {
			return err
		}
		if err := bucket.Put([]byte(key), encoded); err != nil {
			return err
		}
	}
	return nil
}

// snapshotChain copies hist's chain into the durable wire shape. Caller
// must hold hist.mu.
func snapshotChain(hist *History) []durable.PersistedVersion {
	out := make([]durable.PersistedVersion, 0, len(hist.chain))
	for _, v := range hist.chain {
		out = append(out, durable.PersistedVersion{
			Begin: uint64(v.Begin()),
			End:   uint64(v.End()),
			Data:  append([]byte(nil), v.Data()...),
		})
	}
	return out
}
