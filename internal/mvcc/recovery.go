package mvcc

import (
	"fmt"

	"go.uber.org/zap"

	"sehlabs.com/midas/internal/durable"
)

// recover_ rebuilds the in-memory Index from the durable pool and
// normalizes every key's version chain for a fresh session. Ported from
// original_source/src/Store.cpp's Store::init()/purgeHistory(): every
// version in a persisted chain is judged independently by begin-parity
// first, then end-parity, not just the newest one — a version whose
// creator never finalized before the crash (begin still an odd
// transaction id) must be durably deleted regardless of what its end
// field says, so an older, properly committed version further down the
// chain can be revalidated as current instead. The trailing (named here
// "_", suppressed) underscore avoids shadowing the builtin recover.
func recover_(index *Index, alloc *Allocator, pool durable.Pool, log *zap.SugaredLogger) error {
	type loaded struct {
		key   string
		chain []durable.PersistedVersion
	}
	var rows []loaded

	err := pool.View(func(tx durable.Tx) error {
		bucket := tx.Bucket(durable.IndexBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			chain, err := durable.DecodeChain(v)
			if err != nil {
				return fmt.Errorf("recovery: decoding chain for %q: %w", k, err)
			}
			rows = append(rows, loaded{key: string(append([]byte(nil), k...)), chain: chain})
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Debugw("recovery: loaded histories", "count", len(rows))

	sessionTS := alloc.CurrentTimestamp()

	for _, row := range rows {
		survivors := purgeChain(row.chain, sessionTS)

		hist := newHistory()
		for i := len(survivors) - 1; i >= 0; i-- {
			s := survivors[i]
			v := newVersion(Stamp(s.Begin), s.Data)
			v.storeBegin(Stamp(s.Begin))
			v.storeEnd(Stamp(s.End))
			hist.prepend(v)
		}
		index.Put([]byte(row.key), hist)
	}

	emptied := 0
	index.EraseIf(func(h *History) bool {
		if h.empty() {
			emptied++
			return true
		}
		return false
	})

	var toWrite []struct {
		key   string
		chain []durable.PersistedVersion
	}
	index.Range(func(key []byte, h *History) {
		h.mu.Lock()
		snapshot := snapshotChain(h)
		h.mu.Unlock()
		toWrite = append(toWrite, struct {
			key   string
			chain []durable.PersistedVersion
		}{key: string(key), chain: snapshot})
	})

	if len(toWrite) > 0 || emptied > 0 {
		err := pool.Update(func(tx durable.Tx) error {
			bucket, err := tx.CreateBucketIfNotExists(durable.IndexBucket)
			if err != nil {
				return err
			}
			for _, row := range toWrite {
				encoded, err := durable.EncodeChain(row.chain)
				if err != nil {
					return err
				}
				if err := bucket.Put([]byte(row.key), encoded); err != nil {
					return err
				}
			}
			for _, row := range rows {
				if len(row.chain) == 0 {
					continue
				}
				if _, present := index.Get([]byte(row.key)); !present {
					if err := bucket.Delete([]byte(row.key)); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("recovery: rewriting normalized chains: %w", err)
		}
	}

	alloc.nextTS.Add(2)

	log.Debugw("recovery: complete", "kept", len(toWrite), "purged", emptied)
	return nil
}

// purgeChain judges every version in a persisted chain independently,
// newest-first, mirroring purgeHistory's four-way branch:
//
//  1. begin is a transaction id: the creator never finalized — delete.
//  2. end == TSInfinity: was current before the crash — rebase begin, keep.
//  3. end is a transaction id: the invalidating writer never finalized, so
//     the version is still valid — rebase begin, reset end, keep.
//  4. otherwise: finally, properly invalidated — delete.
//
// The returned slice preserves the input's newest-first relative order.
func purgeChain(chain []durable.PersistedVersion, sessionTS Stamp) []durable.PersistedVersion {
	var survivors []durable.PersistedVersion
	for _, v := range chain {
		switch {
		case IsTransactionID(Stamp(v.Begin)):
			continue
		case Stamp(v.End) == TSInfinity:
			v.Begin = uint64(sessionTS)
			survivors = append(survivors, v)
		case IsTransactionID(Stamp(v.End)):
			v.Begin = uint64(sessionTS)
			v.End = uint64(TSInfinity)
			survivors = append(survivors, v)
		default:
			continue
		}
	}
	return survivors
}
