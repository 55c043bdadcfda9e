package mvcc

// isReadable and isWritable are the pure visibility predicates governing
// snapshot isolation, ported from original_source/src/Store.cpp's
// isReadable/isWritable.

// isReadable reports whether tx may read v: the version's creation must
// have committed no later than tx's begin stamp, and its invalidation, if
// any, must not have committed before tx began (a still-pending or failed
// invalidator leaves v readable).
func isReadable(v *Version, tx *Transaction, tab *txTable) bool {
	begin := v.Begin()
	if IsTransactionID(begin) {
		writer, ok := tab.lookup(begin)
		if !ok || writer.Status() != Committed || writer.End() > tx.Begin() {
			return false
		}
	} else if begin >= tx.Begin() {
		return false
	}

	end := v.End()
	if IsTransactionID(end) {
		invalidator, ok := tab.lookup(end)
		if ok && invalidator.Status() == Committed && invalidator.End() < tx.Begin() {
			return false
		}
	} else if end < tx.Begin() {
		return false
	}
	return true
}

// isWritable reports whether tx may claim v for update or removal. Shares
// the begin-side test with isReadable but applies a strictly tighter
// end-side test: the version must be current (End == TSInfinity), or
// abandoned by a failed owner — a committed successor, even one that only
// became visible after tx began, still blocks the write. This asymmetry is
// what enforces first-writer-wins.
func isWritable(v *Version, tx *Transaction, tab *txTable) bool {
	begin := v.Begin()
	if IsTransactionID(begin) {
		writer, ok := tab.lookup(begin)
		if !ok || writer.Status() != Committed || writer.End() > tx.Begin() {
			return false
		}
	} else if begin >= tx.Begin() {
		return false
	}

	end := v.End()
	if IsTransactionID(end) {
		owner, ok := tab.lookup(end)
		if !ok || owner.Status() != Failed {
			return false
		}
	} else if end != TSInfinity {
		return false
	}
	return true
}
