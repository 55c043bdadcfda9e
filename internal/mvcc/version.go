package mvcc

import "sync/atomic"

// Version is an immutable (except for Begin and End) record of one value a
// key held, in flight or committed. Both fields are atomic: Begin starts as
// the creator's odd transaction id and is rebased once, at finalize, to the
// creator's commit timestamp, or zeroed (with End) at rollback; original_source/include/version.hpp flags its
// C++ begin field with "// TODO make atomic" and never resolves it — Go's
// memory model doesn't tolerate that benign-looking race the way the
// original's single-threaded-per-field assumption did, so this port
// resolves the TODO. End transitions through ownership claims via atomic
// store/CAS to permit lock-free handover between contending writers.
type Version struct {
	begin atomic.Uint64
	end   atomic.Uint64
	data  []byte
}

// newVersion constructs a version owned (in-flight) by the given writer.
// Begin carries the writer's odd transaction id until finalize rebases it
// to the writer's commit timestamp.
func newVersion(owner Stamp, data []byte) *Version {
	v := &Version{}
	v.begin.Store(uint64(owner))
	v.end.Store(uint64(TSInfinity))
	if data != nil {
		v.data = append([]byte(nil), data...)
	}
	return v
}

// Begin returns the version's begin stamp.
func (v *Version) Begin() Stamp { return Stamp(v.begin.Load()) }

// End returns the current end stamp.
func (v *Version) End() Stamp { return Stamp(v.end.Load()) }

// Data returns the version's payload. Callers must not mutate the
// returned slice.
func (v *Version) Data() []byte { return v.data }

func (v *Version) storeBegin(s Stamp) {
	v.begin.Store(uint64(s))
}

func (v *Version) storeEnd(s Stamp) {
	v.end.Store(uint64(s))
}

func (v *Version) casEnd(from, to Stamp) bool {
	return v.end.CompareAndSwap(uint64(from), uint64(to))
}

// isPermanentlyInvalid reports whether v can never again become visible to
// any transaction: its End is a finalized (even) stamp other than
// TSInfinity, or it has been zeroed out entirely.
func (v *Version) isPermanentlyInvalid() bool {
	end := v.End()
	if end == TSZero {
		return true
	}
	return !IsTransactionID(end) && end != TSInfinity
}
