package mvcc

import (
	"errors"
	"fmt"
)

// StatusCode mirrors the client-visible outcomes of a request: OK,
// InvalidTx, WriteConflict and ValueNotFound, plus the
// reserved-but-currently-unsurfaced KeyExists code.
type StatusCode int

const (
	OK            StatusCode = 0
	InvalidTx     StatusCode = 1
	KeyExists     StatusCode = 2
	WriteConflict StatusCode = 3
	ValueNotFound StatusCode = 404
)

// ErrInvalidTx is returned for calls against a transaction that is absent
// from the transaction table or no longer Active. Caller misuse; no side
// effects.
var ErrInvalidTx = errors.New("mvcc: invalid or inactive transaction")

// ErrValueNotFound is returned when a key has no readable/writable version,
// or has no history at all. The transaction is aborted as a side effect,
// except when Drop finds the key already dropped in the transaction's own
// change set.
var ErrValueNotFound = errors.New("mvcc: value not found")

// ErrWriteConflict is returned by Commit when the first-writer-wins rule
// fires at commit time (a concurrent insert raced ours for the same key).
// A Write or Drop against a version another transaction already claimed or
// superseded returns ErrValueNotFound instead.
var ErrWriteConflict = errors.New("mvcc: write conflicts with another transaction")

// ErrKeyExists is reserved for an Insert path that finds a live version
// already present when one was not expected.
var ErrKeyExists = errors.New("mvcc: key already exists")

type keyedError struct {
	sentinel error
	code     StatusCode
	key      []byte
}

func (e *keyedError) Error() string {
	return fmt.Sprintf("%s (key %q)", e.sentinel, e.key)
}

func (e *keyedError) Is(target error) bool {
	return target == e.sentinel
}

// Code returns the StatusCode a keyedError carries, for callers (e.g. the
// HTTP front end) that want to map errors back onto status codes without
// re-deriving them from sentinel comparisons.
func (e *keyedError) Code() StatusCode {
	return e.code
}

func newInvalidTxError() error {
	return &keyedError{sentinel: ErrInvalidTx, code: InvalidTx}
}

func newValueNotFoundError(key []byte) error {
	return &keyedError{sentinel: ErrValueNotFound, code: ValueNotFound, key: key}
}

func newWriteConflictError(key []byte) error {
	return &keyedError{sentinel: ErrWriteConflict, code: WriteConflict, key: key}
}

// StatusCodeOf extracts the StatusCode for an error returned by Engine, or
// OK if err is nil.
func StatusCodeOf(err error) StatusCode {
	if err == nil {
		return OK
	}
	var ke *keyedError
	if errors.As(err, &ke) {
		return ke.Code()
	}
	return WriteConflict
}
