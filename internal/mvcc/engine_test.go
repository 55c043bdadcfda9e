package mvcc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sehlabs.com/midas/internal/durable"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	pool := durable.NewMemPool()
	engine, err := NewEngine(pool, nil)
	require.NoError(t, err)
	return engine
}

func TestInsertThenReadOwnWriteIsNotVisible(t *testing.T) {
	engine := newTestEngine(t)
	tx := engine.Begin()
	require.NoError(t, engine.Write(tx, []byte("k"), []byte("v1")))

	_, err := engine.Read(tx, []byte("k"))
	assert.ErrorIs(t, err, ErrValueNotFound)
}

func TestCommittedInsertIsReadableByLaterTransaction(t *testing.T) {
	engine := newTestEngine(t)

	tx1 := engine.Begin()
	require.NoError(t, engine.Write(tx1, []byte("k"), []byte("v1")))
	require.NoError(t, engine.Commit(tx1))

	tx2 := engine.Begin()
	v, err := engine.Read(tx2, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)
	require.NoError(t, engine.Commit(tx2))
}

func TestUpdateSupersedesPriorVersion(t *testing.T) {
	engine := newTestEngine(t)

	tx1 := engine.Begin()
	require.NoError(t, engine.Write(tx1, []byte("k"), []byte("v1")))
	require.NoError(t, engine.Commit(tx1))

	tx2 := engine.Begin()
	require.NoError(t, engine.Write(tx2, []byte("k"), []byte("v2")))
	require.NoError(t, engine.Commit(tx2))

	tx3 := engine.Begin()
	v, err := engine.Read(tx3, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)
	require.NoError(t, engine.Commit(tx3))
}

func TestSnapshotIsolationHidesLaterCommit(t *testing.T) {
	engine := newTestEngine(t)

	setup := engine.Begin()
	require.NoError(t, engine.Write(setup, []byte("k"), []byte("v1")))
	require.NoError(t, engine.Commit(setup))

	reader := engine.Begin()

	writer := engine.Begin()
	require.NoError(t, engine.Write(writer, []byte("k"), []byte("v2")))
	require.NoError(t, engine.Commit(writer))

	v, err := engine.Read(reader, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v, "snapshot isolation must hide a commit that lands after the reader began")
	require.NoError(t, engine.Commit(reader))
}

func TestFirstWriterWinsOnConcurrentUpdate(t *testing.T) {
	engine := newTestEngine(t)

	setup := engine.Begin()
	require.NoError(t, engine.Write(setup, []byte("k"), []byte("v1")))
	require.NoError(t, engine.Commit(setup))

	tx1 := engine.Begin()
	tx2 := engine.Begin()

	require.NoError(t, engine.Write(tx1, []byte("k"), []byte("from-tx1")))

	err := engine.Write(tx2, []byte("k"), []byte("from-tx2"))
	assert.ErrorIs(t, err, ErrValueNotFound, "a version already claimed by a concurrent writer is not writable")

	require.NoError(t, engine.Commit(tx1))
}

func TestAbortRollsBackStagedClaim(t *testing.T) {
	engine := newTestEngine(t)

	setup := engine.Begin()
	require.NoError(t, engine.Write(setup, []byte("k"), []byte("v1")))
	require.NoError(t, engine.Commit(setup))

	tx1 := engine.Begin()
	require.NoError(t, engine.Write(tx1, []byte("k"), []byte("from-tx1")))
	reason := errors.New("test abort")
	require.Equal(t, reason, engine.Abort(tx1, reason), "Abort returns the reason it was given")

	tx2 := engine.Begin()
	require.NoError(t, engine.Write(tx2, []byte("k"), []byte("from-tx2")))
	require.NoError(t, engine.Commit(tx2))

	tx3 := engine.Begin()
	v, err := engine.Read(tx3, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("from-tx2"), v)
}

func TestDropMakesKeyUnreadable(t *testing.T) {
	engine := newTestEngine(t)

	setup := engine.Begin()
	require.NoError(t, engine.Write(setup, []byte("k"), []byte("v1")))
	require.NoError(t, engine.Commit(setup))

	dropper := engine.Begin()
	require.NoError(t, engine.Drop(dropper, []byte("k")))
	require.NoError(t, engine.Commit(dropper))

	reader := engine.Begin()
	_, err := engine.Read(reader, []byte("k"))
	assert.ErrorIs(t, err, ErrValueNotFound)
}

func TestOperationAgainstInactiveTransactionFails(t *testing.T) {
	engine := newTestEngine(t)

	tx := engine.Begin()
	require.NoError(t, engine.Write(tx, []byte("k"), []byte("v1")))
	require.NoError(t, engine.Commit(tx))

	err := engine.Write(tx, []byte("k2"), []byte("v2"))
	assert.ErrorIs(t, err, ErrInvalidTx)
}

func TestReadMissingKeyAbortsTransaction(t *testing.T) {
	engine := newTestEngine(t)

	tx := engine.Begin()
	_, err := engine.Read(tx, []byte("absent"))
	assert.ErrorIs(t, err, ErrValueNotFound)
	assert.Equal(t, Failed, tx.Status())
}
