package durable

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltPoolUpdateThenViewRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.db")
	pool, err := OpenBoltPool(path)
	require.NoError(t, err)
	defer pool.Close()

	err = pool.Update(func(tx Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(IndexBucket)
		if err != nil {
			return err
		}
		return bucket.Put([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)

	err = pool.View(func(tx Tx) error {
		bucket := tx.Bucket(IndexBucket)
		assert.Equal(t, []byte("v"), bucket.Get([]byte("k")))
		return nil
	})
	require.NoError(t, err)
}

func TestBoltPoolRefusesSecondOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.db")
	pool, err := OpenBoltPool(path)
	require.NoError(t, err)
	defer pool.Close()

	_, err = OpenBoltPool(path)
	assert.Error(t, err, "a second open against the same pool file must fail")
}

func TestEncodeDecodeChainRoundTrips(t *testing.T) {
	chain := []PersistedVersion{
		{Begin: 2, End: 4, Data: []byte("v2")},
		{Begin: 0, End: 2, Data: []byte("v1")},
	}
	encoded, err := EncodeChain(chain)
	require.NoError(t, err)

	decoded, err := DecodeChain(encoded)
	require.NoError(t, err)
	assert.Equal(t, chain, decoded)
}
