package netnode

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *BadgerStore {
	t.Helper()

	store, err := OpenInMemory(log.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestStoreGetSetRemove(t *testing.T) {
	store := testStore(t)

	value, err := store.Get("tags", []byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, value)

	require.NoError(t, store.Set("tags", []byte("key1"), []byte("value1")))

	value, err = store.Get("tags", []byte("key1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value1"), value)

	require.NoError(t, store.Remove("tags", []byte("key1")))

	value, err = store.Get("tags", []byte("key1"))
	require.NoError(t, err)
	assert.Nil(t, value)

	// removing an absent key is not an error
	require.NoError(t, store.Remove("tags", []byte("key1")))
}

func TestStoreNodesAreDisjoint(t *testing.T) {
	store := testStore(t)

	require.NoError(t, store.Set("a", []byte("key"), []byte("node-a")))
	require.NoError(t, store.Set("b", []byte("key"), []byte("node-b")))

	value, err := store.Get("a", []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("node-a"), value)

	var keys int
	require.NoError(t, store.Scan("a", func(key, value []byte) error {
		keys++
		assert.Equal(t, []byte("node-a"), value)
		return nil
	}))
	assert.Equal(t, 1, keys)
}

func TestStoreScanOrder(t *testing.T) {
	store := testStore(t)

	for _, ea := range []uint64{0x401000, 0x400000, 0x500000} {
		require.NoError(t, store.Set("globals", AddressKey(ea), CountValue(ea)))
	}

	var got []uint64
	require.NoError(t, store.Scan("globals", func(key, value []byte) error {
		got = append(got, KeyAddress(key))
		assert.Equal(t, KeyAddress(key), ValueCount(value))
		return nil
	}))
	assert.Equal(t, []uint64{0x400000, 0x401000, 0x500000}, got)
}

func TestStoreScanCallbackError(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Set("n", []byte("k"), []byte("v")))

	wantErr := errors.New("stop")
	err := store.Scan("n", func(key, value []byte) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestStorePersistence(t *testing.T) {
	dir := t.TempDir()
	logger := log.NewTestLogger(t)

	store, err := Open(dir, logger)
	require.NoError(t, err)
	require.NoError(t, store.Set("tags", []byte("key"), []byte("value")))
	require.NoError(t, store.Close())

	store, err = Open(dir, logger)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close())
	}()

	value, err := store.Get("tags", []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)
}
