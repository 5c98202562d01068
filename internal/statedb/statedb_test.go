package statedb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTemp(t)

	require.NoError(t, db.Put("rexec://alice@host:7700", []byte("session-blob")))

	v, ok, err := db.Get("rexec://alice@host:7700")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "session-blob", string(v))
}

func TestGetMissingKey(t *testing.T) {
	db := openTemp(t)

	_, ok, err := db.Get("nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteRemovesKey(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, db.Put("k", []byte("v")))
	require.NoError(t, db.Delete("k"))

	_, ok, err := db.Get("k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestForEachVisitsAllEntries(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, db.Put("a", []byte("1")))
	require.NoError(t, db.Put("b", []byte("2")))

	seen := map[string]string{}
	require.NoError(t, db.ForEach(func(key string, value []byte) error {
		seen[key] = string(value)
		return nil
	}))
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, seen)
}

func TestReopenPersistsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Put("k", []byte("v")))
	require.NoError(t, db.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()

	v, ok, err := db2.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(v))
}
