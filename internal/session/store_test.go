// internal/session/store_test.go
package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache", "session.yaml")
	return NewStore(path, zaptest.NewLogger(t))
}

func TestStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(Cached{
		WalletAddress: "0xA",
		ConnectorID:   "argent",
	}))

	cached, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "0xA", cached.WalletAddress)
	assert.Equal(t, "argent", cached.ConnectorID)
}

func TestStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)

	cached, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestStore_RefusesEmptyAddress(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.Save(Cached{ConnectorID: "argent"}))
}

func TestStore_Clear(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(Cached{WalletAddress: "0xA", ConnectorID: "argent"}))
	require.NoError(t, store.Clear())

	cached, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cached)

	// Clearing an already-empty cache is fine.
	require.NoError(t, store.Clear())
}

func TestStore_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	store := NewStore(path, zaptest.NewLogger(t))

	require.NoError(t, store.Save(Cached{WalletAddress: "0xA"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
