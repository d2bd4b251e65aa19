package payload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offloadlab/offload/pkg/core"
)

func TestStore_PutTake(t *testing.T) {
	store := NewStore(t.TempDir())

	key, err := store.Put([]byte("payload bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, key)

	data, err := store.Take(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload bytes"), data)
}

func TestStore_TakeEvicts(t *testing.T) {
	store := NewStore(t.TempDir())
	key, err := store.Put([]byte("once"))
	require.NoError(t, err)

	_, err = store.Take(key)
	require.NoError(t, err)

	_, err = store.Take(key)
	assert.ErrorIs(t, err, core.ErrPayloadUnavailable)
}

func TestStore_UniqueKeys(t *testing.T) {
	store := NewStore(t.TempDir())

	a, err := store.Put([]byte("a"))
	require.NoError(t, err)
	b, err := store.Put([]byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestStore_PutCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	store := NewStore(dir)

	_, err := store.Put([]byte("x"))
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStore_Cleanup(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	key, err := store.Put([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, store.Cleanup())

	_, err = store.Take(key)
	assert.ErrorIs(t, err, core.ErrPayloadUnavailable)
}

func TestShared_InheritsDirFromEnvironment(t *testing.T) {
	t.Cleanup(func() { CleanupShared() })
	CleanupShared()

	dir := t.TempDir()
	t.Setenv(core.EnvStoreDir, dir)

	store, err := Shared()
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())
}

func TestShared_ExportsFreshDirForChildren(t *testing.T) {
	t.Cleanup(func() { CleanupShared() })
	CleanupShared()

	t.Setenv(core.EnvStoreDir, "")
	os.Unsetenv(core.EnvStoreDir)

	store, err := Shared()
	require.NoError(t, err)
	assert.Equal(t, store.Dir(), os.Getenv(core.EnvStoreDir))

	again, err := Shared()
	require.NoError(t, err)
	assert.Same(t, store, again)
}
