package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS_ImplementsStorage(t *testing.T) {
	var _ Storage = (*LocalFS)(nil)
}

func TestLocalFS_PutGet(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Put(ctx, "test/file.json", []byte(`{"a":1}`)))
	got, err := fs.Get(ctx, "test/file.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}

func TestLocalFS_GetMissing(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get(context.Background(), "missing.json")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestLocalFS_Exists(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := fs.Exists(ctx, "nonexistent.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, fs.Put(ctx, "exists.txt", []byte("data")))
	exists, err = fs.Exists(ctx, "exists.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalFS_ListSortedByPrefix(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Put(ctx, "data/2024/01/b.txt", []byte("b")))
	require.NoError(t, fs.Put(ctx, "data/2024/01/a.txt", []byte("a")))
	require.NoError(t, fs.Put(ctx, "data/2024/02/c.txt", []byte("c")))

	keys, err := fs.List(ctx, "data/2024/01")
	require.NoError(t, err)
	assert.Equal(t, []string{"data/2024/01/a.txt", "data/2024/01/b.txt"}, keys)

	none, err := fs.List(ctx, "other/")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLocalFS_Delete(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Put(ctx, "delete.txt", []byte("data")))
	require.NoError(t, fs.Delete(ctx, "delete.txt"))
	exists, _ := fs.Exists(ctx, "delete.txt")
	assert.False(t, exists)

	assert.NoError(t, fs.Delete(ctx, "delete.txt"), "deleting a missing key is not an error")
}

func TestLocalFS_RejectsEscapingKeys(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewLocalFS(filepath.Join(dir, "archive"))
	require.NoError(t, err)

	err = fs.Put(context.Background(), "../outside.txt", []byte("x"))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, statErr := os.Stat(filepath.Join(dir, "outside.txt"))
	assert.True(t, os.IsNotExist(statErr))
}
