package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStorage(t *testing.T, store Storage) {
	ctx := context.Background()

	keys, err := store.List(ctx, "users")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = store.Get(ctx, "users", "a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "users", "b", []byte(`{"name":"b"}`)))
	require.NoError(t, store.Put(ctx, "users", "a", []byte(`{"name":"a"}`)))
	require.NoError(t, store.Put(ctx, "posts", "c", []byte(`{}`)))

	keys, err = store.List(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	content, err := store.Get(ctx, "users", "a")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a"}`, string(content))

	require.NoError(t, store.Put(ctx, "users", "a", []byte(`{"name":"z"}`)))
	content, err = store.Get(ctx, "users", "a")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"z"}`, string(content))

	require.NoError(t, store.Delete(ctx, "users", "a"))
	assert.ErrorIs(t, store.Delete(ctx, "users", "a"), ErrNotFound)

	keys, err = store.List(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	keys, err = store.List(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, keys)
}

func TestMemory(t *testing.T) {
	testStorage(t, NewMemory())
}

func TestMemoryCopiesContent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	content := []byte("abc")
	require.NoError(t, store.Put(ctx, "c", "k", content))
	content[0] = 'x'

	actual, err := store.Get(ctx, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(actual))
}

func TestFile(t *testing.T) {
	testStorage(t, NewFile(t.TempDir(), ""))
}

func TestFileLayout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewFile(root, ".rec")

	_, err := os.Stat(filepath.Join(root, "users"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, store.Put(ctx, "users", "id", []byte(`{}`)))

	content, err := os.ReadFile(filepath.Join(root, "users", "id.rec"))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(content))

	// files with another extension are not records
	require.NoError(t, os.WriteFile(filepath.Join(root, "users", "notes.txt"), []byte("x"), 0o640))
	require.NoError(t, os.Mkdir(filepath.Join(root, "users", "nested.rec"), 0o750))

	keys, err := store.List(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, keys)
}

func TestFileCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewFile(t.TempDir(), "")
	assert.ErrorIs(t, store.Put(ctx, "c", "k", nil), context.Canceled)

	_, err := store.List(ctx, "c")
	assert.ErrorIs(t, err, context.Canceled)
}
