package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	vfs "github.com/hupe1980/imgrank/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewLocalStore(dir)

	data := []byte("1\tQ0\t7_2\t1\t0.9\tCUR\n")
	require.NoError(t, store.Put(ctx, "runs/out.txt", data))

	_, err := os.Stat(filepath.Join(dir, "runs", "out.txt"))
	require.NoError(t, err)

	b, err := store.Open(ctx, "runs/out.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), b.Size())

	buf := make([]byte, 2)
	n, err := b.ReadAt(ctx, buf, 2)
	require.NoError(t, err)
	assert.Equal(t, "Q0", string(buf[:n]))

	m, ok := b.(Mappable)
	require.True(t, ok)
	raw, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, raw)
	require.NoError(t, b.Close())

	require.NoError(t, store.Put(ctx, "runs/other.txt", []byte("x")))
	names, err := store.List(ctx, "runs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/other.txt", "runs/out.txt"}, names)

	require.NoError(t, store.Delete(ctx, "runs/out.txt"))
	require.NoError(t, store.Delete(ctx, "runs/out.txt"))
	_, err = store.Open(ctx, "runs/out.txt")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorePutReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	require.NoError(t, store.Put(ctx, "a", []byte("first version")))
	require.NoError(t, store.Put(ctx, "a", []byte("second")))

	got, err := ReadAll(ctx, store, "a")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	// No temporary files left behind.
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	src := []byte("abc")
	require.NoError(t, store.Put(ctx, "k/1", src))
	src[0] = 'X'

	got, err := ReadAll(ctx, store, "k/1")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	b, err := store.Open(ctx, "k/1")
	require.NoError(t, err)
	buf := make([]byte, 2)
	n, err := ReaderAt(ctx, b).ReadAt(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, "bc", string(buf[:n]))

	_, err = store.Open(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	names, err := store.List(ctx, "k/")
	require.NoError(t, err)
	assert.Equal(t, []string{"k/1"}, names)
}

func TestLocalStorePutFaults(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		fault vfs.Fault
	}{
		{"torn write", vfs.Fault{FailAfterBytes: 3}},
		{"sync", vfs.Fault{FailAfterBytes: -1, FailOnSync: true}},
		{"close", vfs.Fault{FailAfterBytes: -1, FailOnClose: true}},
		{"rename", vfs.Fault{FailAfterBytes: -1, FailOnRename: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ffs := vfs.NewFaultyFS(nil)
			ffs.AddRule("run.txt", tt.fault)
			store := &LocalStore{root: dir, fsys: ffs}

			require.NoError(t, store.Put(ctx, "prev.txt", []byte("kept")))
			err := store.Put(ctx, "run.txt", []byte("1\tQ0\tA\t1\t1.0\tCUR\n"))
			assert.ErrorIs(t, err, vfs.ErrInjected)

			_, err = os.Stat(filepath.Join(dir, "run.txt"))
			assert.True(t, os.IsNotExist(err))
			for _, tmp := range ffs.Temps() {
				_, err := os.Stat(tmp)
				assert.True(t, os.IsNotExist(err), tmp)
			}

			names, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"prev.txt"}, names)
		})
	}
}
