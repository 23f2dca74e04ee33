package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	lfs := LocalFS{}
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	f, err := lfs.CreateTemp(dir, ".run.txt.tmp-*")
	require.NoError(t, err)
	_, err = f.Write([]byte("1\tQ0\tA\t1\t1.0\tCUR\n"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	target := filepath.Join(dir, "run.txt")
	require.NoError(t, lfs.Rename(f.Name(), target))
	info, err := lfs.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, int64(18), info.Size())

	require.NoError(t, lfs.Remove(target))
	_, err = lfs.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS(t *testing.T) {
	custom := errors.New("disk full")

	tests := []struct {
		name    string
		fault   Fault
		wantErr error
		step    string
	}{
		{"write limit", Fault{FailAfterBytes: 4}, ErrInjected, "write"},
		{"custom error", Fault{FailAfterBytes: 0, Err: custom}, custom, "write"},
		{"sync", Fault{FailAfterBytes: -1, FailOnSync: true}, ErrInjected, "sync"},
		{"close", Fault{FailAfterBytes: -1, FailOnClose: true}, ErrInjected, "close"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ffs := NewFaultyFS(nil)
			ffs.AddRule("run.txt", tt.fault)

			f, err := ffs.CreateTemp(dir, ".run.txt.tmp-*")
			require.NoError(t, err)

			n, err := f.Write([]byte("0123456789"))
			if tt.step == "write" {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, int(max(tt.fault.FailAfterBytes, 0)), n)
				require.NoError(t, f.Close())
				return
			}
			require.NoError(t, err)

			err = f.Sync()
			if tt.step == "sync" {
				assert.ErrorIs(t, err, tt.wantErr)
				require.NoError(t, f.Close())
				return
			}
			require.NoError(t, err)
			assert.ErrorIs(t, f.Close(), tt.wantErr)
		})
	}
}

func TestFaultyFSRename(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("locked.txt", Fault{FailAfterBytes: -1, FailOnRename: true})

	f, err := ffs.CreateTemp(dir, "tmp-*")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.ErrorIs(t, ffs.Rename(f.Name(), filepath.Join(dir, "locked.txt")), ErrInjected)
	assert.NoError(t, ffs.Rename(f.Name(), filepath.Join(dir, "open.txt")))
	assert.Equal(t, []string{f.Name()}, ffs.Temps())
}
