package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionsHas(t *testing.T) {
	o := SequentialAccess | Prefault
	require.True(t, o.Has(Prefault))
	require.False(t, o.Has(RandomAccess))
}

func TestOpen_ReadsWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("hello, world"), 0o644))

	for _, opt := range []Options{0, SequentialAccess, RandomAccess, Prefault | SequentialAccess} {
		r, err := Open(path, opt)
		require.NoError(t, err)
		require.Equal(t, "hello, world", string(r.Data))
		require.NoError(t, r.Close())
		require.Nil(t, r.Data)
		require.NoError(t, r.Close())
	}
}

func TestOpen_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	r, err := Open(path, 0)
	require.NoError(t, err)
	require.Empty(t, r.Data)
	require.NoError(t, r.Close())
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "missing"), 0)
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err = Open(path, SequentialAccess|RandomAccess)
	require.Error(t, err)
}

func TestFdatasync(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "seg"))
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("record"))
	require.NoError(t, err)
	require.NoError(t, Fdatasync(f))

	r, err := Open(f.Name(), 0)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, "record", string(r.Data))
}
