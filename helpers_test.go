package merkledb

import (
	"testing"

	"github.com/andreyvit/merkledb/journal/journaltest"
	"github.com/stretchr/testify/require"
)

func setup(t testing.TB, opts ...func(*Options)) *DB {
	t.Helper()
	opt := Options{
		Logger:  journaltest.TestLogger(t),
		Verbose: true,
	}
	for _, f := range opts {
		f(&opt)
	}
	db, err := OpenMemory(opt)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db
}

func write(t testing.TB, db *DB, fn func(fk *Fork)) {
	t.Helper()
	require.NoError(t, db.Write(func(fk *Fork) error {
		fn(fk)
		return nil
	}))
}

func read(t testing.TB, db *DB, fn func(s *Snapshot)) {
	t.Helper()
	require.NoError(t, db.Read(func(s *Snapshot) error {
		fn(s)
		return nil
	}))
}

func collect2[K, V any](seq func(yield func(K, V) bool)) (keys []K, values []V) {
	for k, v := range seq {
		keys = append(keys, k)
		values = append(values, v)
	}
	return
}

func collect[K any](seq func(yield func(K) bool)) []K {
	var result []K
	for k := range seq {
		result = append(result, k)
	}
	return result
}
