package merkledb

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type storageFactory struct {
	name string
	open func(t *testing.T) Storage
}

var storageFactories = []storageFactory{
	{"memory", func(t *testing.T) Storage {
		return NewMemoryStorage()
	}},
	{"bolt", func(t *testing.T) Storage {
		st, err := OpenBoltStorage(filepath.Join(t.TempDir(), "test.db"), BoltOptions{NoSync: true})
		require.NoError(t, err)
		return st
	}},
	{"badger", func(t *testing.T) Storage {
		st, err := OpenBadgerStorage(BadgerOptions{InMemory: true})
		require.NoError(t, err)
		return st
	}},
	{"leveldb", func(t *testing.T) Storage {
		st, err := OpenLevelDBStorage(t.TempDir(), false)
		require.NoError(t, err)
		return st
	}},
}

func forEachStorage(t *testing.T, fn func(t *testing.T, st Storage)) {
	for _, f := range storageFactories {
		t.Run(f.name, func(t *testing.T) {
			st := f.open(t)
			t.Cleanup(func() { st.Close() })
			fn(t, st)
		})
	}
}

func scanAll(t *testing.T, ss StorageSnapshot, ns string, seek []byte) []string {
	t.Helper()
	c, err := ss.Cursor(ns)
	require.NoError(t, err)
	defer c.Close()
	var result []string
	var k, v []byte
	if seek == nil {
		k, v = c.First()
	} else {
		k, v = c.Seek(seek)
	}
	for ; k != nil; k, v = c.Next() {
		result = append(result, string(k)+"="+string(v))
	}
	require.NoError(t, c.Err())
	return result
}

func TestStorage_ApplyAndGet(t *testing.T) {
	forEachStorage(t, func(t *testing.T, st Storage) {
		b := new(Batch)
		b.Put("a", []byte("k1"), []byte("v1"))
		b.Put("a", []byte("k2"), []byte("v2"))
		b.Put("b", []byte("k1"), []byte("other"))
		b.Put("a", []byte("empty"), nil)
		require.NoError(t, st.Apply(b))

		ss, err := st.Snapshot()
		require.NoError(t, err)
		defer ss.Release()

		v, err := ss.Get("a", []byte("k1"))
		require.NoError(t, err)
		require.Equal(t, "v1", string(v))

		v, err = ss.Get("b", []byte("k1"))
		require.NoError(t, err)
		require.Equal(t, "other", string(v))

		v, err = ss.Get("a", []byte("empty"))
		require.NoError(t, err)
		require.NotNil(t, v, "empty values must read as present")
		require.Empty(t, v)

		v, err = ss.Get("a", []byte("missing"))
		require.NoError(t, err)
		require.Nil(t, v)

		v, err = ss.Get("nope", []byte("k1"))
		require.NoError(t, err)
		require.Nil(t, v)
	})
}

func TestStorage_CursorStaysInNamespace(t *testing.T) {
	forEachStorage(t, func(t *testing.T, st Storage) {
		b := new(Batch)
		b.Put("ns", []byte("c"), []byte("3"))
		b.Put("ns", []byte("a"), []byte("1"))
		b.Put("ns", []byte("b"), []byte("2"))
		b.Put("ns2", []byte("a"), []byte("x"))
		b.Put("n", []byte("sa"), []byte("y"))
		require.NoError(t, st.Apply(b))

		ss, err := st.Snapshot()
		require.NoError(t, err)
		defer ss.Release()

		require.Equal(t, []string{"a=1", "b=2", "c=3"}, scanAll(t, ss, "ns", nil))
		require.Equal(t, []string{"b=2", "c=3"}, scanAll(t, ss, "ns", []byte("az")))
		require.Empty(t, scanAll(t, ss, "ns", []byte("d")))
		require.Empty(t, scanAll(t, ss, "missing", nil))
	})
}

func TestStorage_SnapshotIsolation(t *testing.T) {
	forEachStorage(t, func(t *testing.T, st Storage) {
		b := new(Batch)
		b.Put("ns", []byte("k"), []byte("old"))
		require.NoError(t, st.Apply(b))

		ss, err := st.Snapshot()
		require.NoError(t, err)
		defer ss.Release()

		b = new(Batch)
		b.Put("ns", []byte("k"), []byte("new"))
		b.Put("ns", []byte("k2"), []byte("added"))
		require.NoError(t, st.Apply(b))

		v, err := ss.Get("ns", []byte("k"))
		require.NoError(t, err)
		require.Equal(t, "old", string(v))
		require.Equal(t, []string{"k=old"}, scanAll(t, ss, "ns", nil))

		ss2, err := st.Snapshot()
		require.NoError(t, err)
		defer ss2.Release()
		require.Equal(t, []string{"k=new", "k2=added"}, scanAll(t, ss2, "ns", nil))
	})
}

func TestStorage_Delete(t *testing.T) {
	forEachStorage(t, func(t *testing.T, st Storage) {
		b := new(Batch)
		b.Put("ns", []byte("a"), []byte("1"))
		b.Put("ns", []byte("b"), []byte("2"))
		require.NoError(t, st.Apply(b))

		b = new(Batch)
		b.Delete("ns", []byte("a"))
		b.Delete("ns", []byte("never-existed"))
		require.NoError(t, st.Apply(b))

		ss, err := st.Snapshot()
		require.NoError(t, err)
		defer ss.Release()
		require.Equal(t, []string{"b=2"}, scanAll(t, ss, "ns", nil))
	})
}

func TestStorage_DatabaseRoundTrip(t *testing.T) {
	forEachStorage(t, func(t *testing.T, st Storage) {
		db, err := Open(st, Options{})
		require.NoError(t, err)
		write(t, db, func(fk *Fork) {
			m := must(MutableProofMap(fk, Addr("m"), String, String))
			m.Put("a", "1")
			m.Put("b", "2")
			l := must(MutableProofList(fk, Addr("l"), Uint64))
			l.Extend(1, 2, 3)
		})
		read(t, db, func(s *Snapshot) {
			stored := must(s.StateHash())
			require.Equal(t, stored, must(RecomputeStateHash(s)))
			require.NotEqual(t, EmptyMapHash, stored)
		})
	})
}

func TestOpen_ClosesStorageOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := NewMockStorage(ctrl)

	issue := errors.New("disk on fire")
	st.EXPECT().Snapshot().Return(nil, issue)
	st.EXPECT().Close().Return(nil)

	_, err := Open(st, Options{})
	require.ErrorIs(t, err, issue)
}

func TestMerge_ApplyFailureLeavesStateUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	mem := NewMemoryStorage()
	st := NewMockStorage(ctrl)
	st.EXPECT().Snapshot().DoAndReturn(mem.Snapshot).AnyTimes()
	st.EXPECT().Close().DoAndReturn(mem.Close)

	issue := errors.New("no space left")
	st.EXPECT().Apply(gomock.Any()).Return(issue)

	db, err := Open(st, Options{})
	require.NoError(t, err)
	defer db.Close()

	err = db.Write(func(fk *Fork) error {
		e := must(MutableEntry(fk, Addr("e"), String))
		e.Set("value")
		return nil
	})
	require.ErrorIs(t, err, issue)
	require.Equal(t, uint64(0), db.Checkpoint())

	read(t, db, func(s *Snapshot) {
		e := must(OpenEntry(s, Addr("e"), String))
		require.False(t, e.Exists())
	})

	st.EXPECT().Apply(gomock.Any()).DoAndReturn(mem.Apply)
	write(t, db, func(fk *Fork) {
		must(MutableEntry(fk, Addr("e"), String)).Set("value")
	})
	require.Equal(t, uint64(1), db.Checkpoint())
}

func TestSnapshot_ReleasesEngineSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	mem := NewMemoryStorage()
	st := NewMockStorage(ctrl)
	ss := NewMockStorageSnapshot(ctrl)

	st.EXPECT().Snapshot().DoAndReturn(mem.Snapshot).Times(2) // loadCounters, collectGarbage
	st.EXPECT().Close().Return(nil)
	db, err := Open(st, Options{})
	require.NoError(t, err)
	defer db.Close()

	st.EXPECT().Snapshot().Return(ss, nil)
	ss.EXPECT().Get(nsMeta, gomock.Any()).Return(nil, nil).AnyTimes()
	ss.EXPECT().Release().Times(1)

	s, err := db.Snapshot()
	require.NoError(t, err)
	e := must(OpenEntry(s, Addr("e"), String))
	require.False(t, e.Exists())
	s.Release()
	s.Release()
	require.Equal(t, int64(0), db.Stats().OpenSnapshots)
}

func TestMemoryStorage_ApplyCopiesOnlyTouchedChunks(t *testing.T) {
	st := NewMemoryStorage().(*memStorage)
	b := new(Batch)
	for i := range 10 * memChunkSize {
		b.Put("data", fmt.Appendf(nil, "k%05d", i), []byte("v"))
	}
	require.NoError(t, st.Apply(b))

	ss := must(st.Snapshot())
	defer ss.Release()
	before := ss.(*memSnapshot).buckets["data"]
	require.Greater(t, len(before.chunks), 4)

	b = new(Batch)
	b.Put("data", []byte("k00042"), []byte("changed"))
	require.NoError(t, st.Apply(b))

	after := st.buckets["data"]
	require.Len(t, after.chunks, len(before.chunks))
	var shared int
	for i := range after.chunks {
		if after.chunks[i] == before.chunks[i] {
			shared++
		}
	}
	require.Equal(t, len(before.chunks)-1, shared)

	v, err := ss.Get("data", []byte("k00042"))
	require.NoError(t, err)
	require.Equal(t, "v", string(v))
}

func TestMemoryStorage_MatchesSortedMap(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	st := NewMemoryStorage()
	want := make(map[string]string)
	var snaps []StorageSnapshot
	var wantSnaps [][]string

	for round := range 20 {
		b := new(Batch)
		for range 200 {
			k := fmt.Sprintf("k%04d", rng.IntN(1500))
			if rng.IntN(3) == 0 {
				b.Delete("data", []byte(k))
				delete(want, k)
			} else {
				v := fmt.Sprintf("r%d", round)
				b.Put("data", []byte(k), []byte(v))
				want[k] = v
			}
		}
		require.NoError(t, st.Apply(b))

		var expected []string
		for _, k := range slices.Sorted(maps.Keys(want)) {
			expected = append(expected, k+"="+want[k])
		}
		ss := must(st.Snapshot())
		snaps = append(snaps, ss)
		wantSnaps = append(wantSnaps, expected)
	}

	for i, ss := range snaps {
		require.Equal(t, wantSnaps[i], scanAll(t, ss, "data", nil), "snapshot %d", i)
		ss.Release()
	}

	ss := must(st.Snapshot())
	defer ss.Release()
	keys := slices.Sorted(maps.Keys(want))
	for _, seek := range []string{"k0000", "k0750", "k0750x", "k1499", "k2"} {
		i, _ := slices.BinarySearch(keys, seek)
		var expected []string
		for _, k := range keys[i:] {
			expected = append(expected, k+"="+want[k])
		}
		require.Equal(t, expected, scanAll(t, ss, "data", []byte(seek)), "seek %s", seek)
	}
}
