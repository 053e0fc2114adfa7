package merkledb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type account struct {
	Owner   string            `msgpack:"o" json:"owner" cbor:"1,keyasint"`
	Balance uint64            `msgpack:"b" json:"balance" cbor:"2,keyasint"`
	Tags    map[string]string `msgpack:"t,omitempty" json:"tags,omitempty" cbor:"3,keyasint,omitempty"`
}

func TestCodecs_RoundTrip(t *testing.T) {
	acc := account{Owner: "alice", Balance: 42, Tags: map[string]string{"b": "2", "a": "1"}}
	for name, c := range map[string]Codec[account]{
		"msgpack": MsgPack[account](),
		"json":    JSON[account](),
		"cbor":    CBOR[account](),
	} {
		t.Run(name, func(t *testing.T) {
			raw, err := c.Encode(acc)
			require.NoError(t, err)
			again, err := c.Encode(acc)
			require.NoError(t, err)
			require.Equal(t, raw, again, "encoding must be deterministic")

			decoded, err := c.Decode(raw)
			require.NoError(t, err)
			require.Equal(t, acc, decoded)
		})
	}

	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	raw, err := Binary[time.Time]().Encode(ts)
	require.NoError(t, err)
	decoded, err := Binary[time.Time]().Decode(raw)
	require.NoError(t, err)
	require.True(t, ts.Equal(decoded))

	_, err = Uint64.Decode([]byte{1, 2})
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestEntry(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		e := must(MutableEntry(fk, Addr("config"), MsgPack[account]()))
		_, ok := e.Get()
		require.False(t, ok)
		e.Set(account{Owner: "bob", Balance: 1})
		old, ok := e.Swap(account{Owner: "bob", Balance: 2})
		require.True(t, ok)
		require.Equal(t, uint64(1), old.Balance)
	})
	read(t, db, func(s *Snapshot) {
		e := must(OpenEntry(s, Addr("config"), MsgPack[account]()))
		v, ok := e.Get()
		require.True(t, ok)
		require.Equal(t, account{Owner: "bob", Balance: 2}, v)
	})
	write(t, db, func(fk *Fork) {
		e := must(MutableEntry(fk, Addr("config"), MsgPack[account]()))
		v, ok := e.Take()
		require.True(t, ok)
		require.Equal(t, "bob", v.Owner)
		require.False(t, e.Exists())
	})
}

func TestProofEntry_ObjectHash(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		e := must(MutableProofEntry(fk, Addr("pe"), String))
		require.Equal(t, ZeroHash, e.ObjectHash())
		e.Set("hello")
		require.Equal(t, BlobHash([]byte("hello")), e.ObjectHash())
	})
	read(t, db, func(s *Snapshot) {
		h, err := ObjectHash(s, Addr("pe"))
		require.NoError(t, err)
		require.Equal(t, BlobHash([]byte("hello")), h)
	})
}

func TestList(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		l := must(MutableList(fk, Addr("log"), String))
		require.True(t, l.IsEmpty())
		l.Extend("a", "b", "c", "d")
		l.Set(0, "A")
		v, ok := l.Pop()
		require.True(t, ok)
		require.Equal(t, "d", v)
		require.Equal(t, uint64(3), l.Len())
	})
	read(t, db, func(s *Snapshot) {
		l := must(OpenList(s, Addr("log"), String))
		idx, values := collect2(l.All())
		require.Equal(t, []uint64{0, 1, 2}, idx)
		require.Equal(t, []string{"A", "b", "c"}, values)

		_, values = collect2(l.From(1))
		require.Equal(t, []string{"b", "c"}, values)

		_, ok := l.Get(3)
		require.False(t, ok)
		last, ok := l.Last()
		require.True(t, ok)
		require.Equal(t, "c", last)
	})
	write(t, db, func(fk *Fork) {
		l := must(MutableList(fk, Addr("log"), String))
		l.Truncate(1)
		_, values := collect2(l.All())
		require.Equal(t, []string{"A"}, values)
		l.Clear()
		require.True(t, l.IsEmpty())
	})
}

func TestMap_IterationFollowsKeyOrder(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		m := must(MutableMap(fk, Addr("m"), Uint64, String))
		for _, k := range []uint64{300, 2, 70000, 1} {
			m.Put(k, "v")
		}
		m.Remove(2)
	})
	read(t, db, func(s *Snapshot) {
		m := must(OpenMap(s, Addr("m"), Uint64, String))
		require.Equal(t, []uint64{1, 300, 70000}, collect(m.Keys()))
		keys, _ := collect2(m.From(301))
		require.Equal(t, []uint64{70000}, keys)
		require.False(t, m.Contains(2))
		v, ok := m.Get(300)
		require.True(t, ok)
		require.Equal(t, "v", v)
	})
}

func TestSet(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		s := must(MutableSet(fk, Addr("s"), String))
		s.Insert("b")
		s.Insert("a")
		s.Insert("b")
		s.Insert("c")
		s.Remove("c")
	})
	read(t, db, func(snap *Snapshot) {
		s := must(OpenSet(snap, Addr("s"), String))
		require.Equal(t, []string{"a", "b"}, collect(s.All()))
		require.True(t, s.Contains("a"))
		require.False(t, s.Contains("c"))
	})
}

func TestIndex_TypeMismatch(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		must(MutableMap(fk, Addr("x"), String, String)).Put("k", "v")
	})
	read(t, db, func(s *Snapshot) {
		_, err := OpenProofMap(s, Addr("x"), String, String)
		var tme *TypeMismatchError
		require.ErrorAs(t, err, &tme)
		require.Equal(t, ProofMapType, tme.Expected)
		require.Equal(t, MapType, tme.Actual)

		_, err = OpenMap(s, GroupAddr("x", []byte{1}), String, String)
		require.ErrorAs(t, err, &tme)
	})
}

func TestIndex_DecodeErrorIsReturned(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		must(MutableEntry(fk, Addr("e"), String)).Set("not a number")
	})
	err := db.Read(func(s *Snapshot) error {
		e := must(OpenEntry(s, Addr("e"), Uint64))
		e.Get()
		return nil
	})
	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestIndex_ReadOnlyHandleRejectsWrites(t *testing.T) {
	db := setup(t)
	err := db.Write(func(fk *Fork) error {
		e := must(OpenEntry(fk, Addr("e"), String))
		e.Set("x")
		return nil
	})
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestGroup(t *testing.T) {
	db := setup(t)
	open := func(a Access, addr Address) (*ProofMap[string, uint64], error) {
		return MutableProofMap(a, addr, String, Uint64)
	}
	write(t, db, func(fk *Fork) {
		g := NewGroup(fk, "wallets", open)
		for _, id := range []string{"bob", "alice"} {
			m := must(g.Get([]byte(id)))
			m.Put("balance", 100)
			m.Release()
		}
	})
	read(t, db, func(s *Snapshot) {
		g := NewGroup(s, "wallets", func(a Access, addr Address) (*ProofMap[string, uint64], error) {
			return OpenProofMap(a, addr, String, Uint64)
		})
		ids := must(g.Members())
		require.Equal(t, [][]byte{[]byte("bob"), []byte("alice")}, ids)

		m := must(g.Get([]byte("carol")))
		require.Equal(t, EmptyMapHash, m.ObjectHash())

		_, err := OpenProofMap(s, Addr("wallets"), String, Uint64)
		var tme *TypeMismatchError
		require.ErrorAs(t, err, &tme)
	})
}

func TestIndex_RemovingLastGroupMemberFreesName(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		must(MutableProofMap(fk, GroupAddr("g", []byte("a")), String, String)).Put("k", "v")
		must(MutableProofMap(fk, GroupAddr("g", []byte("b")), String, String)).Put("k", "v")
	})

	write(t, db, func(fk *Fork) {
		require.NoError(t, fk.RemoveIndex(GroupAddr("g", []byte("a"))))
		_, err := MutableEntry(fk, Addr("g"), String)
		var tme *TypeMismatchError
		require.ErrorAs(t, err, &tme, "group still has a member")
	})

	write(t, db, func(fk *Fork) {
		require.NoError(t, fk.RemoveIndex(GroupAddr("g", []byte("b"))))
		must(MutableEntry(fk, Addr("g"), String)).Set("standalone")
	})
	read(t, db, func(s *Snapshot) {
		v, ok := must(OpenEntry(s, Addr("g"), String)).Get()
		require.True(t, ok)
		require.Equal(t, "standalone", v)
		require.Equal(t, must(RecomputeStateHash(s)), must(s.StateHash()))
	})
}
