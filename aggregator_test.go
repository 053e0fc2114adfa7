package merkledb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func populate(fk *Fork, order []string) {
	for _, name := range order {
		switch name {
		case "list":
			must(MutableProofList(fk, Addr("list"), String)).Extend("a", "b")
		case "map":
			must(MutableProofMap(fk, Addr("map"), String, String)).Put("k", "v")
		case "entry":
			must(MutableProofEntry(fk, Addr("entry"), String)).Set("x")
		case "plain":
			must(MutableMap(fk, Addr("plain"), String, String)).Put("k", "v")
		case "group":
			for _, id := range []string{"1", "2"} {
				m := must(MutableProofMap(fk, GroupAddr("group", []byte(id)), String, String))
				m.Put("id", id)
				m.Release()
			}
		}
	}
}

func TestStateHash_DoesNotDependOnRegistrationOrder(t *testing.T) {
	orders := [][]string{
		{"list", "map", "entry", "plain", "group"},
		{"group", "entry", "plain", "map", "list"},
	}
	var hashes []Hash
	for _, order := range orders {
		db := setup(t)
		for _, name := range order {
			write(t, db, func(fk *Fork) { populate(fk, []string{name}) })
		}
		hashes = append(hashes, must(db.StateHash()))
	}

	db := setup(t)
	write(t, db, func(fk *Fork) { populate(fk, orders[0]) })
	hashes = append(hashes, must(db.StateHash()))

	require.Equal(t, hashes[0], hashes[1])
	require.Equal(t, hashes[0], hashes[2])
}

func TestStateHash_MatchesRecomputation(t *testing.T) {
	db := setup(t)
	require.Equal(t, EmptyMapHash, must(db.StateHash()))

	write(t, db, func(fk *Fork) { populate(fk, []string{"list", "map", "entry", "plain", "group"}) })
	read(t, db, func(s *Snapshot) {
		stored := must(s.StateHash())
		require.Equal(t, stored, must(RecomputeStateHash(s)))

		expected := AggregateHash(map[string]Hash{
			"list":  must(ObjectHash(s, Addr("list"))),
			"map":   must(ObjectHash(s, Addr("map"))),
			"entry": must(ObjectHash(s, Addr("entry"))),
			"group": AggregateHash(map[string]Hash{
				"1": must(ObjectHash(s, GroupAddr("group", []byte("1")))),
				"2": must(ObjectHash(s, GroupAddr("group", []byte("2")))),
			}),
		})
		require.Equal(t, expected, stored)
	})

	before := must(db.StateHash())
	write(t, db, func(fk *Fork) {
		must(MutableMap(fk, Addr("plain"), String, String)).Put("k2", "v2")
	})
	require.Equal(t, before, must(db.StateHash()), "non-Merkle indexes do not contribute")

	write(t, db, func(fk *Fork) {
		must(MutableProofMap(fk, GroupAddr("group", []byte("2")), String, String)).Clear()
	})
	require.NotEqual(t, before, must(db.StateHash()))
	read(t, db, func(s *Snapshot) {
		require.Equal(t, must(s.StateHash()), must(RecomputeStateHash(s)))
	})
}

func TestStateProof(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) { populate(fk, []string{"list", "map", "group"}) })
	read(t, db, func(s *Snapshot) {
		proof := must(s.StateProof("map", "missing"))
		checked, err := proof.Check()
		require.NoError(t, err)
		require.NoError(t, checked.Verify(must(s.StateHash())))

		v, present, _ := checked.Lookup([]byte("map"))
		require.True(t, present)
		h := must(ObjectHash(s, Addr("map")))
		require.Equal(t, h[:], v)

		_, present, covered := checked.Lookup([]byte("missing"))
		require.False(t, present)
		require.True(t, covered)
	})
}

func TestNamespaceHash(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		must(MutableProofEntry(fk, Addr("svc.a"), String)).Set("1")
		must(MutableProofEntry(fk, Addr("svc.b"), String)).Set("2")
		must(MutableProofEntry(fk, Addr("svcx"), String)).Set("3")
	})
	read(t, db, func(s *Snapshot) {
		expected := AggregateHash(map[string]Hash{
			"svc.a": BlobHash([]byte("1")),
			"svc.b": BlobHash([]byte("2")),
		})
		require.Equal(t, expected, must(NamespaceHash(s, "svc")))
		require.Equal(t, EmptyMapHash, must(NamespaceHash(s, "nothing")))
	})
}
