package merkledb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProofList_AppendChangesRootAndKeepsOldProofsValid(t *testing.T) {
	db := setup(t)
	var r1 Hash
	write(t, db, func(fk *Fork) {
		l := must(MutableProofList(fk, Addr("l"), Uint64))
		l.Extend(10, 20, 30)
		r1 = l.ObjectHash()
	})
	write(t, db, func(fk *Fork) {
		l := must(MutableProofList(fk, Addr("l"), Uint64))
		l.Push(40)
	})
	read(t, db, func(s *Snapshot) {
		l := must(OpenProofList(s, Addr("l"), Uint64))
		r2 := l.ObjectHash()
		require.NotEqual(t, r1, r2)

		checked, err := l.GetProof(0).Check()
		require.NoError(t, err)
		require.NoError(t, checked.Verify(r2))
		require.Error(t, checked.Verify(r1))
		v, ok := checked.Lookup(0)
		require.True(t, ok)
		require.Equal(t, must(Uint64.Encode(10)), v)
	})
}

func TestProofList_HashRules(t *testing.T) {
	db := setup(t)
	leaf := func(v uint64) Hash { return BlobHash(must(Uint64.Encode(v))) }
	write(t, db, func(fk *Fork) {
		l := must(MutableProofList(fk, Addr("l"), Uint64))
		require.Equal(t, ZeroHash, l.MerkleRoot())
		require.Equal(t, EmptyListHash, l.ObjectHash())

		l.Push(1)
		require.Equal(t, leaf(1), l.MerkleRoot())

		l.Push(2)
		require.Equal(t, listBranchHash(leaf(1), leaf(2)), l.MerkleRoot())

		// The third leaf has no sibling and is promoted unchanged.
		l.Push(3)
		expected := listBranchHash(listBranchHash(leaf(1), leaf(2)), leaf(3))
		require.Equal(t, expected, l.MerkleRoot())
		require.Equal(t, listObjectHash(3, expected), l.ObjectHash())
	})
}

func TestProofList_RangeProofs(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		l := must(MutableProofList(fk, Addr("l"), Uint64))
		for i := range uint64(13) {
			l.Push(i * 10)
		}
	})
	read(t, db, func(s *Snapshot) {
		l := must(OpenProofList(s, Addr("l"), Uint64))
		root := l.ObjectHash()
		for from := uint64(0); from < 14; from++ {
			for to := from + 1; to <= 15; to++ {
				checked, err := l.GetRangeProof(from, to).Check()
				require.NoError(t, err, "range [%d, %d)", from, to)
				require.NoError(t, checked.Verify(root), "range [%d, %d)", from, to)
				require.Len(t, checked.Entries, int(min(to, 13)-min(from, 13)))
			}
		}

		proof := l.GetProof(5)
		proof.Entries[0].Value = must(Uint64.Encode(999))
		checked, err := proof.Check()
		require.NoError(t, err)
		require.Error(t, checked.Verify(root))
	})
}

func TestProofList_EditsKeepHashConsistent(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		a := must(MutableProofList(fk, Addr("a"), String))
		b := must(MutableProofList(fk, Addr("b"), String))
		a.Extend("x", "y", "z", "w", "v")
		a.Set(1, "Y")
		a.Truncate(3)
		b.Extend("x", "Y", "z")
		require.Equal(t, b.ObjectHash(), a.ObjectHash())

		v, ok := a.Pop()
		require.True(t, ok)
		require.Equal(t, "z", v)
		b.Truncate(2)
		require.Equal(t, b.ObjectHash(), a.ObjectHash())

		a.Clear()
		require.Equal(t, EmptyListHash, a.ObjectHash())
		_, ok = a.Pop()
		require.False(t, ok)
	})
}

func TestProofList_SetOutOfRange(t *testing.T) {
	db := setup(t)
	err := db.Write(func(fk *Fork) error {
		l := must(MutableProofList(fk, Addr("l"), Uint64))
		l.Push(1)
		l.Set(5, 2)
		return nil
	})
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	var ie *IndexError
	require.ErrorAs(t, err, &ie)
}
