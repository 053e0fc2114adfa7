package merkledb

import (
	"testing"

	"github.com/andreyvit/merkledb/journal/journaltest"
	"github.com/stretchr/testify/require"
)

func journalSeqs(t *testing.T, dir string) []uint64 {
	t.Helper()
	var seqs []uint64
	require.NoError(t, ReplayJournal(dir, func(seq uint64, b *Batch) error {
		require.NotZero(t, b.Len())
		seqs = append(seqs, seq)
		return nil
	}))
	return seqs
}

func TestJournal_RecordsMerges(t *testing.T) {
	dir := t.TempDir()
	db := setup(t, func(o *Options) { o.JournalDir = dir })

	for _, v := range []string{"a", "b", "c"} {
		write(t, db, func(fk *Fork) {
			must(MutableProofList(fk, Addr("log"), String)).Push(v)
		})
	}
	write(t, db, func(fk *Fork) {})

	require.NoError(t, db.Close())
	require.Equal(t, []uint64{1, 2, 3}, journalSeqs(t, dir))
}

func TestJournal_CatchUpRestoresLaggingStorage(t *testing.T) {
	dir := t.TempDir()
	opt := Options{Logger: journaltest.TestLogger(t), Verbose: true, JournalDir: dir}

	db, err := OpenMemory(opt)
	require.NoError(t, err)
	write(t, db, func(fk *Fork) {
		must(MutableProofMap(fk, Addr("balances"), String, Uint64)).Put("alice", 10)
		must(MutableEntry(fk, Addr("owner"), String)).Set("bank")
	})
	write(t, db, func(fk *Fork) {
		must(MutableProofMap(fk, Addr("balances"), String, Uint64)).Put("bob", 5)
		must(MutableProofMap(fk, GroupAddr("history", []byte("bob")), Uint64, String)).Put(1, "open")
	})
	want := must(db.StateHash())
	require.NoError(t, db.Close())

	restored, err := OpenMemory(opt)
	require.NoError(t, err)
	defer restored.Close()

	require.Equal(t, uint64(2), restored.Stats().Seq)
	require.Equal(t, want, must(restored.StateHash()))
	read(t, restored, func(s *Snapshot) {
		v, ok := must(OpenProofMap(s, Addr("balances"), String, Uint64)).Get("bob")
		require.True(t, ok)
		require.Equal(t, uint64(5), v)
		require.Equal(t, want, must(RecomputeStateHash(s)))
	})

	write(t, restored, func(fk *Fork) {
		must(MutableEntry(fk, Addr("owner"), String)).Set("bank2")
	})
	seq := restored.Checkpoint()
	require.NoError(t, restored.Close())
	require.Equal(t, uint64(3), seq)
	require.Equal(t, []uint64{1, 2, 3}, journalSeqs(t, dir))
}

func TestOnCommit_DescribesIndexChanges(t *testing.T) {
	type commit struct {
		seq     uint64
		changes []string
	}
	var commits []commit
	db := setup(t, func(o *Options) {
		o.OnCommit = func(seq uint64, changes []IndexChange) {
			c := commit{seq: seq}
			for _, chg := range changes {
				c.changes = append(c.changes, chg.String())
			}
			commits = append(commits, c)
		}
	})

	write(t, db, func(fk *Fork) {
		must(MutableProofMap(fk, Addr("a"), String, String)).Put("k", "v")
		must(MutableEntry(fk, Addr("b"), String)).Set("x")
	})
	write(t, db, func(fk *Fork) {
		must(MutableProofMap(fk, Addr("a"), String, String)).Put("k", "w")
		require.NoError(t, fk.RemoveIndex(Addr("b")))
	})

	require.GreaterOrEqual(t, len(commits), 2)
	require.Equal(t, commit{1, []string{"create ProofMap(a)", "create Entry(b)"}}, commits[0])
	require.Equal(t, commit{2, []string{"update ProofMap(a)", "delete Entry(b)"}}, commits[1])
	for _, c := range commits[2:] {
		require.Empty(t, c.changes, "garbage collection touches no index metadata")
	}
	require.Equal(t, "invalid op 9", Op(9).String())
}
