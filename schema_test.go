package merkledb

import (
	"path/filepath"
	"testing"

	"github.com/andreyvit/merkledb/journal/journaltest"
	"github.com/stretchr/testify/require"
)

type bankSchema struct {
	*Schema
	Owner    *IndexDef[*Entry[string]]
	Ledger   *IndexDef[*ProofList[string]]
	Accounts *IndexDef[*ProofMap[string, account]]
	Flags    *IndexDef[*Set[string]]
	History  *GroupDef[*ProofList[uint64]]
}

func newBankSchema() *bankSchema {
	scm := NewSchema()
	return &bankSchema{
		Schema:   scm,
		Owner:    DefineEntry(scm, "bank.owner", String),
		Ledger:   DefineProofList(scm, "bank.ledger", String),
		Accounts: DefineProofMap(scm, "bank.accounts", String, MsgPack[account]()),
		Flags:    DefineSet(scm, "bank.flags", String),
		History:  DefineProofListGroup(scm, "bank.history", Uint64),
	}
}

func TestSchema_Declarations(t *testing.T) {
	scm := newBankSchema()
	require.Equal(t, []string{"bank.accounts", "bank.flags", "bank.history", "bank.ledger", "bank.owner"}, scm.Names())

	descs := scm.Indexes()
	require.Len(t, descs, 5)
	require.Equal(t, IndexDesc{Name: "bank.owner", Type: EntryType}, descs[0])
	require.Equal(t, IndexDesc{Name: "bank.history", Type: ProofListType, Group: true}, descs[4])

	d, ok := scm.Lookup("bank.accounts")
	require.True(t, ok)
	require.Equal(t, ProofMapType, d.Type)
	_, ok = scm.Lookup("bank.missing")
	require.False(t, ok)

	require.Equal(t, "bank.ledger", scm.Ledger.Name())
	require.Equal(t, ProofListType, scm.History.Type())
}

func TestSchema_DefinitionErrorsPanic(t *testing.T) {
	scm := NewSchema()
	DefineEntry(scm, "a", String)
	require.PanicsWithError(t, "merkledb: schema: a defined twice (as Entry and List)", func() {
		DefineList(scm, "a", String)
	})
	require.Panics(t, func() {
		DefineEntry(scm, "^a", String)
	})
	require.Panics(t, func() {
		DefineEntry(scm, "bad name", String)
	})
}

func TestSchema_TypedAccess(t *testing.T) {
	scm := newBankSchema()
	db := setup(t, func(o *Options) { o.Schema = scm.Schema })
	require.Same(t, scm.Schema, db.Schema())

	write(t, db, func(fk *Fork) {
		must(scm.Owner.Mutable(fk)).Set("alice")
		must(scm.Ledger.Mutable(fk)).Extend("open", "deposit")
		must(scm.Accounts.Mutable(fk)).Put("alice", account{Owner: "alice", Balance: 10})
		must(scm.Flags.Mutable(fk)).Insert("audited")
		must(scm.History.MutableMember(fk, []byte("alice"))).Push(10)
		must(scm.History.MutableGroup(fk).Get([]byte("bob"))).Push(3)
	})
	read(t, db, func(s *Snapshot) {
		owner, _ := must(scm.Owner.Open(s)).Get()
		require.Equal(t, "alice", owner)
		require.Equal(t, uint64(2), must(scm.Ledger.Open(s)).Len())
		acc, ok := must(scm.Accounts.Open(s)).Get("alice")
		require.True(t, ok)
		require.Equal(t, uint64(10), acc.Balance)
		require.True(t, must(scm.Flags.Open(s)).Contains("audited"))

		v, ok := must(scm.History.Member(s, []byte("alice"))).Get(0)
		require.True(t, ok)
		require.Equal(t, uint64(10), v)
		require.Equal(t, [][]byte{[]byte("bob"), []byte("alice")}, must(scm.History.Group(s).Members()))

		_, err := scm.Ledger.Mutable(s)
		var ae *AccessDeniedError
		require.ErrorAs(t, err, &ae)
	})
}

func TestSchema_ValidatedOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.db")
	opt := Options{Logger: journaltest.TestLogger(t)}

	db, err := OpenBolt(path, opt)
	require.NoError(t, err)
	write(t, db, func(fk *Fork) {
		must(MutableList(fk, Addr("bank.ledger"), String)).Push("open")
		must(MutableProofMap(fk, GroupAddr("bank.accounts", []byte("x")), String, String)).Put("k", "v")
	})
	require.NoError(t, db.Close())

	t.Run("type changed", func(t *testing.T) {
		scm := NewSchema()
		DefineProofList(scm, "bank.ledger", String)
		opt := opt
		opt.Schema = scm
		_, err := OpenBolt(path, opt)
		var te *TypeMismatchError
		require.ErrorAs(t, err, &te)
		require.Equal(t, ListType, te.Actual)
		require.Equal(t, ProofListType, te.Expected)
	})

	t.Run("group declared standalone", func(t *testing.T) {
		scm := NewSchema()
		DefineProofMap(scm, "bank.accounts", String, String)
		opt := opt
		opt.Schema = scm
		_, err := OpenBolt(path, opt)
		var te *TypeMismatchError
		require.ErrorAs(t, err, &te)
	})

	t.Run("matching", func(t *testing.T) {
		scm := NewSchema()
		DefineList(scm, "bank.ledger", String)
		DefineProofMapGroup(scm, "bank.accounts", String, String)
		DefineProofEntry(scm, "bank.new", String)
		opt := opt
		opt.Schema = scm
		db, err := OpenBolt(path, opt)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	})
}
