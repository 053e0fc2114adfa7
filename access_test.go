package merkledb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRestrict_GrantsOnlyNamedNamespaces(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		r, err := Restrict(fk, Capability{"tokens", ReadWrite}, Capability{"config", ReadOnly})
		require.NoError(t, err)

		m := must(MutableMap(r, Addr("tokens.balances"), String, Uint64))
		m.Put("alice", 10)
		_, err = MutableMap(r, Addr("tokens"), String, Uint64)
		require.NoError(t, err)

		_, err = OpenEntry(r, Addr("config"), String)
		require.NoError(t, err)

		var ade *AccessDeniedError
		_, err = MutableEntry(r, Addr("config"), String)
		require.ErrorAs(t, err, &ade)
		require.Equal(t, ReadWrite, ade.Mode)

		_, err = OpenEntry(r, Addr("tokensx"), String)
		require.ErrorAs(t, err, &ade)
		_, err = OpenEntry(r, Addr("other"), String)
		require.ErrorAs(t, err, &ade)

		_, err = Restrict(r, Capability{"config", ReadWrite})
		require.ErrorAs(t, err, &ade)
		_, err = Restrict(r, Capability{"", ReadOnly})
		require.ErrorAs(t, err, &ade)

		narrower, err := Restrict(r, Capability{"tokens.balances", ReadOnly})
		require.NoError(t, err)
		require.Equal(t, []Capability{{"tokens.balances", ReadOnly}}, narrower.Capabilities())
	})
}

func TestRestrict_DeniedOpenHasNoSideEffects(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		r := must(Restrict(fk, Capability{"a", ReadOnly}))
		_, err := MutableList(r, Addr("a.list"), String)
		require.Error(t, err)
	})
	require.Equal(t, uint64(0), db.Checkpoint())
	read(t, db, func(s *Snapshot) {
		require.Empty(t, must(s.Indexes()))
	})
}

func TestPrefix_ResolvesRelativeNames(t *testing.T) {
	db := setup(t)
	write(t, db, func(fk *Fork) {
		p, err := Prefix(fk, "svc")
		require.NoError(t, err)
		require.Equal(t, "svc", p.Namespace())
		must(MutableProofEntry(p, Addr("state"), String)).Set("on")
	})
	read(t, db, func(s *Snapshot) {
		v, ok := must(OpenProofEntry(s, Addr("svc.state"), String)).Get()
		require.True(t, ok)
		require.Equal(t, "on", v)

		p := must(Prefix(s, "svc"))
		_, err := MutableEntry(p, Addr("state"), String)
		var ade *AccessDeniedError
		require.ErrorAs(t, err, &ade)
	})

	write(t, db, func(fk *Fork) {
		r := must(Restrict(fk, Capability{"svc", ReadOnly}))
		p := must(Prefix(r, "svc"))
		require.Equal(t, []Capability{{"", ReadOnly}}, p.Capabilities())
		_, err := Prefix(r, "other")
		require.Error(t, err)
	})
}

func TestAccess_ReservedAndMigrationNamesAreHidden(t *testing.T) {
	db := setup(t)
	read(t, db, func(s *Snapshot) {
		var ade *AccessDeniedError
		_, err := OpenProofMap(s, Addr(aggregatorName), String, String)
		require.ErrorAs(t, err, &ade)
		_, err = OpenProofMap(s, Addr("^ns.x"), String, String)
		require.ErrorAs(t, err, &ade)
		_, err = OpenEntry(s, Addr("bad name"), String)
		require.ErrorAs(t, err, &ade)
		_, err = OpenEntry(s, Addr(""), String)
		require.ErrorAs(t, err, &ade)
	})
}

func TestSnapshot_IsReadOnly(t *testing.T) {
	db := setup(t)
	read(t, db, func(s *Snapshot) {
		_, err := MutableEntry(s, Addr("e"), String)
		var ade *AccessDeniedError
		require.ErrorAs(t, err, &ade)
		_, err = Restrict(s, Capability{"e", ReadWrite})
		require.ErrorAs(t, err, &ade)
	})
}
