package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andreyvit/merkledb"
	"github.com/andreyvit/merkledb/journal/journaltest"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"merkledb"}, args...))
	return out.String(), err
}

func populate(t *testing.T, path, journalDir string) merkledb.Hash {
	t.Helper()
	db, err := merkledb.OpenBolt(path, merkledb.Options{Logger: journaltest.TestLogger(t), JournalDir: journalDir})
	require.NoError(t, err)
	defer db.Close()
	err = db.Write(func(fk *merkledb.Fork) error {
		m, err := merkledb.MutableProofMap(fk, merkledb.Addr("balances"), merkledb.String, merkledb.Uint64)
		if err != nil {
			return err
		}
		m.Put("alice", 10)
		l, err := merkledb.MutableList(fk, merkledb.Addr("notes"), merkledb.String)
		if err != nil {
			return err
		}
		l.Push("hello")
		return nil
	})
	require.NoError(t, err)
	h, err := db.StateHash()
	require.NoError(t, err)
	return h
}

func TestCommandsHelp(t *testing.T) {
	for _, cmd := range commands {
		t.Run(cmd.Name, func(t *testing.T) {
			out, err := run(t, cmd.Name, "--help")
			require.NoError(t, err)
			require.Contains(t, out, cmd.Usage)
		})
	}
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bank.db")
	journalDir := filepath.Join(dir, "journal")
	hash := populate(t, path, journalDir)
	db := []string{"--path", path}

	out, err := run(t, append(db, "state-hash")...)
	require.NoError(t, err)
	require.Equal(t, hash.String()+"\tseq=1\n", out)

	out, err = run(t, append(db, "check")...)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "ok "+hash.String()), out)

	out, err = run(t, append(db, "indexes")...)
	require.NoError(t, err)
	require.Contains(t, out, "balances")
	require.Contains(t, out, "notes")

	out, err = run(t, append(db, "stats")...)
	require.NoError(t, err)
	require.Contains(t, out, "VALUES")

	out, err = run(t, append(db, "dump", "--rows=false")...)
	require.NoError(t, err)
	require.Contains(t, out, "balances: ProofMap")

	proofFile := filepath.Join(dir, "proof.bin")
	_, err = run(t, append(db, "proof", "--out", proofFile, "balances", "missing")...)
	require.NoError(t, err)

	out, err = run(t, "verify-proof", proofFile, hash.String())
	require.NoError(t, err)
	require.Contains(t, out, "missing\tabsent")
	require.Contains(t, out, "balances\t")

	_, err = run(t, "verify-proof", proofFile, merkledb.ZeroHash.String())
	require.Error(t, err)

	out, err = run(t, append(db, "migrations")...)
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = run(t, "journal", "--ops", journalDir)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "seq 1: "), out)
}

func TestCommands_Config(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bank.db")
	hash := populate(t, path, "")

	cfg := filepath.Join(dir, "db.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("backend: bolt\npath: "+path+"\n"), 0o644))
	out, err := run(t, "-c", cfg, "state-hash")
	require.NoError(t, err)
	require.Contains(t, out, hash.String())

	_, err = run(t, "--backend", "rocks", "state-hash")
	require.Error(t, err)
}
