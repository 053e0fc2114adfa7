package journal_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andreyvit/merkledb/journal"
	"github.com/andreyvit/merkledb/journal/journaltest"
)

const magic = "'JOURNLAT"
const header1 = "0/ver 0/pad 0_0/flags 0../pad"
const header2 = "0*32/journal_inv 0*32/seg_inv 0...*3/reserved"

func TestJournal_trivial(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	require.NoError(t, j.WriteRecord(0, []byte("hello")))
	require.NoError(t, j.WriteRecord(0, []byte("w")))
	j.Advance(1000 * time.Second)
	require.NoError(t, j.WriteRecord(0, []byte("orld")))
	require.NoError(t, j.Commit())
	require.NoError(t, j.Close())

	files := j.FileNames()
	require.Equal(t, []string{"j000000000001-20240101T000000-0000000000000001.wal"}, files)

	j.Eq(files[0], shdr("1.. 80_00_92_65 0...", "e984dc85563d5731"),
		"#10 #0 'hello",
		"#2 #0 'w",
		"#8 #1000 'orld",
		"7d_33_a6_68_73_e0_8f_ee",
	)
}

func TestJournal_ReplayDeliversCommittedRecords(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	require.NoError(t, j.WriteRecord(0, []byte("a")))
	require.NoError(t, j.WriteRecord(0, []byte("b")))
	require.NoError(t, j.Commit())
	require.NoError(t, j.WriteRecord(0, []byte("c")))
	require.NoError(t, j.Commit())
	require.NoError(t, j.WriteRecord(0, []byte("uncommitted")))

	require.Equal(t, []string{"a", "b", "c"}, j.Records())
}

func TestJournal_ReplayReportsTimestampsAndIDs(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	require.NoError(t, j.WriteRecord(0, []byte("a")))
	j.Advance(5 * time.Second)
	require.NoError(t, j.WriteRecord(0, []byte("b")))
	require.NoError(t, j.Commit())

	var recs []journal.Record
	err := journal.Replay(j.Dir, j.Opts, func(rec journal.Record) error {
		rec.Data = append([]byte(nil), rec.Data...)
		recs = append(recs, rec)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	start := uint32(journaltest.Start.Unix())
	require.Equal(t, journal.Record{Segment: 1, ID: 1, Timestamp: start, Data: []byte("a")}, recs[0])
	require.Equal(t, journal.Record{Segment: 1, ID: 2, Timestamp: start + 5, Data: []byte("b")}, recs[1])
}

func TestJournal_ReopenContinuesNumbering(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	require.NoError(t, j.WriteRecord(0, []byte("a")))
	require.NoError(t, j.WriteRecord(0, []byte("b")))
	require.NoError(t, j.Commit())

	j.Reopen()
	require.NoError(t, j.WriteRecord(0, []byte("c")))
	require.NoError(t, j.Commit())

	require.Equal(t, []string{
		"j000000000001-20240101T000000-0000000000000001.wal",
		"j000000000002-20240101T000000-0000000000000003.wal",
	}, j.FileNames())
	require.Equal(t, []string{"a", "b", "c"}, j.Records())
}

func TestJournal_RotatesLargeSegments(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{MaxFileSize: 200})
	for _, s := range []string{"first record", "second record", "third record"} {
		require.NoError(t, j.WriteRecord(0, make([]byte, 100)))
		require.NoError(t, j.WriteRecord(0, []byte(s)))
		require.NoError(t, j.Commit())
	}
	require.Len(t, j.FileNames(), 3)
	require.Len(t, j.Records(), 6)
}

func TestJournal_ReplayStopsAtCorruption(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	require.NoError(t, j.WriteRecord(0, []byte("good")))
	require.NoError(t, j.Commit())
	require.NoError(t, j.WriteRecord(0, []byte("damaged")))
	require.NoError(t, j.Commit())
	require.NoError(t, j.Close())

	name := j.FileNames()[0]
	data := j.Data(name)
	i := len(data) - 8 - len("damaged")
	data[i] ^= 0xFF
	require.NoError(t, os.WriteFile(filepath.Join(j.Dir, name), data, 0o644))

	require.Equal(t, []string{"good"}, j.Records())
}

func TestJournal_ReopenDropsSegmentWithCorruptedHeader(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	require.NoError(t, j.WriteRecord(0, []byte("a")))
	require.NoError(t, j.Commit())
	require.NoError(t, j.Close())

	j.Put("j000000000002-20240101T000000-0000000000000002.wal", "'garbage")
	j.Reopen()
	require.NoError(t, j.WriteRecord(0, []byte("b")))
	require.NoError(t, j.Commit())

	require.Equal(t, []string{
		"j000000000001-20240101T000000-0000000000000001.wal",
		"j000000000002-20240101T000000-0000000000000002.wal",
	}, j.FileNames())
	require.Equal(t, []string{"a", "b"}, j.Records())
}

func TestJournal_WriteAfterCloseFails(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	require.NoError(t, j.Close())
	require.ErrorIs(t, j.WriteRecord(0, []byte("x")), journal.ErrClosed)
}

func TestJournal_SyncedCommit(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{Sync: true})
	require.NoError(t, j.WriteRecord(0, []byte("durable")))
	require.NoError(t, j.Commit())
	require.Equal(t, []string{"durable"}, j.Records())
}

func shdr(inside, check string) string {
	return magic + " " + header1 + " " +
		inside + " " + header2 + " " + check
}
