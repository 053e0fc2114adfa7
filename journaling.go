package merkledb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/andreyvit/merkledb/journal"
)

const journalFileName = "merkledb-*.wal"

// journalRecord is one merged batch as stored in the journal.
type journalRecord struct {
	Seq uint64    `msgpack:"seq"`
	Ops []BatchOp `msgpack:"ops"`
}

func (db *DB) journalOptions(sync bool) journal.Options {
	return journal.Options{
		FileName:  journalFileName,
		DebugName: "merkledb",
		Sync:      sync,
		Logger:    db.logger,
		Verbose:   db.verbose,
	}
}

// appendToJournal records a batch that has already been applied. A journal
// failure does not undo the merge; it is logged and the journal stays
// broken until the database is reopened.
func (db *DB) appendToJournal(seq uint64, b *Batch) {
	data := msgpackEncode(&journalRecord{Seq: seq, Ops: b.ops})
	err := db.journal.WriteRecord(0, data)
	if err == nil {
		err = db.journal.Commit()
	}
	if err != nil {
		db.logger.LogAttrs(context.Background(), slog.LevelError, "merkledb: journal write failed", slog.Uint64("seq", seq), slog.Any("err", err))
	}
}

// catchUpWithJournal applies journaled batches newer than the storage, which
// restores a storage copy that lags behind its journal.
func (db *DB) catchUpWithJournal(dir string) error {
	var applied int
	err := ReplayJournal(dir, func(seq uint64, b *Batch) error {
		cur := db.seq.Load()
		if seq <= cur {
			return nil
		}
		if seq != cur+1 {
			return fmt.Errorf("merkledb: journal skips from seq %d to %d", cur, seq)
		}
		if err := db.storage.Apply(b); err != nil {
			return fmt.Errorf("merkledb: replaying seq %d: %w", seq, err)
		}
		db.seq.Store(seq)
		applied++
		return nil
	})
	if err != nil {
		return err
	}
	if applied > 0 {
		db.logger.LogAttrs(context.Background(), slog.LevelInfo, "merkledb: caught up with journal", slog.Int("batches", applied), slog.Uint64("seq", db.seq.Load()))
		return db.loadCounters()
	}
	return nil
}

// ReplayJournal calls fn for every batch recorded in the journal at dir,
// oldest first.
func ReplayJournal(dir string, fn func(seq uint64, b *Batch) error) error {
	o := journal.Options{FileName: journalFileName, DebugName: "merkledb"}
	return journal.Replay(dir, o, func(rec journal.Record) error {
		var jr journalRecord
		if err := msgpackDecode(rec.Data, &jr); err != nil {
			return fmt.Errorf("merkledb: journal record %d: %w", rec.ID, err)
		}
		b := &Batch{ops: make([]BatchOp, len(jr.Ops))}
		for i, op := range jr.Ops {
			if !op.Delete && op.Value == nil {
				op.Value = emptyValue
			}
			b.ops[i] = op
		}
		return fn(jr.Seq, b)
	})
}
