package merkledb

import (
	"bytes"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// kvView is the raw read path shared by Snapshot and Fork. Slices passed to
// scan callbacks are only valid during the callback. Storage failures panic.
type kvView interface {
	get(ns string, key []byte) []byte

	// scan visits keys starting with prefix, beginning at from (or at the
	// start of the prefix when from is nil), until fn returns false.
	scan(ns string, prefix, from []byte, fn func(k, v []byte) bool)

	meta(addr Address) *indexMeta
}

// Snapshot is an immutable point-in-time view of committed state. Many
// snapshots may coexist; each holds engine resources until Release.
type Snapshot struct {
	db       *DB
	ss       StorageSnapshot
	seq      uint64
	cache    *lru.Cache[string, []byte]
	released atomic.Bool
}

func (db *DB) newSnapshot() (*Snapshot, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	// seq is read before the engine snapshot; merges bump it after Apply, so
	// the snapshot is never older than its seq.
	seq := db.seq.Load()
	ss, err := db.storage.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("merkledb: snapshot: %w", err)
	}
	s := &Snapshot{db: db, ss: ss, seq: seq}
	if db.cacheSize > 0 {
		s.cache = must(lru.New[string, []byte](db.cacheSize))
	}
	db.metrics.snapshots.Inc()
	db.openSnapshots.Add(1)
	return s, nil
}

// Seq is the commit sequence number this snapshot was taken at or after.
func (s *Snapshot) Seq() uint64 {
	return s.seq
}

func (s *Snapshot) DB() *DB {
	return s.db
}

// Release frees the engine snapshot. Handles opened over the snapshot must
// not be used afterwards.
func (s *Snapshot) Release() {
	if s.released.CompareAndSwap(false, true) {
		s.ss.Release()
		s.db.openSnapshots.Add(-1)
	}
}

func (s *Snapshot) checkLive() {
	if s.released.Load() {
		panic(fmt.Errorf("merkledb: snapshot %d used after Release", s.seq))
	}
}

func (s *Snapshot) get(ns string, key []byte) []byte {
	s.checkLive()
	var ck string
	if s.cache != nil {
		ck = ns + "\x00" + string(key)
		if v, ok := s.cache.Get(ck); ok {
			return v
		}
	}
	v, err := s.ss.Get(ns, key)
	if err != nil {
		panic(err)
	}
	if s.cache != nil {
		s.cache.Add(ck, v)
	}
	return v
}

func (s *Snapshot) cursor(ns string) StorageCursor {
	s.checkLive()
	c, err := s.ss.Cursor(ns)
	if err != nil {
		panic(fmt.Errorf("merkledb: cursor %s: %w", ns, err))
	}
	return c
}

func seekCursor(c StorageCursor, start []byte) ([]byte, []byte) {
	if len(start) == 0 {
		return c.First()
	}
	return c.Seek(start)
}

func (s *Snapshot) scan(ns string, prefix, from []byte, fn func(k, v []byte) bool) {
	start := from
	if start == nil {
		start = prefix
	}
	c := s.cursor(ns)
	defer c.Close()
	for k, v := seekCursor(c, start); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if !fn(k, v) {
			break
		}
	}
	if err := c.Err(); err != nil {
		panic(fmt.Errorf("merkledb: scan %s: %w", ns, err))
	}
}

func (s *Snapshot) meta(addr Address) *indexMeta {
	return loadMeta(s, addr)
}

// Indexes lists every index persisted in this snapshot, including system and
// migration indexes.
func (s *Snapshot) Indexes() (result []IndexInfo, err error) {
	err = safelyCall(func() error {
		result = listIndexes(s)
		return nil
	})
	return
}
