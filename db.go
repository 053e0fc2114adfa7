package merkledb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andreyvit/merkledb/journal"
)

const trackForks = true

// Keys in the system namespace.
var (
	sysNextID          = []byte("next-id")
	sysSeq             = []byte("seq")
	sysGarbagePrefix   = []byte("garbage/")
	sysMigrationPrefix = []byte("migration/")
)

// DB is a merklized document store over a Storage. Readers take Snapshots
// and never block; writers build Forks concurrently, but merges are
// serialized by a single guard.
type DB struct {
	storage          Storage
	schema           *Schema
	logger           *slog.Logger
	verbose          bool
	cacheSize        int
	rejectConcurrent bool
	onCommit         func(seq uint64, changes []IndexChange)

	mergeMu sync.Mutex
	nextID  atomic.Uint64 // last allocated identifier
	seq     atomic.Uint64 // last committed sequence number
	closed  atomic.Bool

	journal *journal.Journal
	metrics *dbMetrics

	openSnapshots atomic.Int64
	mergeCount    atomic.Uint64

	migrationsLock sync.Mutex
	migrations     map[string]*MigrationHandle

	forks     []*Fork
	forksLock sync.Mutex
}

type Options struct {
	Logger  *slog.Logger
	Verbose bool

	// CacheSize is the number of raw reads each Snapshot caches. Zero
	// disables the cache.
	CacheSize int

	// RejectConcurrentMerges makes Merge fail with ErrMergeConflict instead
	// of waiting while another merge is in progress.
	RejectConcurrentMerges bool

	// JournalDir enables the journal of merged batches.
	JournalDir  string
	JournalSync bool

	// Registerer receives the database's metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer

	// Schema, when set, is validated against the persisted metadata.
	Schema *Schema

	// OnCommit is called after every successful merge, outside of the merge
	// guard.
	OnCommit func(seq uint64, changes []IndexChange)
}

// Open opens a database over storage and takes ownership of it: the storage
// is closed by DB.Close, or right away if Open fails.
func Open(storage Storage, opt Options) (*DB, error) {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	db := &DB{
		storage:          storage,
		schema:           opt.Schema,
		logger:           opt.Logger,
		verbose:          opt.Verbose,
		cacheSize:        opt.CacheSize,
		rejectConcurrent: opt.RejectConcurrentMerges,
		onCommit:         opt.OnCommit,
		metrics:          newMetrics(opt.Registerer),
		migrations:       make(map[string]*MigrationHandle),
	}
	if err := db.open(opt); err != nil {
		if db.journal != nil {
			db.journal.Close()
		}
		storage.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) open(opt Options) error {
	if err := db.loadCounters(); err != nil {
		return err
	}
	if opt.JournalDir != "" {
		if err := db.catchUpWithJournal(opt.JournalDir); err != nil {
			return err
		}
		j, err := journal.Open(opt.JournalDir, db.journalOptions(opt.JournalSync))
		if err != nil {
			return err
		}
		db.journal = j
	}
	if db.schema != nil {
		err := db.Read(func(s *Snapshot) error {
			return db.schema.validate(s)
		})
		if err != nil {
			return err
		}
	}
	if err := db.collectGarbage(); err != nil {
		return fmt.Errorf("merkledb: collecting garbage: %w", err)
	}
	if db.verbose {
		db.logger.LogAttrs(context.Background(), slog.LevelDebug, "merkledb: opened", slog.Uint64("seq", db.seq.Load()), slog.Uint64("next_id", db.nextID.Load()+1))
	}
	return nil
}

func (db *DB) loadCounters() error {
	ss, err := db.storage.Snapshot()
	if err != nil {
		return fmt.Errorf("merkledb: %w", err)
	}
	defer ss.Release()
	for _, c := range []struct {
		key []byte
		dst *atomic.Uint64
	}{{sysNextID, &db.nextID}, {sysSeq, &db.seq}} {
		raw, err := ss.Get(nsSystem, c.key)
		if err != nil {
			return fmt.Errorf("merkledb: loading %s: %w", c.key, err)
		}
		v, err := decodeCounter(raw)
		if err != nil {
			return fmt.Errorf("merkledb: loading %s: %w", c.key, err)
		}
		c.dst.Store(v)
	}
	db.metrics.seq.Set(float64(db.seq.Load()))
	return nil
}

func encodeCounter(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeCounter(raw []byte) (uint64, error) {
	if raw == nil {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, decodeErrf(raw, 0, nil, "counter must be 8 bytes")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (db *DB) Storage() Storage {
	return db.storage
}

func (db *DB) Schema() *Schema {
	return db.schema
}

func (db *DB) Logger() *slog.Logger {
	return db.logger
}

// Checkpoint returns the sequence number of the latest merge.
func (db *DB) Checkpoint() uint64 {
	return db.seq.Load()
}

func (db *DB) allocID() uint64 {
	return db.nextID.Add(1)
}

// Snapshot returns a read view of the latest committed state. The caller
// must Release it.
func (db *DB) Snapshot() (*Snapshot, error) {
	return db.newSnapshot()
}

// Fork starts a new transaction over the latest committed state. The caller
// must either merge its patch or Discard it.
func (db *DB) Fork() (*Fork, error) {
	s, err := db.newSnapshot()
	if err != nil {
		return nil, err
	}
	f := db.newFork(s)
	if trackForks {
		f.startTime = time.Now()
		f.stack = string(debug.Stack())
		db.addFork(f)
	}
	return f, nil
}

// StateHash returns the state hash of the latest committed state.
func (db *DB) StateHash() (Hash, error) {
	var h Hash
	err := db.Read(func(s *Snapshot) error {
		var err error
		h, err = s.StateHash()
		return err
	})
	return h, err
}

// Indexes lists every index of the latest committed state.
func (db *DB) Indexes() ([]IndexInfo, error) {
	var result []IndexInfo
	err := db.Read(func(s *Snapshot) error {
		var err error
		result, err = s.Indexes()
		return err
	})
	return result, err
}

// Merge applies a patch to the store as one atomic batch, together with the
// state aggregator updates for every index the patch touched.
func (db *DB) Merge(p *Patch) error {
	if p.db != db {
		return errors.New("merkledb: patch belongs to another database")
	}
	if db.closed.Load() {
		return ErrClosed
	}
	if db.rejectConcurrent {
		if !db.mergeMu.TryLock() {
			db.metrics.merges.WithLabelValues("conflict").Inc()
			return ErrMergeConflict
		}
	} else {
		db.mergeMu.Lock()
	}
	start := time.Now()
	res, err := db.mergeLocked(p)
	db.mergeMu.Unlock()
	dur := time.Since(start)
	db.metrics.mergeDuration.Observe(dur.Seconds())

	if errors.Is(err, errStalePatch) {
		db.metrics.merges.WithLabelValues("stale").Inc()
		return err
	}
	if err != nil {
		db.metrics.merges.WithLabelValues("error").Inc()
		db.logger.LogAttrs(context.Background(), slog.LevelError, "merkledb: merge failed", slog.Uint64("base_seq", p.baseSeq), slog.Any("err", err))
		return err
	}
	if res.empty {
		db.metrics.merges.WithLabelValues("empty").Inc()
		return nil
	}
	db.metrics.merges.WithLabelValues("ok").Inc()
	if db.verbose {
		db.logger.LogAttrs(context.Background(), slog.LevelDebug, "merkledb: merged",
			slog.Uint64("seq", res.seq),
			slog.Uint64("base_seq", p.baseSeq),
			slog.Int("ops", res.ops),
			slog.Int("indexes", len(res.changes)),
			slog.Duration("dur", dur))
	}
	if db.onCommit != nil {
		db.onCommit(res.seq, res.changes)
	}
	if p.garbage {
		if err := db.collectGarbage(); err != nil {
			db.logger.LogAttrs(context.Background(), slog.LevelWarn, "merkledb: garbage collection postponed", slog.Any("err", err))
		}
	}
	return nil
}

type mergeResult struct {
	seq     uint64
	ops     int
	changes []IndexChange
	empty   bool
}

func (db *DB) mergeLocked(p *Patch) (mergeResult, error) {
	var res mergeResult
	if p.merged.Load() {
		return res, ErrPatchMerged
	}
	if p.IsEmpty() {
		p.merged.Store(true)
		res.empty = true
		return res, nil
	}

	base, err := db.newSnapshot()
	if err != nil {
		return res, err
	}
	f := db.newFork(base)
	defer f.Discard()

	if p.precondition != nil {
		if err := safelyCall(func() error { return p.precondition(base) }); err != nil {
			return res, err
		}
	}

	res.seq = db.seq.Load() + 1
	var b *Batch
	err = safelyCall(func() error {
		f.applyPatch(p)
		res.changes = describeChanges(base, f)
		updateAggregates(f, f.touched)
		if f.allocated {
			f.put(nsSystem, sysNextID, encodeCounter(db.nextID.Load()))
		}
		f.put(nsSystem, sysSeq, encodeCounter(res.seq))
		b = f.batch()
		return nil
	})
	if err != nil {
		return res, err
	}
	res.ops = b.Len()

	if err := db.storage.Apply(b); err != nil {
		return res, fmt.Errorf("merkledb: apply: %w", err)
	}
	db.seq.Store(res.seq)
	db.mergeCount.Add(1)
	p.merged.Store(true)
	db.metrics.seq.Set(float64(res.seq))
	db.metrics.batchOps.Observe(float64(res.ops))

	if db.journal != nil {
		db.appendToJournal(res.seq, b)
	}
	return res, nil
}

// collectGarbage deletes the data of dropped indexes.
func (db *DB) collectGarbage() error {
	return db.Write(func(f *Fork) error {
		var ids []uint64
		f.scan(nsSystem, sysGarbagePrefix, nil, func(k, _ []byte) bool {
			ids = append(ids, binary.BigEndian.Uint64(k[len(sysGarbagePrefix):]))
			return true
		})
		for _, id := range ids {
			f.clearPrefix(nsData, dataPrefix(id))
			f.delete(nsSystem, garbageKey(id))
		}
		if len(ids) > 0 {
			db.metrics.garbage.Add(float64(len(ids)))
			if db.verbose {
				db.logger.LogAttrs(context.Background(), slog.LevelDebug, "merkledb: collecting garbage", slog.Int("indexes", len(ids)))
			}
		}
		return nil
	})
}

func garbageKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(slices.Clone(sysGarbagePrefix), id)
}

// addGarbage schedules the data of a dropped index for deletion by a
// follow-up merge.
func (f *Fork) addGarbage(id uint64) {
	f.put(nsSystem, garbageKey(id), nil)
	f.garbage = true
}

// Close waits for the merge in progress, stops running migrations and closes
// the journal and the storage.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	db.migrationsLock.Lock()
	handles := make([]*MigrationHandle, 0, len(db.migrations))
	for _, h := range db.migrations {
		handles = append(handles, h)
	}
	db.migrationsLock.Unlock()
	for _, h := range handles {
		h.cancel()
		h.Wait()
	}

	db.mergeMu.Lock()
	defer db.mergeMu.Unlock()
	if db.journal != nil {
		db.journal.Close()
	}
	if n := db.openSnapshots.Load(); n > 0 {
		db.logger.LogAttrs(context.Background(), slog.LevelWarn, "merkledb: closing with open snapshots", slog.Int64("count", n))
	}
	if err := db.storage.Close(); err != nil {
		return fmt.Errorf("merkledb: closing: %w", err)
	}
	return nil
}

func (db *DB) addFork(f *Fork) {
	db.forksLock.Lock()
	defer db.forksLock.Unlock()
	f.tracked = true
	db.forks = append(db.forks, f)
}

func (db *DB) removeFork(f *Fork) {
	if !f.tracked {
		return
	}
	db.forksLock.Lock()
	defer db.forksLock.Unlock()

	found := slices.Index(db.forks, f)
	if found < 0 {
		panic("fork not found in list")
	}
	f.tracked = false

	n := len(db.forks)
	db.forks[found] = db.forks[n-1]
	db.forks[n-1] = nil
	db.forks = db.forks[:n-1]
}

// DescribeOpenForks lists forks that were neither merged nor discarded, with
// the stack that created each long-lived one.
func (db *DB) DescribeOpenForks() string {
	if !trackForks {
		return "OPEN FORK TRACKING DISABLED"
	}

	db.forksLock.Lock()
	forks := slices.Clone(db.forks)
	db.forksLock.Unlock()

	if len(forks) == 0 {
		return "NO OPEN FORKS"
	}

	slices.SortFunc(forks, func(a, b *Fork) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN FORKS:\n", len(forks))
	for _, f := range forks {
		ms := now.Sub(f.startTime).Milliseconds()
		if ms < 100 {
			fmt.Fprintf(&buf, "\n---\nopen for %d ms\n", ms)
		} else {
			fmt.Fprintf(&buf, "\n---\nopen for %d ms:\n%s", ms, f.stack)
		}
	}
	return buf.String()
}

// OpenMemory opens a database over a fresh in-memory storage.
func OpenMemory(opt Options) (*DB, error) {
	return Open(NewMemoryStorage(), opt)
}

// OpenBolt opens a database stored in a Bolt file.
func OpenBolt(path string, opt Options) (*DB, error) {
	st, err := OpenBoltStorage(path, BoltOptions{})
	if err != nil {
		return nil, err
	}
	return Open(st, opt)
}

// OpenBadger opens a database stored in a Badger directory.
func OpenBadger(dir string, opt Options) (*DB, error) {
	st, err := OpenBadgerStorage(BadgerOptions{Path: dir, Logger: opt.Logger})
	if err != nil {
		return nil, err
	}
	return Open(st, opt)
}

// OpenLevelDB opens a database stored in a LevelDB directory.
func OpenLevelDB(dir string, opt Options) (*DB, error) {
	st, err := OpenLevelDBStorage(dir, false)
	if err != nil {
		return nil, err
	}
	return Open(st, opt)
}
