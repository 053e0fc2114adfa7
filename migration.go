package merkledb

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

type MigrationPhase uint8

const (
	MigrationIdle MigrationPhase = iota
	MigrationRunning
	MigrationFlushing
	MigrationCompleted
	MigrationFailed
)

func (p MigrationPhase) String() string {
	switch p {
	case MigrationIdle:
		return "idle"
	case MigrationRunning:
		return "running"
	case MigrationFlushing:
		return "flushing"
	case MigrationCompleted:
		return "completed"
	case MigrationFailed:
		return "failed"
	default:
		return fmt.Sprintf("MigrationPhase(%d)", uint8(p))
	}
}

// Migration rebuilds the indexes of one namespace in the background. Step is
// called repeatedly, each time over a fresh snapshot and fork, until it
// reports done; every increment is merged on its own.
type Migration struct {
	Name      string
	Namespace string

	// Step performs one increment: it reads from s.Old, writes the new
	// layout into s.New and records how far it got with s.SetProgress.
	Step func(s *MigrationStep) (done bool, err error)

	// Verify checks the migrated data against the namespace it replaces
	// before the swap, typically by cross-checking OldHash and NewHash
	// according to the transform. It is required.
	Verify func(v *MigrationVerification) error

	Logger *slog.Logger
}

// MigrationStatus is the persisted descriptor of a migration.
type MigrationStatus struct {
	Name       string         `msgpack:"name"`
	Namespace  string         `msgpack:"ns"`
	Phase      MigrationPhase `msgpack:"phase"`
	Progress   []byte         `msgpack:"progress,omitempty"`
	Increments uint64         `msgpack:"incs"`
	RunID      string         `msgpack:"run"`
	Error      string         `msgpack:"err,omitempty"`
	Updated    time.Time      `msgpack:"upd"`
}

func (st *MigrationStatus) String() string {
	return fmt.Sprintf("%s(%s) %v after %d increments", st.Name, st.Namespace, st.Phase, st.Increments)
}

func migrationKey(ns string) []byte {
	return append(append([]byte(nil), sysMigrationPrefix...), ns...)
}

// encodeMigrationStatus appends an xxhash64 trailer to the msgpack form.
func encodeMigrationStatus(st *MigrationStatus) []byte {
	raw := msgpackEncode(st)
	return binary.LittleEndian.AppendUint64(raw, xxhash.Sum64(raw))
}

func decodeMigrationStatus(data []byte) (*MigrationStatus, error) {
	if len(data) < 8 {
		return nil, decodeErrf(data, 0, nil, "migration descriptor too short")
	}
	n := len(data) - 8
	if xxhash.Sum64(data[:n]) != binary.LittleEndian.Uint64(data[n:]) {
		return nil, decodeErrf(data, n, nil, "migration descriptor checksum mismatch")
	}
	st := new(MigrationStatus)
	if err := msgpackDecode(data[:n], st); err != nil {
		return nil, err
	}
	return st, nil
}

func loadMigration(v kvView, ns string) *MigrationStatus {
	raw := v.get(nsSystem, migrationKey(ns))
	if raw == nil {
		return nil
	}
	return must(decodeMigrationStatus(raw))
}

func (f *Fork) putMigration(st *MigrationStatus) {
	f.put(nsSystem, migrationKey(st.Namespace), encodeMigrationStatus(st))
}

func (f *Fork) deleteMigration(ns string) {
	f.delete(nsSystem, migrationKey(ns))
}

// Migrations lists the persisted migration descriptors, that is, every
// migration that was started and has neither completed nor been aborted.
func (db *DB) Migrations() ([]MigrationStatus, error) {
	var result []MigrationStatus
	err := db.Read(func(s *Snapshot) error {
		s.scan(nsSystem, sysMigrationPrefix, nil, func(k, v []byte) bool {
			result = append(result, *must(decodeMigrationStatus(v)))
			return true
		})
		return nil
	})
	return result, err
}

// MigrationStep is the context of one migration increment.
type MigrationStep struct {
	// Old is a read-only view of the namespace as committed before this
	// increment.
	Old Access

	// New is a writable view in which the namespace's names resolve to the
	// migration's own indexes. They stay invisible to everyone else until
	// the migration completes.
	New Access

	ctx       context.Context
	progress  []byte
	increment uint64
	logger    *slog.Logger
}

func (s *MigrationStep) Context() context.Context {
	return s.ctx
}

// Progress is the marker saved by the previous increment, nil at the start.
func (s *MigrationStep) Progress() []byte {
	return s.progress
}

// SetProgress sets the marker saved together with this increment's data.
func (s *MigrationStep) SetProgress(p []byte) {
	s.progress = append([]byte(nil), p...)
}

// Increment is the zero-based number of this increment.
func (s *MigrationStep) Increment() uint64 {
	return s.increment
}

func (s *MigrationStep) Logger() *slog.Logger {
	return s.logger
}

// MigrationVerification is passed to Migration.Verify once every increment
// has been merged.
type MigrationVerification struct {
	// OldHash and NewHash aggregate the namespace's current and migrated
	// indexes the same way the state hash does.
	OldHash Hash
	NewHash Hash

	Old Access
	New Access
}

// VerifyUnchanged accepts a migration only if it leaves the namespace's
// aggregated hash unchanged, such as a move to a new storage layout.
func VerifyUnchanged(v *MigrationVerification) error {
	if v.OldHash != v.NewHash {
		return fmt.Errorf("namespace hash changed from %v to %v", v.OldHash, v.NewHash)
	}
	return nil
}

// migrationView maps names of a namespace onto the migration's indexes
// (name → ^name). Over a fork it is writable; over a snapshot, read-only.
type migrationView struct {
	snap *Snapshot
	fork *Fork
	ns   string
}

func (v *migrationView) Capabilities() []Capability {
	if v.fork != nil {
		return []Capability{{Prefix: v.ns, Mode: ReadWrite}}
	}
	return []Capability{{Prefix: v.ns, Mode: ReadOnly}}
}

func (v *migrationView) bind(name string, mode AccessMode) (binding, error) {
	if err := validateUserName(name); err != nil {
		return binding{}, &AccessDeniedError{Name: name, Mode: mode, Msg: err.Error()}
	}
	if !nameInNamespace(name, v.ns) {
		return binding{}, &AccessDeniedError{Name: name, Mode: mode, Msg: "outside of migrated namespace " + v.ns}
	}
	if v.fork == nil {
		if mode != ReadOnly {
			return binding{}, &AccessDeniedError{Name: name, Mode: mode, Msg: "snapshot is read-only"}
		}
		if v.snap.released.Load() {
			return binding{}, ErrClosed
		}
		return binding{snap: v.snap, name: migrationName(name)}, nil
	}
	if v.fork.state != forkBuilding {
		return binding{}, ErrForkClosed
	}
	return binding{fork: v.fork, name: migrationName(name)}, nil
}

// swapNamespace makes the migrated indexes of ns current: their metadata
// replaces the originals, originals that were not migrated are dropped and
// the data of every replaced index becomes garbage.
func (f *Fork) swapNamespace(ns string) {
	infos := listIndexes(f)
	headers := listGroupHeaders(f)

	replaced := make(map[string]bool)
	for _, info := range infos {
		target, ok := migrationTarget(info.Addr.name, ns)
		if !ok {
			continue
		}
		raw := f.get(nsMeta, info.Addr.metaKey())
		md := must(decodeMetadata(raw))
		taddr := info.Addr.withName(target)
		if old := f.meta(taddr); old.exists {
			f.addGarbage(old.Identifier)
		}
		f.setMeta(taddr, md)
		f.setMeta(info.Addr, nil)
		replaced[string(taddr.metaKey())] = true
	}
	for _, info := range infos {
		if isMigrationName(info.Addr.name) || !nameInNamespace(info.Addr.name, ns) {
			continue
		}
		if !replaced[string(info.Addr.metaKey())] {
			f.dropIndex(info.Addr)
		}
	}

	migrated := make(map[string]bool)
	for name, raw := range headers {
		if target, ok := migrationTarget(name, ns); ok {
			f.put(nsMeta, groupHeaderKey(target), raw)
			f.delete(nsMeta, groupHeaderKey(name))
			migrated[target] = true
		}
	}
	for name := range headers {
		if !isMigrationName(name) && nameInNamespace(name, ns) && !migrated[name] {
			f.delete(nsMeta, groupHeaderKey(name))
		}
	}
}

// dropMigrated removes every migration index of ns.
func (f *Fork) dropMigrated(ns string) {
	for _, info := range listIndexes(f) {
		if _, ok := migrationTarget(info.Addr.name, ns); ok {
			f.dropIndex(info.Addr)
		}
	}
	for name := range listGroupHeaders(f) {
		if _, ok := migrationTarget(name, ns); ok {
			f.delete(nsMeta, groupHeaderKey(name))
		}
	}
}

func migrationTarget(name, ns string) (string, bool) {
	if !isMigrationName(name) {
		return "", false
	}
	target := name[len(migrationPrefix):]
	return target, nameInNamespace(target, ns)
}

// namespaceDigest fingerprints every index of ns and of its migration
// counterpart: metadata records, object hashes of Merkle indexes and the raw
// data of the other indexes. Any committed write to those indexes changes it.
func namespaceDigest(v kvView, ns string) uint64 {
	type rec struct {
		key, raw []byte
		header   bool
		addr     Address
	}
	var recs []rec
	v.scan(nsMeta, nil, nil, func(k, raw []byte) bool {
		k = slices.Clone(k)
		mk := must(parseMetaKey(k))
		name := mk.addr.name
		if isReservedName(name) || !nameInNamespace(strings.TrimPrefix(name, migrationPrefix), ns) {
			return true
		}
		recs = append(recs, rec{k, slices.Clone(raw), mk.header, mk.addr})
		return true
	})

	d := xxhash.New()
	var buf []byte
	for _, r := range recs {
		buf = appendVarbytes(appendVarbytes(buf[:0], r.key), r.raw)
		d.Write(buf)
		if r.header {
			continue
		}
		md := must(decodeMetadata(r.raw))
		if md.Type.IsMerkelized() {
			h := objectHashOf(v, newIndexMeta(r.addr, md))
			d.Write(h[:])
			continue
		}
		v.scan(nsData, dataPrefix(md.Identifier), nil, func(k, val []byte) bool {
			buf = appendVarbytes(appendVarbytes(buf[:0], k), val)
			d.Write(buf)
			return true
		})
	}
	return d.Sum64()
}

// listGroupHeaders returns the raw group header records by group name.
func listGroupHeaders(v kvView) map[string][]byte {
	result := make(map[string][]byte)
	v.scan(nsMeta, nil, nil, func(k, raw []byte) bool {
		mk := must(parseMetaKey(k))
		if mk.header {
			result[mk.addr.name] = append([]byte(nil), raw...)
		}
		return true
	})
	return result
}
