package merkledb

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"
)

type forkState uint8

const (
	forkBuilding forkState = iota
	forkFinalized
	forkDiscarded
)

// Fork is a mutable in-memory overlay over a base Snapshot. All writes are
// buffered until the Fork is turned into a Patch and merged. A Fork is owned
// by a single goroutine.
type Fork struct {
	db      *DB
	base    *Snapshot
	overlay map[string]*nsOverlay
	state   forkState

	// metas caches metadata by encoded address.
	metas map[string]*indexMeta
	// live holds addresses with a live mutable handle.
	live map[string]bool
	// touched holds every index mutated in this fork, by encoded address.
	touched map[string]Address

	allocated bool
	garbage   bool

	tracked   bool
	startTime time.Time
	stack     string
}

type change struct {
	value   []byte
	deleted bool
}

type nsOverlay struct {
	changes map[string]change
	keys    []string // sorted keys of changes, nil when stale
	cleared [][]byte // prefixes removed from the base
}

func newOverlay() *nsOverlay {
	return &nsOverlay{changes: make(map[string]change)}
}

func (ov *nsOverlay) set(key string, c change) {
	if _, found := ov.changes[key]; !found {
		ov.keys = nil
	}
	ov.changes[key] = c
}

func (ov *nsOverlay) sortedKeys() []string {
	if ov.keys == nil {
		ov.keys = slices.Sorted(maps.Keys(ov.changes))
	}
	return ov.keys
}

func (ov *nsOverlay) isCleared(key []byte) bool {
	for _, p := range ov.cleared {
		if bytes.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (db *DB) newFork(base *Snapshot) *Fork {
	db.metrics.forks.Inc()
	return &Fork{
		db:      db,
		base:    base,
		overlay: make(map[string]*nsOverlay),
		metas:   make(map[string]*indexMeta),
		live:    make(map[string]bool),
		touched: make(map[string]Address),
	}
}

func (f *Fork) DB() *DB {
	return f.db
}

// Base returns the snapshot the fork was created over.
func (f *Fork) Base() *Snapshot {
	return f.base
}

func (f *Fork) checkBuilding() {
	if f.state != forkBuilding {
		panic(ErrForkClosed)
	}
}

func (f *Fork) get(ns string, key []byte) []byte {
	f.checkBuilding()
	if ov := f.overlay[ns]; ov != nil {
		if c, found := ov.changes[string(key)]; found {
			if c.deleted {
				return nil
			}
			return c.value
		}
		if ov.isCleared(key) {
			return nil
		}
	}
	return f.base.get(ns, key)
}

func (f *Fork) ensureOverlay(ns string) *nsOverlay {
	ov := f.overlay[ns]
	if ov == nil {
		ov = newOverlay()
		f.overlay[ns] = ov
	}
	return ov
}

func (f *Fork) put(ns string, key, value []byte) {
	f.checkBuilding()
	if len(key) == 0 {
		panic(fmt.Errorf("merkledb: empty key in %s", ns))
	}
	if value == nil {
		value = emptyValue
	}
	f.ensureOverlay(ns).set(string(key), change{value: bytes.Clone(value)})
}

func (f *Fork) delete(ns string, key []byte) {
	f.checkBuilding()
	f.ensureOverlay(ns).set(string(key), change{deleted: true})
}

// clearPrefix removes every key starting with prefix, both buffered and
// committed. Committed keys are resolved into explicit deletes by IntoPatch.
func (f *Fork) clearPrefix(ns string, prefix []byte) {
	f.checkBuilding()
	ov := f.ensureOverlay(ns)
	for k := range ov.changes {
		if strings.HasPrefix(k, string(prefix)) {
			delete(ov.changes, k)
			ov.keys = nil
		}
	}
	if !ov.isCleared(prefix) {
		ov.cleared = append(ov.cleared, bytes.Clone(prefix))
	}
}

func (f *Fork) scan(ns string, prefix, from []byte, fn func(k, v []byte) bool) {
	f.checkBuilding()
	ov := f.overlay[ns]
	if ov == nil {
		f.base.scan(ns, prefix, from, fn)
		return
	}

	start := from
	if start == nil {
		start = prefix
	}
	okeys := ov.sortedKeys()
	oi := sort.SearchStrings(okeys, string(start))

	c := f.base.cursor(ns)
	defer c.Close()
	bk, bv := seekCursor(c, start)
	for {
		for bk != nil && bytes.HasPrefix(bk, prefix) {
			if _, shadowed := ov.changes[string(bk)]; !shadowed && !ov.isCleared(bk) {
				break
			}
			bk, bv = c.Next()
		}
		baseOK := bk != nil && bytes.HasPrefix(bk, prefix)

		var ok string
		var oc change
		var ovOK bool
		for oi < len(okeys) {
			k := okeys[oi]
			if !strings.HasPrefix(k, string(prefix)) {
				oi = len(okeys)
				break
			}
			ch, found := ov.changes[k]
			if !found || ch.deleted {
				oi++
				continue
			}
			ok, oc, ovOK = k, ch, true
			break
		}

		if !baseOK && !ovOK {
			break
		}
		if ovOK && (!baseOK || ok < string(bk)) {
			oi++
			if !fn([]byte(ok), oc.value) {
				return
			}
		} else {
			if !fn(bk, bv) {
				return
			}
			bk, bv = c.Next()
		}
	}
	if err := c.Err(); err != nil {
		panic(fmt.Errorf("merkledb: scan %s: %w", ns, err))
	}
}

func (f *Fork) meta(addr Address) *indexMeta {
	mk := string(addr.metaKey())
	if m := f.metas[mk]; m != nil {
		return m
	}
	m := loadMeta(f, addr)
	f.metas[mk] = m
	return m
}

func (f *Fork) saveMeta(m *indexMeta) {
	f.put(nsMeta, m.addr.metaKey(), encodeMetadata(&m.IndexMetadata))
}

// createIndex allocates an identifier and records metadata for an index
// opened mutably for the first time.
func (f *Fork) createIndex(m *indexMeta, typ IndexType) {
	m.Identifier = f.db.allocID()
	m.Type = typ
	m.State = nil
	m.exists = true
	m.prefix = dataPrefix(m.Identifier)
	f.allocated = true
	f.saveMeta(m)
	if m.addr.grouped {
		hk := groupHeaderKey(m.addr.name)
		if f.get(nsMeta, hk) == nil {
			f.put(nsMeta, hk, encodeMetadata(&IndexMetadata{Type: typ}))
		}
	}
	f.touch(m)
}

// setMeta replaces (md != nil) or removes (md == nil) the metadata of addr
// without touching its data.
func (f *Fork) setMeta(addr Address, md *IndexMetadata) {
	mk := addr.metaKey()
	if md == nil {
		f.delete(nsMeta, mk)
	} else {
		f.put(nsMeta, mk, encodeMetadata(md))
	}
	m := newIndexMeta(addr, md)
	if old := f.metas[string(mk)]; old != nil {
		m.mod = old.mod + 1
	}
	f.metas[string(mk)] = m
	f.touched[string(mk)] = addr
}

func (f *Fork) touch(m *indexMeta) {
	m.mod++
	f.touched[string(m.addr.metaKey())] = m.addr
}

// dropIndex removes an index's metadata and schedules its data for deletion.
// Dropping the last member of a group also removes the group header, which
// frees the name for a standalone index.
func (f *Fork) dropIndex(addr Address) {
	m := f.meta(addr)
	if !m.exists {
		return
	}
	f.addGarbage(m.Identifier)
	f.setMeta(addr, nil)
	if addr.grouped {
		var remaining bool
		f.scan(nsMeta, groupMembersPrefix(addr.name), nil, func(_, _ []byte) bool {
			remaining = true
			return false
		})
		if !remaining {
			f.delete(nsMeta, groupHeaderKey(addr.name))
		}
	}
}

// RemoveIndex deletes an index, including all its data. Removing a missing
// index is a no-op.
func (f *Fork) RemoveIndex(addr Address) error {
	b, err := f.bind(addr.name, ReadWrite)
	if err != nil {
		return err
	}
	return safelyCall(func() error {
		addr = addr.withName(b.name)
		if f.live[string(addr.metaKey())] {
			return &ConcurrentMutationError{Addr: addr}
		}
		f.dropIndex(addr)
		return nil
	})
}

// IntoPatch finalizes the fork: prefix clears are resolved against the base
// snapshot into explicit deletes and the overlay is frozen into a Patch.
// The fork cannot be used afterwards.
func (f *Fork) IntoPatch() (*Patch, error) {
	if f.state != forkBuilding {
		return nil, ErrForkClosed
	}
	err := safelyCall(func() error {
		for ns, ov := range f.overlay {
			for _, p := range ov.cleared {
				f.base.scan(ns, p, nil, func(k, _ []byte) bool {
					if _, found := ov.changes[string(k)]; !found {
						ov.changes[string(k)] = change{deleted: true}
					}
					return true
				})
			}
			ov.cleared = nil
			ov.keys = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p := &Patch{
		db:        f.db,
		baseSeq:   f.base.seq,
		changes:   make(map[string]map[string]change, len(f.overlay)),
		touched:   f.touched,
		allocated: f.allocated,
		garbage:   f.garbage,
	}
	for ns, ov := range f.overlay {
		if len(ov.changes) > 0 {
			p.changes[ns] = ov.changes
		}
	}
	f.state = forkFinalized
	f.overlay = nil
	f.metas = nil
	f.base.Release()
	f.db.removeFork(f)
	return p, nil
}

// Discard drops the fork without any effect on the store.
func (f *Fork) Discard() {
	if f.state != forkBuilding {
		return
	}
	f.state = forkDiscarded
	f.overlay = nil
	f.metas = nil
	f.base.Release()
	f.db.removeFork(f)
}

// applyPatch loads a patch's changes into a fresh fork.
func (f *Fork) applyPatch(p *Patch) {
	for ns, changes := range p.changes {
		ov := f.ensureOverlay(ns)
		for k, c := range changes {
			ov.set(k, c)
		}
	}
	for k, addr := range p.touched {
		f.touched[k] = addr
	}
	f.allocated = f.allocated || p.allocated
	f.garbage = f.garbage || p.garbage
}

func (f *Fork) batch() *Batch {
	b := new(Batch)
	for _, ns := range slices.Sorted(maps.Keys(f.overlay)) {
		ov := f.overlay[ns]
		for _, k := range ov.sortedKeys() {
			c := ov.changes[k]
			if c.deleted {
				b.Delete(ns, []byte(k))
			} else {
				b.Put(ns, []byte(k), c.value)
			}
		}
	}
	return b
}
