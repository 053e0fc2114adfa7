package merkledb

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpIndexHeaders = DumpFlags(1 << iota)
	DumpStats
	DumpHashes
	DumpRows
	DumpSystem

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders every index of the snapshot for debugging. Reserved indexes
// are included only with DumpSystem.
func (s *Snapshot) Dump(f DumpFlags) (string, error) {
	var buf strings.Builder
	err := safelyCall(func() error {
		if f.Contains(DumpSystem) {
			fmt.Fprintln(&buf, dumpSep1)
			fmt.Fprintf(&buf, "%s (seq %d)\n", nsSystem, s.seq)
			s.scan(nsSystem, nil, nil, func(k, v []byte) bool {
				fmt.Fprintf(&buf, "%s = %s\n", k, hexstr(v))
				return true
			})
		}
		for _, info := range listIndexes(s) {
			if isReservedName(info.Addr.name) && !f.Contains(DumpSystem) {
				continue
			}
			s.dumpIndex(&buf, f, s.meta(info.Addr))
		}
		return nil
	})
	return buf.String(), err
}

func (s *Snapshot) dumpIndex(w *strings.Builder, f DumpFlags, m *indexMeta) {
	prefix := m.addr.String()
	st := indexStats(s, m)

	if f.Contains(DumpIndexHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s: %v #%d (%d values)\n", prefix, m.Type, m.Identifier, st.Values)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: keys = %d, bytes = %d\n", prefix, st.Keys, st.Bytes)
	}
	if f.Contains(DumpHashes) && m.Type.IsMerkelized() {
		fmt.Fprintf(w, "%s.hash = %v\n", prefix, objectHashOf(s, m))
	}
	if f.Contains(DumpRows) {
		fmt.Fprintln(w, dumpSep2)
		ix := &indexBase{v: s, meta: m}
		var pos int
		ix.scan(nil, nil, func(k, v []byte) bool {
			pos++
			fmt.Fprintf(w, "%s.%d: %s => %s\n", prefix, pos, hexstr(k), hexstr(v))
			return true
		})
	}
}
