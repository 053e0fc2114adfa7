package merkledb

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Reserved indexes maintained by merges.
const (
	aggregatorName  = "__state_aggregator__"
	groupHashesName = "__group_hashes__"
)

// isAggregated reports whether indexes under name contribute to the state
// hash.
func isAggregated(name string) bool {
	return !isReservedName(name) && !isMigrationName(name)
}

// updateAggregates refreshes the aggregator entries of every touched index.
// It runs inside the merge guard over a fork that holds the patch on top of
// the latest committed state.
func updateAggregates(f *Fork, touched map[string]Address) {
	sys := systemAccess{snap: f.base, fork: f}
	agg := must(openIndex(sys, Addr(aggregatorName), ProofMapType, ReadWrite))
	defer agg.Release()

	groups := make(map[string]bool)
	for _, mk := range slices.Sorted(maps.Keys(touched)) {
		addr := touched[mk]
		if !isAggregated(addr.name) {
			continue
		}
		m := f.meta(addr)
		target, key := agg, []byte(addr.name)
		if addr.grouped {
			target = must(openIndex(sys, GroupAddr(groupHashesName, []byte(addr.name)), ProofMapType, ReadWrite))
			key = addr.id
			groups[addr.name] = true
		}
		target.mutating()
		if m.exists && m.Type.IsMerkelized() {
			h := objectHashOf(f, m)
			proofMapPut(target, key, h[:])
		} else {
			proofMapRemove(target, key)
		}
		if target != agg {
			target.Release()
		}
	}

	agg.mutating()
	for _, name := range slices.Sorted(maps.Keys(groups)) {
		gh := must(openIndex(sys, GroupAddr(groupHashesName, []byte(name)), ProofMapType, ReadOnly))
		root := mapTrie{gh}.rootHash()
		if root == ZeroHash {
			proofMapRemove(agg, []byte(name))
		} else {
			h := mapObjectHash(root)
			proofMapPut(agg, []byte(name), h[:])
		}
	}
}

func aggregatorHash(v kvView) Hash {
	m := v.meta(Addr(aggregatorName))
	if !m.exists {
		return EmptyMapHash
	}
	return objectHashOf(v, m)
}

// StateHash is the object hash of the state aggregator: a commitment to the
// object hashes of every aggregated index in this snapshot.
func (s *Snapshot) StateHash() (h Hash, err error) {
	err = safelyCall(func() error {
		h = aggregatorHash(s)
		return nil
	})
	return
}

// StateProof proves the aggregated hashes of the given top-level index or
// group names against StateHash.
func (s *Snapshot) StateProof(names ...string) (proof *MapProof, err error) {
	err = safelyCall(func() error {
		keys := make([][]byte, len(names))
		for i, name := range names {
			keys[i] = []byte(name)
		}
		ix := &indexBase{v: s, meta: s.meta(Addr(aggregatorName))}
		proof = mapTrie{ix}.proof(keys)
		return nil
	})
	return
}

// rawView returns the unrestricted store behind an access.
func rawView(a Access) kvView {
	switch a := a.(type) {
	case *Snapshot:
		return a
	case *Fork:
		return a
	case *Restricted:
		return rawView(a.base)
	case *Prefixed:
		return rawView(a.base)
	case systemAccess:
		if a.fork != nil {
			return a.fork
		}
		return a.snap
	case *migrationView:
		if a.fork != nil {
			return a.fork
		}
		return a.snap
	default:
		panic("merkledb: unsupported access type")
	}
}

// collectHashes computes the aggregator entries from metadata. With
// migration set, only migration indexes are considered and their names are
// reported without the ^ marker.
func collectHashes(v kvView, include func(name string) bool, migration bool) map[string]Hash {
	entries := make(map[string]Hash)
	groups := make(map[string]map[string]Hash)
	for _, info := range listIndexes(v) {
		name := info.Addr.name
		if isReservedName(name) || isMigrationName(name) != migration {
			continue
		}
		name = strings.TrimPrefix(name, migrationPrefix)
		if !include(name) || !info.Type.IsMerkelized() {
			continue
		}
		h := objectHashOf(v, v.meta(info.Addr))
		if info.Addr.grouped {
			if groups[name] == nil {
				groups[name] = make(map[string]Hash)
			}
			groups[name][string(info.Addr.id)] = h
		} else {
			entries[name] = h
		}
	}
	for name, members := range groups {
		entries[name] = AggregateHash(members)
	}
	return entries
}

func namespaceHash(v kvView, ns string, migration bool) Hash {
	return AggregateHash(collectHashes(v, func(name string) bool {
		return nameInNamespace(name, ns)
	}, migration))
}

// RecomputeStateHash rebuilds the state hash from scratch by hashing every
// aggregated index. It must always equal the stored StateHash.
func RecomputeStateHash(a Access) (h Hash, err error) {
	err = safelyCall(func() error {
		h = AggregateHash(collectHashes(rawView(a), func(string) bool { return true }, false))
		return nil
	})
	return
}

// NamespaceHash aggregates the indexes named ns or nested under ns.
func NamespaceHash(a Access, ns string) (h Hash, err error) {
	err = safelyCall(func() error {
		h = namespaceHash(rawView(a), ns, false)
		return nil
	})
	return
}

// ObjectHash returns the object hash of the Merkle-backed index at addr,
// honoring the access's capabilities.
func ObjectHash(a Access, addr Address) (h Hash, err error) {
	b, err := a.bind(addr.name, ReadOnly)
	if err != nil {
		return ZeroHash, err
	}
	err = safelyCall(func() error {
		v := b.view()
		m := v.meta(addr.withName(b.name))
		if !m.exists {
			return indexErrf(addr, nil, nil, "index does not exist")
		}
		if !m.Type.IsMerkelized() {
			return &TypeMismatchError{Addr: addr, Actual: m.Type, Msg: fmt.Sprintf("%v has no object hash", m.Type)}
		}
		h = objectHashOf(v, m)
		return nil
	})
	return
}
