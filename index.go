package merkledb

import (
	"fmt"
)

// indexBase is the untyped core shared by all index handles. Handle methods
// follow the transaction convention of this package: storage and decoding
// failures panic with a typed error, and DB.Read/DB.Write turn such panics
// into returned errors.
type indexBase struct {
	v        kvView
	fork     *Fork // nil for read-only handles
	meta     *indexMeta
	mk       string
	released bool

	hash    Hash
	hashMod uint64
	hashOK  bool
}

func openIndex(a Access, addr Address, typ IndexType, mode AccessMode) (*indexBase, error) {
	b, err := a.bind(addr.name, mode)
	if err != nil {
		return nil, err
	}
	addr = addr.withName(b.name)

	var ix *indexBase
	err = safelyCall(func() error {
		v := b.view()
		m := v.meta(addr)
		if err := checkIndexType(v, m, typ); err != nil {
			return err
		}
		ix = &indexBase{v: v, meta: m, mk: string(addr.metaKey())}
		if mode == ReadWrite {
			f := b.fork
			if f.live[ix.mk] {
				return &ConcurrentMutationError{Addr: addr}
			}
			if !m.exists {
				f.createIndex(m, typ)
			}
			f.live[ix.mk] = true
			ix.fork = f
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ix, nil
}

// Address returns the physical address of the index.
func (ix *indexBase) Address() Address {
	return ix.meta.addr
}

// IsMutable reports whether the handle can modify the index.
func (ix *indexBase) IsMutable() bool {
	return ix.fork != nil && !ix.released
}

// Release ends the liveness of a mutable handle, so that the index can be
// opened mutably again in the same Fork. The handle must not be used to
// modify the index afterwards.
func (ix *indexBase) Release() {
	if ix.fork != nil && !ix.released {
		delete(ix.fork.live, ix.mk)
	}
	ix.released = true
}

func (ix *indexBase) key(suffix []byte) []byte {
	prefix := ix.meta.prefix
	k := make([]byte, len(prefix)+len(suffix))
	copy(k, prefix)
	copy(k[len(prefix):], suffix)
	return k
}

func (ix *indexBase) get(suffix []byte) []byte {
	if !ix.meta.exists {
		return nil
	}
	return ix.v.get(nsData, ix.key(suffix))
}

// scan visits the index's keys starting with sub, from the key from (both
// relative to the index). Keys passed to fn are relative too.
func (ix *indexBase) scan(sub, from []byte, fn func(k, v []byte) bool) {
	if !ix.meta.exists {
		return
	}
	n := len(ix.meta.prefix)
	var fromKey []byte
	if from != nil {
		fromKey = ix.key(from)
	}
	ix.v.scan(nsData, ix.key(sub), fromKey, func(k, v []byte) bool {
		return fn(k[n:], v)
	})
}

func (ix *indexBase) mutating() {
	if ix.fork == nil {
		panic(indexErrf(ix.meta.addr, nil, ErrReadOnly, ""))
	}
	if ix.released {
		panic(indexErrf(ix.meta.addr, nil, ErrReadOnly, "handle released"))
	}
	ix.fork.touch(ix.meta)
}

func (ix *indexBase) put(suffix, value []byte) {
	ix.fork.put(nsData, ix.key(suffix), value)
}

func (ix *indexBase) del(suffix []byte) {
	ix.fork.delete(nsData, ix.key(suffix))
}

func (ix *indexBase) clearData() {
	ix.fork.clearPrefix(nsData, ix.meta.prefix)
}

func (ix *indexBase) state() []byte {
	return ix.meta.State
}

func (ix *indexBase) setState(state []byte) {
	ix.meta.State = state
	ix.fork.saveMeta(ix.meta)
}

// memoHash caches an object hash until the index is next modified.
func (ix *indexBase) memoHash(compute func() Hash) Hash {
	if ix.hashOK && ix.hashMod == ix.meta.mod {
		return ix.hash
	}
	ix.hash = compute()
	ix.hashMod = ix.meta.mod
	ix.hashOK = true
	return ix.hash
}

func (ix *indexBase) String() string {
	return fmt.Sprintf("%v(%v)", ix.meta.Type, ix.meta.addr)
}

// objectHashOf computes the object hash of any merkelized index straight from
// its stored nodes, without a typed handle.
func objectHashOf(v kvView, m *indexMeta) Hash {
	ix := &indexBase{v: v, meta: m}
	switch m.Type {
	case ProofEntryType:
		return proofEntryHash(ix.get(nil))
	case ProofListType:
		return listObjectHash(listLen(ix), proofListRoot(ix))
	case ProofMapType:
		return mapObjectHash(mapTrie{ix}.rootHash())
	default:
		panic(fmt.Errorf("%v: index type %v has no object hash", m.addr, m.Type))
	}
}
