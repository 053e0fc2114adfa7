package merkledb

import (
	"iter"
	"math/bits"
)

// ProofList is a List backed by a binary Merkle tree over the blob hashes of
// its values. Level 0 holds leaf hashes; each upper level pairs adjacent
// nodes, and an odd last node is carried up unchanged.
type ProofList[V any] struct {
	*indexBase
	vc Codec[V]
}

func OpenProofList[V any](a Access, addr Address, vc Codec[V]) (*ProofList[V], error) {
	ix, err := openIndex(a, addr, ProofListType, ReadOnly)
	if err != nil {
		return nil, err
	}
	return &ProofList[V]{ix, vc}, nil
}

func MutableProofList[V any](a Access, addr Address, vc Codec[V]) (*ProofList[V], error) {
	ix, err := openIndex(a, addr, ProofListType, ReadWrite)
	if err != nil {
		return nil, err
	}
	return &ProofList[V]{ix, vc}, nil
}

// listHeight is the level of the root of a tree with n leaves.
func listHeight(n uint64) uint8 {
	if n <= 1 {
		return 0
	}
	return uint8(bits.Len64(n - 1))
}

// levelLen is the number of nodes at height h of a tree with n leaves.
func levelLen(n uint64, h uint8) uint64 {
	if n == 0 {
		return 0
	}
	return (n-1)>>h + 1
}

func listNode(ix *indexBase, h uint8, i uint64) Hash {
	raw := ix.get(listNodeKey(h, i))
	var hash Hash
	if len(raw) != len(hash) {
		panic(indexErrf(ix.meta.addr, listNodeKey(h, i), nil, "missing or corrupted list node"))
	}
	copy(hash[:], raw)
	return hash
}

func proofListRoot(ix *indexBase) Hash {
	n := listLen(ix)
	if n == 0 {
		return ZeroHash
	}
	return listNode(ix, listHeight(n), 0)
}

// updateListPath recomputes the ancestors of leaf i in a tree of n leaves.
func updateListPath(ix *indexBase, i, n uint64) {
	top := listHeight(n)
	for h := uint8(1); h <= top; h++ {
		i >>= 1
		left := listNode(ix, h-1, 2*i)
		hash := left
		if 2*i+1 < levelLen(n, h-1) {
			hash = listBranchHash(left, listNode(ix, h-1, 2*i+1))
		}
		ix.put(listNodeKey(h, i), hash[:])
	}
}

func (l *ProofList[V]) Len() uint64 {
	return listLen(l.indexBase)
}

func (l *ProofList[V]) IsEmpty() bool {
	return l.Len() == 0
}

func (l *ProofList[V]) Get(i uint64) (V, bool) {
	raw := l.get(listValueKey(i))
	if raw == nil {
		var zero V
		return zero, false
	}
	return decodeOrPanic(l.vc, l.Address(), listValueKey(i), raw), true
}

func (l *ProofList[V]) Last() (V, bool) {
	n := l.Len()
	if n == 0 {
		var zero V
		return zero, false
	}
	return l.Get(n - 1)
}

func (l *ProofList[V]) setLeaf(i uint64, raw []byte) {
	leaf := BlobHash(raw)
	l.put(listValueKey(i), raw)
	l.put(listNodeKey(0, i), leaf[:])
}

func (l *ProofList[V]) Push(v V) {
	l.mutating()
	n := l.Len()
	l.setLeaf(n, encodeOrPanic(l.vc, l.Address(), v))
	setListLen(l.indexBase, n+1)
	updateListPath(l.indexBase, n, n+1)
}

func (l *ProofList[V]) Extend(vs ...V) {
	for _, v := range vs {
		l.Push(v)
	}
}

// Set replaces the value at i. It panics with ErrIndexOutOfRange if i >= Len.
func (l *ProofList[V]) Set(i uint64, v V) {
	l.mutating()
	n := l.Len()
	checkListIndex(l.indexBase, i, n)
	l.setLeaf(i, encodeOrPanic(l.vc, l.Address(), v))
	updateListPath(l.indexBase, i, n)
}

func (l *ProofList[V]) Pop() (V, bool) {
	v, ok := l.Last()
	if ok {
		l.Truncate(l.Len() - 1)
	}
	return v, ok
}

// Truncate shortens the list to n values. Longer lengths are a no-op.
func (l *ProofList[V]) Truncate(n uint64) {
	l.mutating()
	old := l.Len()
	if n >= old {
		return
	}
	if n == 0 {
		l.Clear()
		return
	}
	for i := n; i < old; i++ {
		l.del(listValueKey(i))
	}
	newTop := listHeight(n)
	for h := uint8(0); h <= listHeight(old); h++ {
		var keep uint64
		if h <= newTop {
			keep = levelLen(n, h)
		}
		for i := keep; i < levelLen(old, h); i++ {
			l.del(listNodeKey(h, i))
		}
	}
	setListLen(l.indexBase, n)
	updateListPath(l.indexBase, n-1, n)
}

func (l *ProofList[V]) Clear() {
	l.mutating()
	l.clearData()
	setListLen(l.indexBase, 0)
}

func (l *ProofList[V]) All() iter.Seq2[uint64, V] {
	return listValues(l.indexBase, l.vc, 0)
}

func (l *ProofList[V]) From(i uint64) iter.Seq2[uint64, V] {
	return listValues(l.indexBase, l.vc, i)
}

// MerkleRoot is the root of the hash tree, ZeroHash for an empty list. Raw
// roots of empty lists and maps are both ZeroHash; ObjectHash is the
// list's content hash and commits to its type and length.
func (l *ProofList[V]) MerkleRoot() Hash {
	return proofListRoot(l.indexBase)
}

// ObjectHash is H(0x02 ‖ u64le(Len) ‖ MerkleRoot), the hash proofs are
// verified against and the state hash aggregates.
func (l *ProofList[V]) ObjectHash() Hash {
	return l.memoHash(func() Hash {
		return listObjectHash(l.Len(), l.MerkleRoot())
	})
}

// GetProof proves the value at index i, or its absence when i >= Len.
func (l *ProofList[V]) GetProof(i uint64) *ListProof {
	return l.GetRangeProof(i, i+1)
}

// GetRangeProof proves the values in [from, to), clipped to the list length.
// A range starting at or past the end yields an absence proof carrying only
// the root.
func (l *ProofList[V]) GetRangeProof(from, to uint64) *ListProof {
	n := l.Len()
	p := &ListProof{Length: n}
	if to > n {
		to = n
	}
	if from >= to {
		if n > 0 {
			p.Hashes = []ListProofHash{{Height: listHeight(n), Index: 0, Hash: l.MerkleRoot()}}
		}
		return p
	}
	for i := from; i < to; i++ {
		p.Entries = append(p.Entries, ListProofEntry{Index: i, Value: l.get(listValueKey(i))})
	}
	lo, hi := from, to
	for h := uint8(0); h < listHeight(n); h++ {
		if lo%2 == 1 {
			p.Hashes = append(p.Hashes, ListProofHash{Height: h, Index: lo - 1, Hash: listNode(l.indexBase, h, lo-1)})
		}
		if hi%2 == 1 && hi < levelLen(n, h) {
			p.Hashes = append(p.Hashes, ListProofHash{Height: h, Index: hi, Hash: listNode(l.indexBase, h, hi)})
		}
		lo, hi = lo/2, (hi+1)/2
	}
	return p
}
