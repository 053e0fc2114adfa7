package merkledb

import (
	"iter"
)

// Key layout within a map index.
const (
	mapValueTag byte = 0x01 // 0x01 ‖ raw key → value
	mapNodeTag  byte = 0x02 // 0x02 ‖ enc(path) → trie node
	mapRootTag  byte = 0x03 // 0x03 → enc(root path)
)

// ProofMap is a Map whose entries are committed to by a binary Patricia trie
// over the SHA-256 hashes of the encoded keys.
type ProofMap[K, V any] struct {
	*indexBase
	kc Codec[K]
	vc Codec[V]
}

func OpenProofMap[K, V any](a Access, addr Address, kc Codec[K], vc Codec[V]) (*ProofMap[K, V], error) {
	ix, err := openIndex(a, addr, ProofMapType, ReadOnly)
	if err != nil {
		return nil, err
	}
	return &ProofMap[K, V]{ix, kc, vc}, nil
}

func MutableProofMap[K, V any](a Access, addr Address, kc Codec[K], vc Codec[V]) (*ProofMap[K, V], error) {
	ix, err := openIndex(a, addr, ProofMapType, ReadWrite)
	if err != nil {
		return nil, err
	}
	return &ProofMap[K, V]{ix, kc, vc}, nil
}

func (m *ProofMap[K, V]) Get(k K) (V, bool) {
	key := mapKey(m.indexBase, m.kc, k)
	raw := m.get(key)
	if raw == nil {
		var zero V
		return zero, false
	}
	return decodeOrPanic(m.vc, m.Address(), key, raw), true
}

func (m *ProofMap[K, V]) Contains(k K) bool {
	return m.get(mapKey(m.indexBase, m.kc, k)) != nil
}

func (m *ProofMap[K, V]) Put(k K, v V) {
	m.mutating()
	proofMapPut(m.indexBase, encodeOrPanic(m.kc, m.Address(), k), encodeOrPanic(m.vc, m.Address(), v))
}

func (m *ProofMap[K, V]) Remove(k K) {
	m.mutating()
	proofMapRemove(m.indexBase, encodeOrPanic(m.kc, m.Address(), k))
}

func (m *ProofMap[K, V]) Clear() {
	m.mutating()
	m.clearData()
}

func (m *ProofMap[K, V]) All() iter.Seq2[K, V] {
	return mapEntries(m.indexBase, m.kc, m.vc, nil)
}

// From iterates entries with encoded keys at or after k's.
func (m *ProofMap[K, V]) From(k K) iter.Seq2[K, V] {
	return mapEntries(m.indexBase, m.kc, m.vc, mapKey(m.indexBase, m.kc, k))
}

func (m *ProofMap[K, V]) Keys() iter.Seq[K] {
	return mapKeys(m.indexBase, m.kc)
}

func (m *ProofMap[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range m.All() {
			if !yield(v) {
				return
			}
		}
	}
}

// MerkleRoot is the hash of the trie's root node, ZeroHash for an empty map.
// Raw roots of empty maps and lists are both ZeroHash; ObjectHash is the
// map's content hash and tells them apart.
func (m *ProofMap[K, V]) MerkleRoot() Hash {
	return mapTrie{m.indexBase}.rootHash()
}

// ObjectHash is H(0x03 ‖ MerkleRoot), the hash proofs are verified against
// and the state hash aggregates.
func (m *ProofMap[K, V]) ObjectHash() Hash {
	return m.memoHash(func() Hash {
		return mapObjectHash(m.MerkleRoot())
	})
}

// GetProof proves the presence or absence of k.
func (m *ProofMap[K, V]) GetProof(k K) *MapProof {
	return m.GetMultiproof(k)
}

// GetMultiproof proves the presence or absence of every key in one cut of
// the trie.
func (m *ProofMap[K, V]) GetMultiproof(keys ...K) *MapProof {
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = encodeOrPanic(m.kc, m.Address(), k)
	}
	return mapTrie{m.indexBase}.proof(raw)
}

func proofMapPut(ix *indexBase, key, value []byte) {
	ix.put(append([]byte{mapValueTag}, key...), value)
	mapTrie{ix}.insert(KeyPath(key), BlobHash(value))
}

func proofMapRemove(ix *indexBase, key []byte) {
	vk := append([]byte{mapValueTag}, key...)
	if ix.get(vk) == nil {
		return
	}
	ix.del(vk)
	mapTrie{ix}.remove(KeyPath(key))
}

// mapNode is a persisted trie node. A leaf carries the hash of its value; a
// branch carries the paths and hashes of its two children.
type mapNode struct {
	leaf     bool
	hash     Hash
	children [2]mapChild
}

type mapChild struct {
	path ProofPath
	hash Hash
}

func leafNode(h Hash) mapNode {
	return mapNode{leaf: true, hash: h}
}

// nodeHash is the hash a parent records for this node.
func (n *mapNode) nodeHash() Hash {
	if n.leaf {
		return n.hash
	}
	l, r := n.children[0], n.children[1]
	return mapBranchHash(l.hash, r.hash, l.path, r.path)
}

const (
	mapLeafSize   = 1 + len(Hash{})
	mapBranchSize = 1 + 2*(proofPathSize+len(Hash{}))
)

func (n *mapNode) encode() []byte {
	if n.leaf {
		buf := make([]byte, mapLeafSize)
		buf[0] = 0
		copy(buf[1:], n.hash[:])
		return buf
	}
	buf := make([]byte, mapBranchSize)
	buf[0] = 1
	off := 1
	for _, c := range n.children {
		c.path.put(buf[off:])
		off += proofPathSize
		off += copy(buf[off:], c.hash[:])
	}
	return buf
}

func decodeMapNode(raw []byte) (mapNode, error) {
	var n mapNode
	switch {
	case len(raw) == mapLeafSize && raw[0] == 0:
		n.leaf = true
		copy(n.hash[:], raw[1:])
		return n, nil
	case len(raw) == mapBranchSize && raw[0] == 1:
		off := 1
		for i := range n.children {
			p, err := decodeProofPath(raw[off : off+proofPathSize])
			if err != nil {
				return n, decodeErrf(raw, off, err, "invalid child path")
			}
			off += proofPathSize
			n.children[i].path = p
			off += copy(n.children[i].hash[:], raw[off:])
		}
		return n, nil
	default:
		return n, decodeErrf(raw, 0, nil, "invalid trie node")
	}
}

// mapTrie implements the Patricia trie over a map index's storage.
type mapTrie struct {
	ix *indexBase
}

func nodeKey(p ProofPath) []byte {
	return append([]byte{mapNodeTag}, p.Bytes()...)
}

func (t mapTrie) root() (ProofPath, bool) {
	raw := t.ix.get([]byte{mapRootTag})
	if raw == nil {
		return ProofPath{}, false
	}
	p, err := decodeProofPath(raw)
	if err != nil {
		panic(indexErrf(t.ix.meta.addr, []byte{mapRootTag}, err, "root path"))
	}
	return p, true
}

func (t mapTrie) setRoot(p ProofPath) {
	t.ix.put([]byte{mapRootTag}, p.Bytes())
}

func (t mapTrie) node(p ProofPath) mapNode {
	k := nodeKey(p)
	raw := t.ix.get(k)
	if raw == nil {
		panic(indexErrf(t.ix.meta.addr, k, nil, "missing trie node %v", p))
	}
	n, err := decodeMapNode(raw)
	if err != nil {
		panic(indexErrf(t.ix.meta.addr, k, err, "trie node"))
	}
	return n
}

func (t mapTrie) putNode(p ProofPath, n mapNode) {
	t.ix.put(nodeKey(p), n.encode())
}

func (t mapTrie) delNode(p ProofPath) {
	t.ix.del(nodeKey(p))
}

func (t mapTrie) rootHash() Hash {
	p, ok := t.root()
	if !ok {
		return ZeroHash
	}
	n := t.node(p)
	if n.leaf {
		return mapSingleRootHash(p, n.hash)
	}
	return n.nodeHash()
}

func (t mapTrie) insert(key ProofPath, leaf Hash) {
	rp, ok := t.root()
	if !ok {
		t.putNode(key, leafNode(leaf))
		t.setRoot(key)
		return
	}
	rn := t.node(rp)
	np, _ := t.insertAt(rp, rn.nodeHash(), key, leaf)
	if np != rp {
		t.setRoot(np)
	}
}

// insertAt inserts key into the subtree whose top node is at p with hash ph,
// and returns the path and hash of the subtree's new top node.
func (t mapTrie) insertAt(p ProofPath, ph Hash, key ProofPath, leaf Hash) (ProofPath, Hash) {
	c := p.CommonPrefixLen(key)
	if c == p.Len() {
		if p.IsLeaf() {
			t.putNode(p, leafNode(leaf))
			return p, leaf
		}
		n := t.node(p)
		bit := key.Bit(c)
		child := n.children[bit]
		cp, ch := t.insertAt(child.path, child.hash, key, leaf)
		n.children[bit] = mapChild{cp, ch}
		t.putNode(p, n)
		return p, n.nodeHash()
	}

	t.putNode(key, leafNode(leaf))
	var br mapNode
	br.children[p.Bit(c)] = mapChild{p, ph}
	br.children[key.Bit(c)] = mapChild{key, leaf}
	bp := key.Prefix(c)
	t.putNode(bp, br)
	return bp, br.nodeHash()
}

func (t mapTrie) remove(key ProofPath) {
	rp, ok := t.root()
	if !ok {
		return
	}
	if rp.IsLeaf() {
		if rp == key {
			t.delNode(rp)
			t.ix.del([]byte{mapRootTag})
		}
		return
	}
	if !rp.IsPrefixOf(key) {
		return
	}
	found, np, _ := t.removeAt(rp, key)
	if found && np != rp {
		t.setRoot(np)
	}
}

// removeAt removes key from the branch at p. When the removed leaf was a
// direct child, the branch collapses into its other child.
func (t mapTrie) removeAt(p, key ProofPath) (bool, ProofPath, Hash) {
	n := t.node(p)
	bit := key.Bit(p.Len())
	child := n.children[bit]
	if child.path.IsLeaf() {
		if child.path != key {
			return false, p, Hash{}
		}
		t.delNode(key)
		t.delNode(p)
		sib := n.children[1-bit]
		return true, sib.path, sib.hash
	}
	if !child.path.IsPrefixOf(key) {
		return false, p, Hash{}
	}
	found, cp, ch := t.removeAt(child.path, key)
	if !found {
		return false, p, Hash{}
	}
	n.children[bit] = mapChild{cp, ch}
	t.putNode(p, n)
	return true, p, n.nodeHash()
}

type proofRequest struct {
	key  []byte
	path ProofPath
}

func (t mapTrie) proof(keys [][]byte) *MapProof {
	proof := &MapProof{}
	seen := make(map[string]bool, len(keys))
	var reqs []proofRequest
	for _, k := range keys {
		if seen[string(k)] {
			continue
		}
		seen[string(k)] = true
		reqs = append(reqs, proofRequest{k, KeyPath(k)})
	}

	found := make(map[string]bool, len(reqs))
	if rp, ok := t.root(); ok {
		if rp.IsLeaf() {
			for _, r := range reqs {
				if r.path == rp {
					t.proveEntry(proof, r.key, found)
				}
			}
			if len(proof.Entries) == 0 {
				proof.Nodes = append(proof.Nodes, MapProofNode{Path: rp, Hash: t.node(rp).hash})
			}
		} else {
			t.cut(rp, reqs, proof, found)
		}
	}
	for _, r := range reqs {
		if !found[string(r.key)] {
			proof.Missing = append(proof.Missing, r.key)
		}
	}
	return proof
}

func (t mapTrie) proveEntry(proof *MapProof, key []byte, found map[string]bool) {
	value := t.ix.get(append([]byte{mapValueTag}, key...))
	if value == nil {
		panic(indexErrf(t.ix.meta.addr, key, nil, "trie leaf without value"))
	}
	proof.Entries = append(proof.Entries, MapProofEntry{Key: key, Value: value})
	found[string(key)] = true
}

// cut expands the branch at bp: children covering requested keys are
// descended into, the others become proof nodes.
func (t mapTrie) cut(bp ProofPath, reqs []proofRequest, proof *MapProof, found map[string]bool) {
	n := t.node(bp)
	for _, child := range n.children {
		var sub []proofRequest
		for _, r := range reqs {
			if child.path.IsPrefixOf(r.path) {
				sub = append(sub, r)
			}
		}
		switch {
		case len(sub) == 0:
			proof.Nodes = append(proof.Nodes, MapProofNode{Path: child.path, Hash: child.hash})
		case child.path.IsLeaf():
			t.proveEntry(proof, sub[0].key, found)
		default:
			t.cut(child.path, sub, proof, found)
		}
	}
}
