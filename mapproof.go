package merkledb

import (
	"bytes"
	"slices"
)

// MapProof proves the presence or absence of keys in a ProofMap. Entries and
// Nodes together form a cut of the trie: every leaf belongs to exactly one
// of them.
type MapProof struct {
	Entries []MapProofEntry `msgpack:"e,omitempty" json:"entries,omitempty"`
	Missing [][]byte        `msgpack:"m,omitempty" json:"missing,omitempty"`
	Nodes   []MapProofNode  `msgpack:"n,omitempty" json:"nodes,omitempty"`
}

// MapProofEntry is a proven key with its value, both in encoded form.
type MapProofEntry struct {
	Key   []byte `msgpack:"k" json:"key"`
	Value []byte `msgpack:"v" json:"value"`
}

// MapProofNode is a subtree the verifier only needs the hash of.
type MapProofNode struct {
	Path ProofPath `msgpack:"p" json:"path"`
	Hash Hash      `msgpack:"h" json:"hash"`
}

// CheckedMapProof is the outcome of a structurally valid MapProof.
type CheckedMapProof struct {
	Entries    []MapProofEntry
	Missing    [][]byte
	MerkleRoot Hash
	ObjectHash Hash
}

func (c *CheckedMapProof) Verify(trusted Hash) error {
	if c.ObjectHash != trusted {
		return proofErrf("object hash %v does not match trusted %v", c.ObjectHash, trusted)
	}
	return nil
}

// Lookup returns the proven value of key. The second result is false when
// the key was proven absent or not covered by the proof; the third tells the
// two apart.
func (c *CheckedMapProof) Lookup(key []byte) (value []byte, present bool, covered bool) {
	for _, e := range c.Entries {
		if bytes.Equal(e.Key, key) {
			return e.Value, true, true
		}
	}
	for _, k := range c.Missing {
		if bytes.Equal(k, key) {
			return nil, false, true
		}
	}
	return nil, false, false
}

type cutItem struct {
	path ProofPath
	hash Hash
}

func sortCut(items []cutItem) error {
	slices.SortFunc(items, func(a, b cutItem) int { return a.path.Compare(b.path) })
	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1].path, items[i].path
		if prev == cur {
			return proofErrf("duplicate path %v", cur)
		}
		if prev.IsPrefixOf(cur) {
			return proofErrf("path %v is a prefix of %v", prev, cur)
		}
	}
	return nil
}

// foldCut computes the root node hash of a sorted, prefix-free cut.
func foldCut(items []cutItem) (Hash, error) {
	switch len(items) {
	case 0:
		return ZeroHash, nil
	case 1:
		if !items[0].path.IsLeaf() {
			return Hash{}, proofErrf("lone node %v is not a leaf", items[0].path)
		}
		return mapSingleRootHash(items[0].path, items[0].hash), nil
	default:
		top := foldBranch(items)
		return top.hash, nil
	}
}

func foldBranch(items []cutItem) cutItem {
	if len(items) == 1 {
		return items[0]
	}
	first, last := items[0].path, items[len(items)-1].path
	c := first.CommonPrefixLen(last)
	split := 1
	for split < len(items) && items[split].path.Bit(c) == 0 {
		split++
	}
	l, r := foldBranch(items[:split]), foldBranch(items[split:])
	return cutItem{first.Prefix(c), mapBranchHash(l.hash, r.hash, l.path, r.path)}
}

// Check validates the structure of the proof and recomputes the root.
func (p *MapProof) Check() (*CheckedMapProof, error) {
	items := make([]cutItem, 0, len(p.Entries)+len(p.Nodes))
	for _, n := range p.Nodes {
		items = append(items, cutItem{n.Path, n.Hash})
	}
	for _, e := range p.Entries {
		items = append(items, cutItem{KeyPath(e.Key), BlobHash(e.Value)})
	}
	if err := sortCut(items); err != nil {
		return nil, err
	}
	for _, k := range p.Missing {
		mp := KeyPath(k)
		for _, it := range items {
			if it.path.IsPrefixOf(mp) {
				return nil, proofErrf("missing key %s is covered by %v", hexstr(k), it.path)
			}
		}
	}
	root, err := foldCut(items)
	if err != nil {
		return nil, err
	}
	return &CheckedMapProof{
		Entries:    slices.Clone(p.Entries),
		Missing:    slices.Clone(p.Missing),
		MerkleRoot: root,
		ObjectHash: mapObjectHash(root),
	}, nil
}

type (
	mapProofWire  MapProof
	listProofWire ListProof
)

func (p *MapProof) MarshalBinary() ([]byte, error) {
	return msgpackEncode((*mapProofWire)(p)), nil
}

func (p *MapProof) UnmarshalBinary(data []byte) error {
	return msgpackDecode(data, (*mapProofWire)(p))
}

func (p *ListProof) MarshalBinary() ([]byte, error) {
	return msgpackEncode((*listProofWire)(p)), nil
}

func (p *ListProof) UnmarshalBinary(data []byte) error {
	return msgpackDecode(data, (*listProofWire)(p))
}

// AggregateHash is the object hash of a ProofMap holding the given name to
// hash pairs, with each hash stored as its raw 32 bytes. It does not depend
// on the order the pairs were inserted in.
func AggregateHash(entries map[string]Hash) Hash {
	items := make([]cutItem, 0, len(entries))
	for name, h := range entries {
		items = append(items, cutItem{KeyPath([]byte(name)), BlobHash(h[:])})
	}
	slices.SortFunc(items, func(a, b cutItem) int { return a.path.Compare(b.path) })
	root := must(foldCut(items))
	return mapObjectHash(root)
}
