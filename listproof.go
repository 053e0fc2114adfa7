package merkledb

import (
	"slices"
)

// ListProof proves a contiguous range of ProofList values (or the absence of
// an index) against the list's object hash.
type ListProof struct {
	Length  uint64           `msgpack:"l" json:"length"`
	Entries []ListProofEntry `msgpack:"e,omitempty" json:"entries,omitempty"`
	Hashes  []ListProofHash  `msgpack:"h,omitempty" json:"hashes,omitempty"`
}

// ListProofEntry is a proven value in its canonical encoding.
type ListProofEntry struct {
	Index uint64 `msgpack:"i" json:"index"`
	Value []byte `msgpack:"v" json:"value"`
}

// ListProofHash is a tree node the verifier cannot derive from the entries.
type ListProofHash struct {
	Height uint8  `msgpack:"ht" json:"height"`
	Index  uint64 `msgpack:"i" json:"index"`
	Hash   Hash   `msgpack:"h" json:"hash"`
}

// CheckedListProof is the outcome of a structurally valid ListProof.
type CheckedListProof struct {
	Length     uint64
	Entries    []ListProofEntry
	MerkleRoot Hash
	ObjectHash Hash
}

// Verify checks that the proof matches the trusted object hash.
func (c *CheckedListProof) Verify(trusted Hash) error {
	if c.ObjectHash != trusted {
		return proofErrf("object hash %v does not match trusted %v", c.ObjectHash, trusted)
	}
	return nil
}

// Lookup returns the proven raw value at index i.
func (c *CheckedListProof) Lookup(i uint64) ([]byte, bool) {
	for _, e := range c.Entries {
		if e.Index == i {
			return e.Value, true
		}
	}
	return nil, false
}

// Check recomputes the root from the proof. It rejects entries out of range,
// duplicates, hashes that are missing, and hashes that are redundant because
// the verifier can compute them.
func (p *ListProof) Check() (*CheckedListProof, error) {
	n := p.Length
	c := &CheckedListProof{Length: n, Entries: slices.Clone(p.Entries)}
	slices.SortFunc(c.Entries, func(a, b ListProofEntry) int {
		switch {
		case a.Index < b.Index:
			return -1
		case a.Index > b.Index:
			return 1
		default:
			return 0
		}
	})

	if len(p.Entries) == 0 {
		switch {
		case n == 0 && len(p.Hashes) != 0:
			return nil, proofErrf("empty list proof carries %d hashes", len(p.Hashes))
		case n == 0:
			c.MerkleRoot = ZeroHash
		case len(p.Hashes) != 1:
			return nil, proofErrf("absence proof must carry exactly the root, got %d hashes", len(p.Hashes))
		case p.Hashes[0].Height != listHeight(n) || p.Hashes[0].Index != 0:
			return nil, proofErrf("absence proof hash at (%d, %d) is not the root", p.Hashes[0].Height, p.Hashes[0].Index)
		default:
			c.MerkleRoot = p.Hashes[0].Hash
		}
		c.ObjectHash = listObjectHash(n, c.MerkleRoot)
		return c, nil
	}
	if n == 0 {
		return nil, proofErrf("entries in a proof of an empty list")
	}

	top := listHeight(n)
	known := make(map[uint64]Hash, len(p.Entries))
	for _, e := range p.Entries {
		if e.Index >= n {
			return nil, proofErrf("entry %d out of range, length %d", e.Index, n)
		}
		if _, dup := known[e.Index]; dup {
			return nil, proofErrf("duplicate entry %d", e.Index)
		}
		known[e.Index] = BlobHash(e.Value)
	}
	provided := make(map[uint8]map[uint64]Hash)
	for _, h := range p.Hashes {
		if h.Height >= top {
			return nil, proofErrf("hash at height %d is redundant in a tree of height %d", h.Height, top)
		}
		if h.Index >= levelLen(n, h.Height) {
			return nil, proofErrf("hash (%d, %d) out of range", h.Height, h.Index)
		}
		lvl := provided[h.Height]
		if lvl == nil {
			lvl = make(map[uint64]Hash)
			provided[h.Height] = lvl
		}
		if _, dup := lvl[h.Index]; dup {
			return nil, proofErrf("duplicate hash (%d, %d)", h.Height, h.Index)
		}
		lvl[h.Index] = h.Hash
	}

	for h := uint8(0); h < top; h++ {
		count := levelLen(n, h)
		prov := provided[h]
		for i := range prov {
			if _, ok := known[i]; ok {
				return nil, proofErrf("hash (%d, %d) is redundant", h, i)
			}
		}
		used := 0
		next := make(map[uint64]Hash, len(known)/2+1)
		for i := range known {
			parent := i / 2
			if _, done := next[parent]; done {
				continue
			}
			left, right := 2*parent, 2*parent+1
			if right >= count {
				next[parent] = known[left]
				continue
			}
			lh, lok := known[left]
			if !lok {
				lh, lok = prov[left]
				if lok {
					used++
				}
			}
			rh, rok := known[right]
			if !rok {
				rh, rok = prov[right]
				if rok {
					used++
				}
			}
			if !lok || !rok {
				return nil, proofErrf("missing hash at height %d for parent %d", h, parent)
			}
			next[parent] = listBranchHash(lh, rh)
		}
		if used != len(prov) {
			return nil, proofErrf("%d hashes at height %d are redundant", len(prov)-used, h)
		}
		known = next
	}

	c.MerkleRoot = known[0]
	c.ObjectHash = listObjectHash(n, c.MerkleRoot)
	return c, nil
}
