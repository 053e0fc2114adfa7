package merkledb

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"
	"strings"

	"github.com/andreyvit/merkledb/crypto"
)

const (
	// keyPathBits is the length of a leaf path, i.e. of a hashed key.
	keyPathBits = 8 * crypto.HashSize

	proofPathSize = 2 + crypto.HashSize
)

// ProofPath is a bit string of up to 256 bits addressing a ProofMap trie
// node. Bits are numbered from the most significant bit of the first byte,
// so in-order traversal of the trie visits keys in the byte order of their
// hashes. Bits beyond Len are always zero.
type ProofPath struct {
	bits [crypto.HashSize]byte
	n    uint16
}

// KeyPath returns the leaf path of a raw map key.
func KeyPath(key []byte) ProofPath {
	return ProofPath{bits: crypto.HashBytes(key), n: keyPathBits}
}

func hashPath(h Hash) ProofPath {
	return ProofPath{bits: h, n: keyPathBits}
}

func (p ProofPath) Len() int {
	return int(p.n)
}

func (p ProofPath) IsLeaf() bool {
	return p.n == keyPathBits
}

// Bit returns the i-th bit, 0 or 1.
func (p ProofPath) Bit(i int) byte {
	return (p.bits[i/8] >> (7 - i%8)) & 1
}

// Prefix returns the first n bits of the path.
func (p ProofPath) Prefix(n int) ProofPath {
	if n >= int(p.n) {
		return p
	}
	r := ProofPath{n: uint16(n)}
	full := n / 8
	copy(r.bits[:full], p.bits[:full])
	if rem := n % 8; rem != 0 {
		r.bits[full] = p.bits[full] & ^byte(0xFF>>rem)
	}
	return r
}

// CommonPrefixLen returns the number of leading bits shared by both paths.
func (p ProofPath) CommonPrefixLen(q ProofPath) int {
	limit := min(int(p.n), int(q.n))
	for i := 0; i < crypto.HashSize && 8*i < limit; i++ {
		if x := p.bits[i] ^ q.bits[i]; x != 0 {
			return min(8*i+bits.LeadingZeros8(x), limit)
		}
	}
	return limit
}

// IsPrefixOf reports whether q starts with p (a path is a prefix of itself).
func (p ProofPath) IsPrefixOf(q ProofPath) bool {
	return p.n <= q.n && p.CommonPrefixLen(q) == int(p.n)
}

// Compare orders paths like in-order trie traversal: by bits, with a prefix
// ordered before its extensions.
func (p ProofPath) Compare(q ProofPath) int {
	c := p.CommonPrefixLen(q)
	if c == int(p.n) || c == int(q.n) {
		switch {
		case p.n < q.n:
			return -1
		case p.n > q.n:
			return 1
		default:
			return 0
		}
	}
	if p.Bit(c) == 0 {
		return -1
	}
	return 1
}

func (p ProofPath) put(buf []byte) {
	binary.BigEndian.PutUint16(buf, p.n)
	copy(buf[2:], p.bits[:])
}

// Bytes returns the canonical 34-byte encoding: u16be(len) followed by the
// 32 path bytes.
func (p ProofPath) Bytes() []byte {
	buf := make([]byte, proofPathSize)
	p.put(buf)
	return buf
}

func decodeProofPath(b []byte) (ProofPath, error) {
	var p ProofPath
	if len(b) != proofPathSize {
		return p, decodeErrf(b, 0, nil, "proof path must be %d bytes", proofPathSize)
	}
	n := binary.BigEndian.Uint16(b)
	if n > keyPathBits {
		return p, decodeErrf(b, 0, nil, "proof path too long: %d bits", n)
	}
	p.n = n
	copy(p.bits[:], b[2:])
	if p.Prefix(int(n)) != p {
		return p, decodeErrf(b, 2, nil, "proof path has non-zero bits beyond its length")
	}
	return p, nil
}

func (p ProofPath) String() string {
	if p.IsLeaf() {
		return hex.EncodeToString(p.bits[:])
	}
	var buf strings.Builder
	for i := range int(p.n) {
		buf.WriteByte('0' + p.Bit(i))
	}
	return buf.String()
}

func (p ProofPath) GoString() string {
	return fmt.Sprintf("ProofPath(%d:%s)", p.n, p.String())
}

func (p ProofPath) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(p.Bytes())), nil
}

func (p *ProofPath) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid proof path: %w", err)
	}
	v, err := decodeProofPath(raw)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p ProofPath) MarshalBinary() ([]byte, error) {
	return p.Bytes(), nil
}

func (p *ProofPath) UnmarshalBinary(data []byte) error {
	v, err := decodeProofPath(data)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
