package merkledb

import (
	"encoding/binary"

	"github.com/andreyvit/merkledb/crypto"
)

// Hash is a SHA-256 digest.
type Hash = crypto.Hash

// ZeroHash is the root of every empty Merkle tree.
var ZeroHash = crypto.ZeroHash

// Domain tags. Every hashed preimage starts with exactly one of these.
const (
	tagBlob          byte = 0x00
	tagListBranch    byte = 0x01
	tagListObject    byte = 0x02
	tagMapObject     byte = 0x03
	tagMapBranch     byte = 0x04
	tagMapSingleRoot byte = 0x05
)

// BlobHash is the object hash of a scalar value given its canonical
// encoding. Leaves of ProofList and ProofMap are blob hashes of the stored
// values, and so is the object hash of a non-empty ProofEntry.
func BlobHash(data []byte) Hash {
	return crypto.NewHashStream().Update([]byte{tagBlob}).Update(data).Sum()
}

func listBranchHash(left, right Hash) Hash {
	return crypto.NewHashStream().Update([]byte{tagListBranch}).Update(left[:]).Update(right[:]).Sum()
}

// listObjectHash binds the length into the list's object hash, so an empty
// list hashes to a fixed value different from an empty map and from H("").
func listObjectHash(length uint64, root Hash) Hash {
	var buf [1 + 8]byte
	buf[0] = tagListObject
	binary.LittleEndian.PutUint64(buf[1:], length)
	return crypto.NewHashStream().Update(buf[:]).Update(root[:]).Sum()
}

func mapBranchHash(left, right Hash, lp, rp ProofPath) Hash {
	var buf [1 + 2*crypto.HashSize + 2*proofPathSize]byte
	buf[0] = tagMapBranch
	n := 1
	n += copy(buf[n:], left[:])
	n += copy(buf[n:], right[:])
	lp.put(buf[n:])
	n += proofPathSize
	rp.put(buf[n:])
	return crypto.HashBytes(buf[:])
}

func mapSingleRootHash(path ProofPath, leaf Hash) Hash {
	var buf [1 + proofPathSize + crypto.HashSize]byte
	buf[0] = tagMapSingleRoot
	path.put(buf[1:])
	copy(buf[1+proofPathSize:], leaf[:])
	return crypto.HashBytes(buf[:])
}

func mapObjectHash(root Hash) Hash {
	return crypto.NewHashStream().Update([]byte{tagMapObject}).Update(root[:]).Sum()
}

// EmptyListHash and EmptyMapHash are the object hashes of an empty ProofList
// and an empty ProofMap.
var (
	EmptyListHash = listObjectHash(0, ZeroHash)
	EmptyMapHash  = mapObjectHash(ZeroHash)
)

// ParseHash parses a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	return crypto.ParseHash(s)
}
