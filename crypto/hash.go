// Package crypto provides the hash and signature primitives used by
// merkledb: SHA-256 digests (one-shot and streaming) and Ed25519 signatures.
package crypto

import (
	"encoding/hex"
	"fmt"

	sha256 "github.com/minio/sha256-simd"
)

// HashSize is the size of a Hash in bytes.
const HashSize = sha256.Size

const (
	bytesInDebug    = 4
	debugEllipsis   = "..."
	hashDebugPrefix = "Hash("
)

// Hash is a SHA-256 digest.
type Hash [HashSize]byte

// ZeroHash is the all-zeroes hash. It is never the digest of any input and
// is used as the root of empty Merkle trees.
var ZeroHash Hash

// HashBytes returns the SHA-256 digest of data.
func HashBytes(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// HashOf hashes the concatenation of the given chunks.
func HashOf(chunks ...[]byte) Hash {
	s := NewHashStream()
	for _, c := range chunks {
		s.Update(c)
	}
	return s.Sum()
}

// ParseHash decodes a hex-encoded hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*HashSize {
		return h, fmt.Errorf("invalid hash %q: wanted %d hex chars, got %d", s, 2*HashSize, len(s))
	}
	_, err := hex.Decode(h[:], []byte(s))
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return h, nil
}

// HashFromBytes copies a 32-byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length %d, wanted %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// GoString returns the short debug form, e.g. Hash(01020304...).
func (h Hash) GoString() string {
	var buf [len(hashDebugPrefix) + 2*bytesInDebug + len(debugEllipsis) + 1]byte
	n := copy(buf[:], hashDebugPrefix)
	n += hex.Encode(buf[n:], h[:bytesInDebug])
	n += copy(buf[n:], debugEllipsis)
	buf[n] = ')'
	return string(buf[:n+1])
}

func (h Hash) MarshalText() ([]byte, error) {
	out := make([]byte, 2*HashSize)
	hex.Encode(out, h[:])
	return out, nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	v, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// HashStream computes a hash incrementally.
type HashStream struct {
	state interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

func NewHashStream() *HashStream {
	return &HashStream{state: sha256.New()}
}

// Update feeds a chunk into the stream and returns the stream for chaining.
func (s *HashStream) Update(chunk []byte) *HashStream {
	s.state.Write(chunk)
	return s
}

// Sum returns the hash of everything written so far.
func (s *HashStream) Sum() Hash {
	var h Hash
	copy(h[:], s.state.Sum(nil))
	return h
}
