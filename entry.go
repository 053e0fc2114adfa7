package merkledb

// Entry holds at most one value.
type Entry[V any] struct {
	*indexBase
	vc Codec[V]
}

func OpenEntry[V any](a Access, addr Address, vc Codec[V]) (*Entry[V], error) {
	return openEntry(a, addr, vc, EntryType, ReadOnly)
}

func MutableEntry[V any](a Access, addr Address, vc Codec[V]) (*Entry[V], error) {
	return openEntry(a, addr, vc, EntryType, ReadWrite)
}

func openEntry[V any](a Access, addr Address, vc Codec[V], typ IndexType, mode AccessMode) (*Entry[V], error) {
	ix, err := openIndex(a, addr, typ, mode)
	if err != nil {
		return nil, err
	}
	return &Entry[V]{ix, vc}, nil
}

func (e *Entry[V]) Get() (V, bool) {
	raw := e.get(nil)
	if raw == nil {
		var zero V
		return zero, false
	}
	return decodeOrPanic(e.vc, e.Address(), nil, raw), true
}

func (e *Entry[V]) Exists() bool {
	return e.get(nil) != nil
}

func (e *Entry[V]) Set(v V) {
	e.mutating()
	e.put(nil, encodeOrPanic(e.vc, e.Address(), v))
}

// Take removes and returns the value.
func (e *Entry[V]) Take() (V, bool) {
	v, ok := e.Get()
	if ok {
		e.Remove()
	}
	return v, ok
}

// Swap stores v and returns the previous value.
func (e *Entry[V]) Swap(v V) (V, bool) {
	old, ok := e.Get()
	e.Set(v)
	return old, ok
}

func (e *Entry[V]) Remove() {
	e.mutating()
	e.del(nil)
}

// ProofEntry is an Entry with an object hash: the blob hash of the encoded
// value, or ZeroHash when the entry is empty.
type ProofEntry[V any] struct {
	Entry[V]
}

func OpenProofEntry[V any](a Access, addr Address, vc Codec[V]) (*ProofEntry[V], error) {
	e, err := openEntry(a, addr, vc, ProofEntryType, ReadOnly)
	if err != nil {
		return nil, err
	}
	return &ProofEntry[V]{*e}, nil
}

func MutableProofEntry[V any](a Access, addr Address, vc Codec[V]) (*ProofEntry[V], error) {
	e, err := openEntry(a, addr, vc, ProofEntryType, ReadWrite)
	if err != nil {
		return nil, err
	}
	return &ProofEntry[V]{*e}, nil
}

func (e *ProofEntry[V]) ObjectHash() Hash {
	return e.memoHash(func() Hash {
		return proofEntryHash(e.get(nil))
	})
}

func proofEntryHash(raw []byte) Hash {
	if raw == nil {
		return ZeroHash
	}
	return BlobHash(raw)
}
