package merkledb

import (
	"iter"
)

// Map is an ordered key-value index. Keys are stored in their encoded form,
// so iteration follows the byte order of the encoded keys.
type Map[K, V any] struct {
	*indexBase
	kc Codec[K]
	vc Codec[V]
}

func OpenMap[K, V any](a Access, addr Address, kc Codec[K], vc Codec[V]) (*Map[K, V], error) {
	ix, err := openIndex(a, addr, MapType, ReadOnly)
	if err != nil {
		return nil, err
	}
	return &Map[K, V]{ix, kc, vc}, nil
}

func MutableMap[K, V any](a Access, addr Address, kc Codec[K], vc Codec[V]) (*Map[K, V], error) {
	ix, err := openIndex(a, addr, MapType, ReadWrite)
	if err != nil {
		return nil, err
	}
	return &Map[K, V]{ix, kc, vc}, nil
}

// mapKey encodes a key into its non-empty stored suffix. Plain maps store the
// encoded key after a fixed tag, the same layout ProofMap uses for values.
func mapKey[K any](ix *indexBase, kc Codec[K], k K) []byte {
	raw := encodeOrPanic(kc, ix.meta.addr, k)
	return append([]byte{mapValueTag}, raw...)
}

func (m *Map[K, V]) Get(k K) (V, bool) {
	key := mapKey(m.indexBase, m.kc, k)
	raw := m.get(key)
	if raw == nil {
		var zero V
		return zero, false
	}
	return decodeOrPanic(m.vc, m.Address(), key, raw), true
}

func (m *Map[K, V]) Contains(k K) bool {
	return m.get(mapKey(m.indexBase, m.kc, k)) != nil
}

func (m *Map[K, V]) Put(k K, v V) {
	m.mutating()
	m.put(mapKey(m.indexBase, m.kc, k), encodeOrPanic(m.vc, m.Address(), v))
}

func (m *Map[K, V]) Remove(k K) {
	m.mutating()
	m.del(mapKey(m.indexBase, m.kc, k))
}

func (m *Map[K, V]) Clear() {
	m.mutating()
	m.clearData()
}

func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return mapEntries(m.indexBase, m.kc, m.vc, nil)
}

// From iterates entries with keys at or after k.
func (m *Map[K, V]) From(k K) iter.Seq2[K, V] {
	return mapEntries(m.indexBase, m.kc, m.vc, mapKey(m.indexBase, m.kc, k))
}

func (m *Map[K, V]) Keys() iter.Seq[K] {
	return mapKeys(m.indexBase, m.kc)
}

func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range m.All() {
			if !yield(v) {
				return
			}
		}
	}
}

func mapEntries[K, V any](ix *indexBase, kc Codec[K], vc Codec[V], from []byte) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		addr := ix.meta.addr
		ix.scan([]byte{mapValueTag}, from, func(k, raw []byte) bool {
			return yield(decodeOrPanic(kc, addr, k, k[1:]), decodeOrPanic(vc, addr, k, raw))
		})
	}
}

func mapKeys[K any](ix *indexBase, kc Codec[K]) iter.Seq[K] {
	return func(yield func(K) bool) {
		addr := ix.meta.addr
		ix.scan([]byte{mapValueTag}, nil, func(k, _ []byte) bool {
			return yield(decodeOrPanic(kc, addr, k, k[1:]))
		})
	}
}
