package merkledb

import (
	"encoding/binary"
	"iter"
)

// Key layout within a list index: values live at 0x00‖u64be(i), ProofList
// hash nodes at 0x01‖height‖u64be(i). The length is kept in the index state.
const (
	listValueTag byte = 0x00
	listNodeTag  byte = 0x01
)

func listValueKey(i uint64) []byte {
	var k [9]byte
	k[0] = listValueTag
	binary.BigEndian.PutUint64(k[1:], i)
	return k[:]
}

func listNodeKey(h uint8, i uint64) []byte {
	var k [10]byte
	k[0] = listNodeTag
	k[1] = h
	binary.BigEndian.PutUint64(k[2:], i)
	return k[:]
}

func listLen(ix *indexBase) uint64 {
	s := ix.state()
	switch len(s) {
	case 0:
		return 0
	case 8:
		return binary.BigEndian.Uint64(s)
	default:
		panic(indexErrf(ix.meta.addr, nil, decodeErrf(s, 0, nil, "list length must be 8 bytes"), "state"))
	}
}

func setListLen(ix *indexBase, n uint64) {
	if n == 0 {
		ix.setState(nil)
		return
	}
	ix.setState(binary.BigEndian.AppendUint64(nil, n))
}

func checkListIndex(ix *indexBase, i, n uint64) {
	if i >= n {
		panic(indexErrf(ix.meta.addr, nil, ErrIndexOutOfRange, "index %d, length %d", i, n))
	}
}

func listValues[V any](ix *indexBase, vc Codec[V], from uint64) iter.Seq2[uint64, V] {
	return func(yield func(uint64, V) bool) {
		ix.scan([]byte{listValueTag}, listValueKey(from), func(k, raw []byte) bool {
			if len(k) != 9 {
				panic(indexErrf(ix.meta.addr, k, nil, "invalid list key"))
			}
			return yield(binary.BigEndian.Uint64(k[1:]), decodeOrPanic(vc, ix.meta.addr, k, raw))
		})
	}
}

// List is a dense sequence of values indexed from zero.
type List[V any] struct {
	*indexBase
	vc Codec[V]
}

func OpenList[V any](a Access, addr Address, vc Codec[V]) (*List[V], error) {
	ix, err := openIndex(a, addr, ListType, ReadOnly)
	if err != nil {
		return nil, err
	}
	return &List[V]{ix, vc}, nil
}

func MutableList[V any](a Access, addr Address, vc Codec[V]) (*List[V], error) {
	ix, err := openIndex(a, addr, ListType, ReadWrite)
	if err != nil {
		return nil, err
	}
	return &List[V]{ix, vc}, nil
}

func (l *List[V]) Len() uint64 {
	return listLen(l.indexBase)
}

func (l *List[V]) IsEmpty() bool {
	return l.Len() == 0
}

func (l *List[V]) Get(i uint64) (V, bool) {
	raw := l.get(listValueKey(i))
	if raw == nil {
		var zero V
		return zero, false
	}
	return decodeOrPanic(l.vc, l.Address(), listValueKey(i), raw), true
}

func (l *List[V]) Last() (V, bool) {
	n := l.Len()
	if n == 0 {
		var zero V
		return zero, false
	}
	return l.Get(n - 1)
}

func (l *List[V]) Push(v V) {
	l.mutating()
	n := l.Len()
	l.put(listValueKey(n), encodeOrPanic(l.vc, l.Address(), v))
	setListLen(l.indexBase, n+1)
}

func (l *List[V]) Extend(vs ...V) {
	for _, v := range vs {
		l.Push(v)
	}
}

// Set replaces the value at i. It panics with ErrIndexOutOfRange if i >= Len.
func (l *List[V]) Set(i uint64, v V) {
	l.mutating()
	checkListIndex(l.indexBase, i, l.Len())
	l.put(listValueKey(i), encodeOrPanic(l.vc, l.Address(), v))
}

func (l *List[V]) Pop() (V, bool) {
	v, ok := l.Last()
	if ok {
		l.Truncate(l.Len() - 1)
	}
	return v, ok
}

// Truncate shortens the list to n values. Longer lengths are a no-op.
func (l *List[V]) Truncate(n uint64) {
	l.mutating()
	old := l.Len()
	if n >= old {
		return
	}
	for i := n; i < old; i++ {
		l.del(listValueKey(i))
	}
	setListLen(l.indexBase, n)
}

func (l *List[V]) Clear() {
	l.mutating()
	l.clearData()
	setListLen(l.indexBase, 0)
}

func (l *List[V]) All() iter.Seq2[uint64, V] {
	return listValues(l.indexBase, l.vc, 0)
}

func (l *List[V]) From(i uint64) iter.Seq2[uint64, V] {
	return listValues(l.indexBase, l.vc, i)
}
