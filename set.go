package merkledb

import (
	"iter"
)

// Set is an ordered set of keys.
type Set[K any] struct {
	*indexBase
	kc Codec[K]
}

func OpenSet[K any](a Access, addr Address, kc Codec[K]) (*Set[K], error) {
	ix, err := openIndex(a, addr, SetType, ReadOnly)
	if err != nil {
		return nil, err
	}
	return &Set[K]{ix, kc}, nil
}

func MutableSet[K any](a Access, addr Address, kc Codec[K]) (*Set[K], error) {
	ix, err := openIndex(a, addr, SetType, ReadWrite)
	if err != nil {
		return nil, err
	}
	return &Set[K]{ix, kc}, nil
}

func (s *Set[K]) Contains(k K) bool {
	return s.get(mapKey(s.indexBase, s.kc, k)) != nil
}

func (s *Set[K]) Insert(k K) {
	s.mutating()
	s.put(mapKey(s.indexBase, s.kc, k), emptyValue)
}

func (s *Set[K]) Remove(k K) {
	s.mutating()
	s.del(mapKey(s.indexBase, s.kc, k))
}

func (s *Set[K]) Clear() {
	s.mutating()
	s.clearData()
}

func (s *Set[K]) All() iter.Seq[K] {
	return mapKeys(s.indexBase, s.kc)
}
