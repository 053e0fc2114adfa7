package merkledb

// opener opens one index type in either access mode.
type opener[I any] struct {
	ro func(Access, Address) (I, error)
	rw func(Access, Address) (I, error)
}

// IndexDef is a typed schema declaration of a standalone index.
type IndexDef[I any] struct {
	def *indexDef
	op  opener[I]
}

func (d *IndexDef[I]) Name() string {
	return d.def.name
}

func (d *IndexDef[I]) Type() IndexType {
	return d.def.typ
}

// Open opens the index read-only.
func (d *IndexDef[I]) Open(a Access) (I, error) {
	return d.op.ro(a, Addr(d.def.name))
}

// Mutable opens the index for writing.
func (d *IndexDef[I]) Mutable(a Access) (I, error) {
	return d.op.rw(a, Addr(d.def.name))
}

// GroupDef is a typed schema declaration of an index group.
type GroupDef[I any] struct {
	def *indexDef
	op  opener[I]
}

func (d *GroupDef[I]) Name() string {
	return d.def.name
}

func (d *GroupDef[I]) Type() IndexType {
	return d.def.typ
}

// Member opens the member id read-only.
func (d *GroupDef[I]) Member(a Access, id []byte) (I, error) {
	return d.op.ro(a, GroupAddr(d.def.name, id))
}

// MutableMember opens the member id for writing.
func (d *GroupDef[I]) MutableMember(a Access, id []byte) (I, error) {
	return d.op.rw(a, GroupAddr(d.def.name, id))
}

// Group returns a read-only Group over a.
func (d *GroupDef[I]) Group(a Access) *Group[I] {
	return NewGroup(a, d.def.name, d.op.ro)
}

// MutableGroup returns a Group whose members are opened for writing.
func (d *GroupDef[I]) MutableGroup(a Access) *Group[I] {
	return NewGroup(a, d.def.name, d.op.rw)
}

func defineIndex[I any](scm *Schema, name string, typ IndexType, op opener[I]) *IndexDef[I] {
	return &IndexDef[I]{def: scm.add(name, typ, false), op: op}
}

func defineGroup[I any](scm *Schema, name string, typ IndexType, op opener[I]) *GroupDef[I] {
	return &GroupDef[I]{def: scm.add(name, typ, true), op: op}
}

func entryOpener[V any](vc Codec[V]) opener[*Entry[V]] {
	return opener[*Entry[V]]{
		ro: func(a Access, addr Address) (*Entry[V], error) { return OpenEntry(a, addr, vc) },
		rw: func(a Access, addr Address) (*Entry[V], error) { return MutableEntry(a, addr, vc) },
	}
}

func proofEntryOpener[V any](vc Codec[V]) opener[*ProofEntry[V]] {
	return opener[*ProofEntry[V]]{
		ro: func(a Access, addr Address) (*ProofEntry[V], error) { return OpenProofEntry(a, addr, vc) },
		rw: func(a Access, addr Address) (*ProofEntry[V], error) { return MutableProofEntry(a, addr, vc) },
	}
}

func listOpener[V any](vc Codec[V]) opener[*List[V]] {
	return opener[*List[V]]{
		ro: func(a Access, addr Address) (*List[V], error) { return OpenList(a, addr, vc) },
		rw: func(a Access, addr Address) (*List[V], error) { return MutableList(a, addr, vc) },
	}
}

func proofListOpener[V any](vc Codec[V]) opener[*ProofList[V]] {
	return opener[*ProofList[V]]{
		ro: func(a Access, addr Address) (*ProofList[V], error) { return OpenProofList(a, addr, vc) },
		rw: func(a Access, addr Address) (*ProofList[V], error) { return MutableProofList(a, addr, vc) },
	}
}

func mapOpener[K, V any](kc Codec[K], vc Codec[V]) opener[*Map[K, V]] {
	return opener[*Map[K, V]]{
		ro: func(a Access, addr Address) (*Map[K, V], error) { return OpenMap(a, addr, kc, vc) },
		rw: func(a Access, addr Address) (*Map[K, V], error) { return MutableMap(a, addr, kc, vc) },
	}
}

func proofMapOpener[K, V any](kc Codec[K], vc Codec[V]) opener[*ProofMap[K, V]] {
	return opener[*ProofMap[K, V]]{
		ro: func(a Access, addr Address) (*ProofMap[K, V], error) { return OpenProofMap(a, addr, kc, vc) },
		rw: func(a Access, addr Address) (*ProofMap[K, V], error) { return MutableProofMap(a, addr, kc, vc) },
	}
}

func setOpener[K any](kc Codec[K]) opener[*Set[K]] {
	return opener[*Set[K]]{
		ro: func(a Access, addr Address) (*Set[K], error) { return OpenSet(a, addr, kc) },
		rw: func(a Access, addr Address) (*Set[K], error) { return MutableSet(a, addr, kc) },
	}
}

func DefineEntry[V any](scm *Schema, name string, vc Codec[V]) *IndexDef[*Entry[V]] {
	return defineIndex(scm, name, EntryType, entryOpener(vc))
}

func DefineProofEntry[V any](scm *Schema, name string, vc Codec[V]) *IndexDef[*ProofEntry[V]] {
	return defineIndex(scm, name, ProofEntryType, proofEntryOpener(vc))
}

func DefineList[V any](scm *Schema, name string, vc Codec[V]) *IndexDef[*List[V]] {
	return defineIndex(scm, name, ListType, listOpener(vc))
}

func DefineProofList[V any](scm *Schema, name string, vc Codec[V]) *IndexDef[*ProofList[V]] {
	return defineIndex(scm, name, ProofListType, proofListOpener(vc))
}

func DefineMap[K, V any](scm *Schema, name string, kc Codec[K], vc Codec[V]) *IndexDef[*Map[K, V]] {
	return defineIndex(scm, name, MapType, mapOpener(kc, vc))
}

func DefineProofMap[K, V any](scm *Schema, name string, kc Codec[K], vc Codec[V]) *IndexDef[*ProofMap[K, V]] {
	return defineIndex(scm, name, ProofMapType, proofMapOpener(kc, vc))
}

func DefineSet[K any](scm *Schema, name string, kc Codec[K]) *IndexDef[*Set[K]] {
	return defineIndex(scm, name, SetType, setOpener(kc))
}

func DefineEntryGroup[V any](scm *Schema, name string, vc Codec[V]) *GroupDef[*Entry[V]] {
	return defineGroup(scm, name, EntryType, entryOpener(vc))
}

func DefineProofEntryGroup[V any](scm *Schema, name string, vc Codec[V]) *GroupDef[*ProofEntry[V]] {
	return defineGroup(scm, name, ProofEntryType, proofEntryOpener(vc))
}

func DefineListGroup[V any](scm *Schema, name string, vc Codec[V]) *GroupDef[*List[V]] {
	return defineGroup(scm, name, ListType, listOpener(vc))
}

func DefineProofListGroup[V any](scm *Schema, name string, vc Codec[V]) *GroupDef[*ProofList[V]] {
	return defineGroup(scm, name, ProofListType, proofListOpener(vc))
}

func DefineMapGroup[K, V any](scm *Schema, name string, kc Codec[K], vc Codec[V]) *GroupDef[*Map[K, V]] {
	return defineGroup(scm, name, MapType, mapOpener(kc, vc))
}

func DefineProofMapGroup[K, V any](scm *Schema, name string, kc Codec[K], vc Codec[V]) *GroupDef[*ProofMap[K, V]] {
	return defineGroup(scm, name, ProofMapType, proofMapOpener(kc, vc))
}

func DefineSetGroup[K any](scm *Schema, name string, kc Codec[K]) *GroupDef[*Set[K]] {
	return defineGroup(scm, name, SetType, setOpener(kc))
}
