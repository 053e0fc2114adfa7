package merkledb

import (
	"fmt"
)

// IndexType is the logical type of an index, persisted in its metadata.
type IndexType uint8

const (
	EntryType IndexType = iota + 1
	ProofEntryType
	ListType
	ProofListType
	MapType
	ProofMapType
	SetType
)

var indexTypeNames = [...]string{
	EntryType:      "Entry",
	ProofEntryType: "ProofEntry",
	ListType:       "List",
	ProofListType:  "ProofList",
	MapType:        "Map",
	ProofMapType:   "ProofMap",
	SetType:        "Set",
}

func (t IndexType) String() string {
	if int(t) < len(indexTypeNames) && indexTypeNames[t] != "" {
		return indexTypeNames[t]
	}
	return fmt.Sprintf("IndexType(%d)", uint8(t))
}

func (t IndexType) IsValid() bool {
	return t >= EntryType && t <= SetType
}

// IsMerkelized reports whether indexes of this type have an object hash and
// participate in the state hash.
func (t IndexType) IsMerkelized() bool {
	switch t {
	case ProofEntryType, ProofListType, ProofMapType:
		return true
	default:
		return false
	}
}

// IndexMetadata is the persisted descriptor of an index.
type IndexMetadata struct {
	Identifier uint64    `msgpack:"id"`
	Type       IndexType `msgpack:"t"`
	State      []byte    `msgpack:"s,omitempty"`
}

// indexMeta is the in-memory view of an address's metadata. Within a Fork,
// every handle of the same address shares one indexMeta.
type indexMeta struct {
	IndexMetadata
	addr   Address
	exists bool
	prefix []byte

	// mod is bumped on every mutation; handles use it to invalidate their
	// memoized object hash.
	mod uint64
}

func newIndexMeta(addr Address, md *IndexMetadata) *indexMeta {
	m := &indexMeta{addr: addr}
	if md != nil {
		m.IndexMetadata = *md
		m.exists = true
		m.prefix = dataPrefix(md.Identifier)
	}
	return m
}

func encodeMetadata(md *IndexMetadata) []byte {
	return msgpackEncode(md)
}

func decodeMetadata(raw []byte) (*IndexMetadata, error) {
	md := new(IndexMetadata)
	err := msgpackDecode(raw, md)
	if err != nil {
		return nil, err
	}
	if !md.Type.IsValid() {
		return nil, decodeErrf(raw, 0, nil, "invalid index type %d", md.Type)
	}
	return md, nil
}

// loadMeta reads the metadata of addr through the given view.
func loadMeta(v kvView, addr Address) *indexMeta {
	raw := v.get(nsMeta, addr.metaKey())
	if raw == nil {
		return newIndexMeta(addr, nil)
	}
	md, err := decodeMetadata(raw)
	if err != nil {
		panic(indexErrf(addr, nil, err, "metadata"))
	}
	return newIndexMeta(addr, md)
}

// groupHeaderType returns the member type recorded in the group header of
// name, or 0 if the name is not a group.
func groupHeaderType(v kvView, name string) IndexType {
	raw := v.get(nsMeta, groupHeaderKey(name))
	if raw == nil {
		return 0
	}
	md, err := decodeMetadata(raw)
	if err != nil {
		panic(indexErrf(Addr(name), nil, err, "group header"))
	}
	return md.Type
}

// checkIndexType validates that addr may be opened as typ, considering both
// the index's own metadata and the plain/group exclusivity of its name.
func checkIndexType(v kvView, m *indexMeta, typ IndexType) error {
	addr := m.addr
	if m.exists && m.Type != typ {
		return &TypeMismatchError{Addr: addr, Expected: typ, Actual: m.Type}
	}
	if addr.grouped {
		if v.get(nsMeta, Addr(addr.name).metaKey()) != nil {
			return &TypeMismatchError{Addr: addr, Expected: typ, Msg: "name is used by a standalone index, cannot be a group"}
		}
		if ht := groupHeaderType(v, addr.name); ht != 0 && ht != typ {
			return &TypeMismatchError{Addr: addr, Expected: typ, Actual: ht, Msg: fmt.Sprintf("group members are %v, opened as %v", ht, typ)}
		}
	} else if !m.exists {
		if ht := groupHeaderType(v, addr.name); ht != 0 {
			return &TypeMismatchError{Addr: addr, Expected: typ, Actual: ht, Msg: "name is used by a group, cannot be a standalone index"}
		}
	}
	return nil
}

// IndexInfo describes a persisted index, as returned by Indexes.
type IndexInfo struct {
	Addr       Address
	Type       IndexType
	Identifier uint64
}

// listIndexes returns every index recorded in the metadata namespace, in
// metadata key order. Group headers are skipped.
func listIndexes(v kvView) []IndexInfo {
	var result []IndexInfo
	v.scan(nsMeta, nil, nil, func(k, raw []byte) bool {
		mk, err := parseMetaKey(k)
		if err != nil {
			panic(fmt.Errorf("metadata key %s: %w", hexstr(k), err))
		}
		if mk.header {
			return true
		}
		md, err := decodeMetadata(raw)
		if err != nil {
			panic(indexErrf(mk.addr, nil, err, "metadata"))
		}
		result = append(result, IndexInfo{Addr: mk.addr, Type: md.Type, Identifier: md.Identifier})
		return true
	})
	return result
}
