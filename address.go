package merkledb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Storage namespaces used by the database.
const (
	nsMeta   = "__meta__"
	nsData   = "__data__"
	nsSystem = "__system__"
)

const (
	reservedPrefix  = "__"
	migrationPrefix = "^"
)

// Metadata key kinds.
const (
	metaKindPlain       byte = 0x00
	metaKindMember      byte = 0x01
	metaKindGroupHeader byte = 0x02
)

// Address identifies an index: a name, plus an id for members of a group.
type Address struct {
	name    string
	id      []byte
	grouped bool
}

// Addr returns the address of a standalone index.
func Addr(name string) Address {
	return Address{name: name}
}

// GroupAddr returns the address of the member id of the group name.
func GroupAddr(name string, id []byte) Address {
	return Address{name: name, id: bytes.Clone(id), grouped: true}
}

func (a Address) Name() string { return a.name }

func (a Address) ID() []byte { return a.id }

func (a Address) InGroup() bool { return a.grouped }

func (a Address) withName(name string) Address {
	a.name = name
	return a
}

func (a Address) String() string {
	if a.grouped {
		return fmt.Sprintf("%s[%s]", a.name, hexstr(a.id))
	}
	return a.name
}

func (a Address) Equal(b Address) bool {
	return a.name == b.name && a.grouped == b.grouped && bytes.Equal(a.id, b.id)
}

func metaNamePrefix(name string) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(name)+2)
	buf = binary.AppendUvarint(buf, uint64(len(name)))
	return append(buf, name...)
}

// metaKey is the key of the address's IndexMetadata in the meta namespace:
// uvarint(len(name)) ‖ name ‖ kind [‖ uvarint(len(id)) ‖ id].
func (a Address) metaKey() []byte {
	buf := metaNamePrefix(a.name)
	if !a.grouped {
		return append(buf, metaKindPlain)
	}
	buf = append(buf, metaKindMember)
	return appendVarbytes(buf, a.id)
}

func groupHeaderKey(name string) []byte {
	return append(metaNamePrefix(name), metaKindGroupHeader)
}

func groupMembersPrefix(name string) []byte {
	return append(metaNamePrefix(name), metaKindMember)
}

type metaKey struct {
	addr   Address
	header bool
}

func parseMetaKey(k []byte) (metaKey, error) {
	d := makeByteDecoder(k)
	name, err := d.VarBytes()
	if err != nil {
		return metaKey{}, err
	}
	kind, err := d.Byte()
	if err != nil {
		return metaKey{}, err
	}
	switch kind {
	case metaKindPlain:
		return metaKey{addr: Addr(string(name))}, nil
	case metaKindGroupHeader:
		return metaKey{addr: Address{name: string(name)}, header: true}, nil
	case metaKindMember:
		id, err := d.VarBytes()
		if err != nil {
			return metaKey{}, err
		}
		return metaKey{addr: GroupAddr(string(name), id)}, nil
	default:
		return metaKey{}, decodeErrf(k, d.Off()-1, nil, "invalid metadata key kind 0x%02x", kind)
	}
}

// dataPrefix is the key prefix of all of an index's entries in the data
// namespace. Fixed width makes the ranges of distinct indexes disjoint.
func dataPrefix(id uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8+40), id)
}

func isReservedName(name string) bool {
	return strings.HasPrefix(name, reservedPrefix)
}

func isMigrationName(name string) bool {
	return strings.HasPrefix(name, migrationPrefix)
}

func migrationName(name string) string {
	return migrationPrefix + name
}

// nameInNamespace reports whether name is ns itself or nested inside it
// (ns.*). The empty namespace contains every name.
func nameInNamespace(name, ns string) bool {
	if ns == "" {
		return true
	}
	return name == ns || (strings.HasPrefix(name, ns) && len(name) > len(ns) && name[len(ns)] == '.')
}

func validNameChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '.' || c == '-'
}

// validateName checks a physical index name. A leading ^ is allowed, it marks
// the migration namespace.
func validateName(name string) error {
	body := strings.TrimPrefix(name, migrationPrefix)
	if body == "" {
		return fmt.Errorf("index name is empty")
	}
	for i := 0; i < len(body); i++ {
		if !validNameChar(body[i]) {
			return fmt.Errorf("index name %q contains invalid character %q", name, body[i])
		}
	}
	return nil
}

// validateUserName checks a name requested by a caller: physical rules, and
// the reserved and migration namespaces are off limits.
func validateUserName(name string) error {
	if isMigrationName(name) {
		return fmt.Errorf("index name %q is in the migration namespace", name)
	}
	if isReservedName(name) {
		return fmt.Errorf("index name %q is reserved", name)
	}
	return validateName(name)
}
