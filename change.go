package merkledb

import (
	"fmt"
	"maps"
	"slices"
)

type (
	// IndexChange describes what a merge did to one index.
	IndexChange struct {
		Addr Address
		Type IndexType
		Op   Op
	}

	Op int
)

const (
	OpNone   Op = 0
	OpCreate Op = 1
	OpUpdate Op = 2
	OpDelete Op = 3
)

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}

func (chg IndexChange) String() string {
	return fmt.Sprintf("%v %v(%v)", chg.Op, chg.Type, chg.Addr)
}

// describeChanges compares the metadata of every touched index in f with
// the base snapshot. System indexes are left out.
func describeChanges(base *Snapshot, f *Fork) []IndexChange {
	var result []IndexChange
	for _, mk := range slices.Sorted(maps.Keys(f.touched)) {
		addr := f.touched[mk]
		if isReservedName(addr.name) {
			continue
		}
		before := base.meta(addr)
		after := f.meta(addr)
		chg := IndexChange{Addr: addr, Type: after.Type}
		switch {
		case !before.exists && after.exists:
			chg.Op = OpCreate
		case before.exists && !after.exists:
			chg.Op, chg.Type = OpDelete, before.Type
		case after.exists:
			chg.Op = OpUpdate
		default:
			continue
		}
		result = append(result, chg)
	}
	return result
}
