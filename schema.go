package merkledb

import (
	"fmt"
	"slices"
)

// Schema is the set of indexes an application declares up front. Opening a
// database with a schema checks every declaration against the persisted
// metadata, so a type change is reported at startup instead of on first
// use.
type Schema struct {
	defs   []*indexDef
	byName map[string]*indexDef
}

type indexDef struct {
	name  string
	typ   IndexType
	group bool
	pos   int
}

// IndexDesc describes one schema declaration.
type IndexDesc struct {
	Name  string
	Type  IndexType
	Group bool
}

func NewSchema() *Schema {
	return &Schema{
		byName: make(map[string]*indexDef),
	}
}

func (scm *Schema) add(name string, typ IndexType, group bool) *indexDef {
	if err := validateUserName(name); err != nil {
		panic(fmt.Errorf("merkledb: schema: %w", err))
	}
	if prev := scm.byName[name]; prev != nil {
		panic(fmt.Errorf("merkledb: schema: %s defined twice (as %v and %v)", name, prev.typ, typ))
	}
	def := &indexDef{name: name, typ: typ, group: group, pos: len(scm.defs)}
	scm.defs = append(scm.defs, def)
	scm.byName[name] = def
	return def
}

// Indexes returns the declarations in definition order.
func (scm *Schema) Indexes() []IndexDesc {
	result := make([]IndexDesc, len(scm.defs))
	for i, def := range scm.defs {
		result[i] = def.desc()
	}
	return result
}

func (scm *Schema) Lookup(name string) (IndexDesc, bool) {
	def := scm.byName[name]
	if def == nil {
		return IndexDesc{}, false
	}
	return def.desc(), true
}

// Names returns the declared names, sorted.
func (scm *Schema) Names() []string {
	names := make([]string, 0, len(scm.defs))
	for _, def := range scm.defs {
		names = append(names, def.name)
	}
	slices.Sort(names)
	return names
}

func (def *indexDef) desc() IndexDesc {
	return IndexDesc{Name: def.name, Type: def.typ, Group: def.group}
}

func (def *indexDef) addr() Address {
	if def.group {
		return GroupAddr(def.name, nil)
	}
	return Addr(def.name)
}

// validate checks every declaration against the snapshot's metadata.
func (scm *Schema) validate(s *Snapshot) error {
	for _, def := range scm.defs {
		addr := def.addr()
		m := s.meta(addr)
		if def.group {
			m = newIndexMeta(addr, nil)
		}
		if err := checkIndexType(s, m, def.typ); err != nil {
			return err
		}
	}
	return nil
}
