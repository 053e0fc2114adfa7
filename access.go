package merkledb

import (
	"slices"
)

// AccessMode is the kind of access a capability grants.
type AccessMode uint8

const (
	ReadOnly AccessMode = iota
	ReadWrite
)

func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	default:
		return "invalid"
	}
}

// Capability grants access to the index named Prefix and to every index
// nested under it (Prefix.*). The empty prefix covers every non-reserved
// name.
type Capability struct {
	Prefix string
	Mode   AccessMode
}

func (c Capability) allows(name string, mode AccessMode) bool {
	return mode <= c.Mode && nameInNamespace(name, c.Prefix)
}

func (c Capability) includes(o Capability) bool {
	return o.Mode <= c.Mode && nameInNamespace(o.Prefix, c.Prefix)
}

// Access is anything index handles can be opened over: *Snapshot, *Fork and
// the restricted views built on top of them. Capability checks happen when a
// handle is opened, never on individual reads or writes.
type Access interface {
	// Capabilities describes what the view grants, in its own name space.
	Capabilities() []Capability

	bind(name string, mode AccessMode) (binding, error)
}

// binding is the result of resolving a name through an Access: the physical
// index name and the store to read (and maybe write) it through.
type binding struct {
	snap *Snapshot
	fork *Fork
	name string
}

func (b binding) view() kvView {
	if b.fork != nil {
		return b.fork
	}
	return b.snap
}

func (s *Snapshot) Capabilities() []Capability {
	return []Capability{{Prefix: "", Mode: ReadOnly}}
}

func (s *Snapshot) bind(name string, mode AccessMode) (binding, error) {
	if mode != ReadOnly {
		return binding{}, &AccessDeniedError{Name: name, Mode: mode, Msg: "snapshot is read-only"}
	}
	if s.released.Load() {
		return binding{}, ErrClosed
	}
	if err := validateUserName(name); err != nil {
		return binding{}, &AccessDeniedError{Name: name, Mode: mode, Msg: err.Error()}
	}
	return binding{snap: s, name: name}, nil
}

func (f *Fork) Capabilities() []Capability {
	return []Capability{{Prefix: "", Mode: ReadWrite}}
}

func (f *Fork) bind(name string, mode AccessMode) (binding, error) {
	if f.state != forkBuilding {
		return binding{}, ErrForkClosed
	}
	if err := validateUserName(name); err != nil {
		return binding{}, &AccessDeniedError{Name: name, Mode: mode, Msg: err.Error()}
	}
	return binding{fork: f, name: name}, nil
}

// Restricted is a view that only exposes the namespaces granted by its
// capabilities. Its capabilities never change.
type Restricted struct {
	base Access
	caps []Capability
}

// Restrict narrows base to the given capabilities. Asking for anything base
// does not grant (a wider prefix, or read-write over read-only) fails with
// *AccessDeniedError.
func Restrict(base Access, caps ...Capability) (*Restricted, error) {
	baseCaps := base.Capabilities()
	for _, c := range caps {
		if c.Prefix != "" {
			if err := validateUserName(c.Prefix); err != nil {
				return nil, &AccessDeniedError{Name: c.Prefix, Mode: c.Mode, Msg: err.Error()}
			}
		}
		if !slices.ContainsFunc(baseCaps, func(bc Capability) bool { return bc.includes(c) }) {
			return nil, &AccessDeniedError{Name: c.Prefix, Mode: c.Mode, Msg: "capability is wider than the base view grants"}
		}
	}
	return &Restricted{base: base, caps: slices.Clone(caps)}, nil
}

func (r *Restricted) Capabilities() []Capability {
	return slices.Clone(r.caps)
}

func (r *Restricted) bind(name string, mode AccessMode) (binding, error) {
	if err := validateUserName(name); err != nil {
		return binding{}, &AccessDeniedError{Name: name, Mode: mode, Msg: err.Error()}
	}
	if !slices.ContainsFunc(r.caps, func(c Capability) bool { return c.allows(name, mode) }) {
		return binding{}, &AccessDeniedError{Name: name, Mode: mode}
	}
	return r.base.bind(name, mode)
}

// Prefixed is a view in which index names are relative to a namespace:
// opening "x" opens "ns.x".
type Prefixed struct {
	base Access
	ns   string
	mode AccessMode
}

// Prefix returns a view of the namespace ns of base, with the strongest mode
// base grants over ns.
func Prefix(base Access, ns string) (*Prefixed, error) {
	if err := validateUserName(ns); err != nil {
		return nil, &AccessDeniedError{Name: ns, Mode: ReadOnly, Msg: err.Error()}
	}
	baseCaps := base.Capabilities()
	var mode AccessMode
	switch {
	case slices.ContainsFunc(baseCaps, func(bc Capability) bool { return bc.includes(Capability{ns, ReadWrite}) }):
		mode = ReadWrite
	case slices.ContainsFunc(baseCaps, func(bc Capability) bool { return bc.includes(Capability{ns, ReadOnly}) }):
		mode = ReadOnly
	default:
		return nil, &AccessDeniedError{Name: ns, Mode: ReadOnly, Msg: "namespace is not granted by the base view"}
	}
	return &Prefixed{base: base, ns: ns, mode: mode}, nil
}

func (p *Prefixed) Namespace() string {
	return p.ns
}

func (p *Prefixed) Capabilities() []Capability {
	return []Capability{{Prefix: "", Mode: p.mode}}
}

func (p *Prefixed) bind(name string, mode AccessMode) (binding, error) {
	if mode > p.mode {
		return binding{}, &AccessDeniedError{Name: name, Mode: mode, Msg: "namespace " + p.ns + " is " + p.mode.String()}
	}
	return p.base.bind(p.ns+"."+name, mode)
}

// systemAccess binds physical names as is, reserved and migration names
// included. Only the database itself uses it.
type systemAccess struct {
	snap *Snapshot
	fork *Fork
}

func (a systemAccess) Capabilities() []Capability {
	if a.fork != nil {
		return []Capability{{Prefix: "", Mode: ReadWrite}}
	}
	return []Capability{{Prefix: "", Mode: ReadOnly}}
}

func (a systemAccess) bind(name string, mode AccessMode) (binding, error) {
	if mode == ReadWrite && a.fork == nil {
		return binding{}, &AccessDeniedError{Name: name, Mode: mode, Msg: "snapshot is read-only"}
	}
	if err := validateName(name); err != nil {
		return binding{}, &AccessDeniedError{Name: name, Mode: mode, Msg: err.Error()}
	}
	return binding{snap: a.snap, fork: a.fork, name: name}, nil
}
