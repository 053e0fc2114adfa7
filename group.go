package merkledb

// Group is a family of same-typed indexes sharing a name and told apart by a
// byte-string id, such as one ProofMap per account.
type Group[I any] struct {
	access Access
	name   string
	open   func(Access, Address) (I, error)
}

// NewGroup builds a group over a. The open function constructs one member;
// it typically calls OpenX or MutableX with the address it is given.
func NewGroup[I any](a Access, name string, open func(Access, Address) (I, error)) *Group[I] {
	return &Group[I]{access: a, name: name, open: open}
}

func (g *Group[I]) Name() string {
	return g.name
}

// Get opens the member id. Members that were never written read as empty.
func (g *Group[I]) Get(id []byte) (I, error) {
	return g.open(g.access, GroupAddr(g.name, id))
}

// Members lists the ids of existing members, shortest first. It scans
// metadata, so it costs one read per member.
func (g *Group[I]) Members() ([][]byte, error) {
	return groupMembers(g.access, g.name)
}

func groupMembers(a Access, name string) ([][]byte, error) {
	b, err := a.bind(name, ReadOnly)
	if err != nil {
		return nil, err
	}
	var ids [][]byte
	err = safelyCall(func() error {
		b.view().scan(nsMeta, groupMembersPrefix(b.name), nil, func(k, _ []byte) bool {
			mk := must(parseMetaKey(k))
			ids = append(ids, mk.addr.id)
			return true
		})
		return nil
	})
	return ids, err
}
