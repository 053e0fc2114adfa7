package merkledb

// IndexStats summarizes the stored data of one index.
type IndexStats struct {
	Addr Address
	Type IndexType

	// Keys counts every stored key, including Merkle nodes.
	Keys  int
	Bytes int

	// Values counts the user-visible values.
	Values int
}

// IndexStats scans the data of the index at addr.
func (s *Snapshot) IndexStats(addr Address) (IndexStats, error) {
	var result IndexStats
	err := safelyCall(func() error {
		result = indexStats(s, s.meta(addr))
		return nil
	})
	return result, err
}

func indexStats(v kvView, m *indexMeta) IndexStats {
	result := IndexStats{Addr: m.addr, Type: m.Type}
	if !m.exists {
		return result
	}
	ix := &indexBase{v: v, meta: m}
	ix.scan(nil, nil, func(k, val []byte) bool {
		result.Keys++
		result.Bytes += len(m.prefix) + len(k) + len(val)
		if isValueKey(m.Type, k) {
			result.Values++
		}
		return true
	})
	return result
}

func isValueKey(typ IndexType, k []byte) bool {
	switch typ {
	case EntryType, ProofEntryType:
		return len(k) == 0
	case ListType, ProofListType:
		return len(k) > 0 && k[0] == listValueTag
	case MapType, ProofMapType, SetType:
		return len(k) > 0 && k[0] == mapValueTag
	default:
		return false
	}
}

// Stats is a point-in-time summary of database activity.
type Stats struct {
	Seq           uint64
	Merges        uint64
	LastID        uint64
	OpenSnapshots int64
	OpenForks     int
	Migrations    int
}

func (db *DB) Stats() Stats {
	db.forksLock.Lock()
	forks := len(db.forks)
	db.forksLock.Unlock()
	db.migrationsLock.Lock()
	migrations := len(db.migrations)
	db.migrationsLock.Unlock()
	return Stats{
		Seq:           db.seq.Load(),
		Merges:        db.mergeCount.Load(),
		LastID:        db.nextID.Load(),
		OpenSnapshots: db.openSnapshots.Load(),
		OpenForks:     forks,
		Migrations:    migrations,
	}
}
