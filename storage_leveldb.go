package merkledb

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type leveldbStorage struct {
	ldb *leveldb.DB
	wo  *opt.WriteOptions
}

// OpenLevelDBStorage opens a LevelDB database directory. An empty path opens
// a transient in-memory database. Namespaces are flattened into key
// prefixes.
func OpenLevelDBStorage(path string, sync bool) (Storage, error) {
	var ldb *leveldb.DB
	var err error
	if path == "" {
		ldb, err = leveldb.Open(lvlstorage.NewMemStorage(), nil)
	} else {
		ldb, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb: %w", err)
	}
	return &leveldbStorage{ldb: ldb, wo: &opt.WriteOptions{Sync: sync}}, nil
}

func (s *leveldbStorage) Snapshot() (StorageSnapshot, error) {
	snap, err := s.ldb.GetSnapshot()
	if errors.Is(err, leveldb.ErrClosed) {
		return nil, ErrClosed
	} else if err != nil {
		return nil, fmt.Errorf("leveldb: %w", err)
	}
	return &leveldbSnapshot{snap: snap}, nil
}

func (s *leveldbStorage) Apply(b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	var lb leveldb.Batch
	prefixes := make(map[string][]byte)
	for _, op := range b.ops {
		prefix := prefixes[op.NS]
		if prefix == nil {
			prefix = flatPrefix(op.NS)
			prefixes[op.NS] = prefix
		}
		if op.Delete {
			lb.Delete(flatKey(prefix, op.Key))
		} else {
			lb.Put(flatKey(prefix, op.Key), op.Value)
		}
	}
	err := s.ldb.Write(&lb, s.wo)
	if err != nil {
		return fmt.Errorf("leveldb: batch of %d: %w", b.Len(), err)
	}
	return nil
}

func (s *leveldbStorage) Close() error {
	return s.ldb.Close()
}

type leveldbSnapshot struct {
	snap *leveldb.Snapshot
}

func (snap *leveldbSnapshot) Get(ns string, key []byte) ([]byte, error) {
	v, err := snap.snap.Get(flatKey(flatPrefix(ns), key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("leveldb: get %s/%s: %w", ns, hexstr(key), err)
	}
	return present(v), nil
}

func (snap *leveldbSnapshot) Cursor(ns string) (StorageCursor, error) {
	prefix := flatPrefix(ns)
	return &leveldbCursor{
		it:     snap.snap.NewIterator(util.BytesPrefix(prefix), nil),
		prefix: prefix,
	}, nil
}

func (snap *leveldbSnapshot) Release() {
	snap.snap.Release()
}

type leveldbCursor struct {
	it     iterator.Iterator
	prefix []byte
}

func (c *leveldbCursor) at(ok bool) ([]byte, []byte) {
	if !ok {
		return nil, nil
	}
	return c.it.Key()[len(c.prefix):], present(c.it.Value())
}

func (c *leveldbCursor) First() ([]byte, []byte) {
	return c.at(c.it.First())
}

func (c *leveldbCursor) Seek(seek []byte) ([]byte, []byte) {
	return c.at(c.it.Seek(flatKey(c.prefix, seek)))
}

func (c *leveldbCursor) Next() ([]byte, []byte) {
	return c.at(c.it.Next())
}

func (c *leveldbCursor) Err() error { return c.it.Error() }

func (c *leveldbCursor) Close() {
	c.it.Release()
}
