package merkledb

import (
	"fmt"
	"slices"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

type boltStorage struct {
	bdb *bbolt.DB
}

// BoltOptions tunes the Bolt backend.
type BoltOptions struct {
	// IsTesting disables fsync and shrinks the initial mmap.
	IsTesting bool
	MmapSize  int

	// NoSync skips fsync after each commit.
	NoSync bool
}

// OpenBoltStorage opens (creating if needed) a Bolt database file. Every
// storage namespace maps onto a top-level bucket.
func OpenBoltStorage(path string, opt BoltOptions) (Storage, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}
	if opt.NoSync {
		bopt.NoSync = true
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	return NewBoltStorage(bdb), nil
}

// NewBoltStorage wraps an already open Bolt database.
func NewBoltStorage(bdb *bbolt.DB) Storage {
	return &boltStorage{bdb: bdb}
}

func (s *boltStorage) Bolt() *bbolt.DB {
	return s.bdb
}

func (s *boltStorage) Snapshot() (StorageSnapshot, error) {
	btx, err := s.bdb.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	return &boltSnapshot{btx: btx}, nil
}

func (s *boltStorage) Apply(b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		buckets := make(map[string]*bbolt.Bucket)
		for _, op := range b.ops {
			buck := buckets[op.NS]
			if buck == nil {
				var err error
				buck, err = btx.CreateBucketIfNotExists(unsafeBytesFromString(op.NS))
				if err != nil {
					return fmt.Errorf("bolt: bucket %s: %w", op.NS, err)
				}
				buckets[op.NS] = buck
			}
			var err error
			if op.Delete {
				err = buck.Delete(op.Key)
			} else {
				err = buck.Put(op.Key, op.Value)
			}
			if err != nil {
				return fmt.Errorf("bolt: %v: %w", op, err)
			}
		}
		return nil
	})
}

func (s *boltStorage) Close() error {
	return s.bdb.Close()
}

type boltSnapshot struct {
	btx *bbolt.Tx
}

func (snap *boltSnapshot) Get(ns string, key []byte) ([]byte, error) {
	buck := snap.btx.Bucket(unsafeBytesFromString(ns))
	if buck == nil {
		return nil, nil
	}
	v := buck.Get(key)
	if v == nil {
		return nil, nil
	}
	return present(slices.Clone(v)), nil
}

func (snap *boltSnapshot) Cursor(ns string) (StorageCursor, error) {
	buck := snap.btx.Bucket(unsafeBytesFromString(ns))
	if buck == nil {
		return &memCursor{b: &memBucket{}}, nil
	}
	return boltCursor{c: buck.Cursor()}, nil
}

func (snap *boltSnapshot) Release() {
	// The only error Rollback returns is ErrTxClosed, which means we have
	// already been released.
	err := snap.btx.Rollback()
	if err != nil && err != bbolt.ErrTxClosed {
		panic(err)
	}
}

type boltCursor struct {
	c *bbolt.Cursor
}

func (c boltCursor) First() ([]byte, []byte) { return c.c.First() }

func (c boltCursor) Seek(seek []byte) ([]byte, []byte) { return c.c.Seek(seek) }

func (c boltCursor) Next() ([]byte, []byte) { return c.c.Next() }

func (c boltCursor) Err() error { return nil }

func (c boltCursor) Close() {}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
